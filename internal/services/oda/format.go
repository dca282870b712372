package oda

import (
	"fmt"
	"strings"

	"caddis/internal/services"
)

// Format identifies a drawing file type the converter can read or write.
type Format string

const (
	FormatDWG Format = "DWG"
	FormatDXF Format = "DXF"
	FormatDXB Format = "DXB"
)

// SourceAuto asks the converter to detect the input version itself.
const SourceAuto = "auto"

// ParseFormat validates a caller-supplied format identifier.
func ParseFormat(value string) (Format, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "DWG":
		return FormatDWG, nil
	case "DXF":
		return FormatDXF, nil
	case "DXB":
		return FormatDXB, nil
	default:
		return "", services.Wrap(services.ErrInputInvalid, "oda", "parse format",
			fmt.Sprintf("unsupported format %q (want dwg, dxf, or dxb)", value), nil)
	}
}

// Ext returns the lowercase file extension for the format, with leading dot.
func (f Format) Ext() string {
	return "." + strings.ToLower(string(f))
}
