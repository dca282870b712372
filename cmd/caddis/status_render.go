package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

var statusKindMeta = [...]struct {
	label string
	color string
}{
	statusInfo:  {"INFO", ansiBlue},
	statusOK:    {"OK", ansiGreen},
	statusWarn:  {"WARN", ansiYellow},
	statusError: {"ERROR", ansiRed},
}

func (k statusKind) meta() (label, color string) {
	if int(k) < 0 || int(k) >= len(statusKindMeta) {
		k = statusInfo
	}
	return statusKindMeta[k].label, statusKindMeta[k].color
}

const (
	// Wide enough for the longest status label ("Admission limit").
	statusLabelWidth = 20
	statusIndent     = "  "
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	kindLabel, color := kind.meta()
	statusText := "[" + kindLabel + "]"
	if message != "" {
		statusText += " " + message
	}
	line := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", statusText)
	if colorize && color != "" {
		return color + line + ansiReset
	}
	return line
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
