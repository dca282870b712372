// Package deps reports the availability of the external binaries caddis
// drives. Checks are surfaced by `caddis deps`, `caddis status`, and the
// daemon status API.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"caddis/internal/config"
)

// Requirement defines an external dependency caddis relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements builds the dependency list for the given configuration.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "ODA File Converter",
			Command:     cfg.Converter.Binary,
			Description: "performs the DWG/DXF conversion",
		},
		{
			Name:        "Xvfb",
			Command:     cfg.Display.XvfbBinary,
			Description: "headless X server the converter's GUI runs against",
		},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}
