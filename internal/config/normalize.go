package config

import "strings"

// normalize expands path fields and fills empty values with defaults.
func (c *Config) normalize() error {
	defaults := Default()

	if strings.TrimSpace(c.Paths.RuntimeDir) == "" {
		c.Paths.RuntimeDir = defaults.Paths.RuntimeDir
	}
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaults.Paths.StagingDir
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaults.Paths.LogDir
	}
	if strings.TrimSpace(c.Paths.APIBind) == "" {
		c.Paths.APIBind = defaults.Paths.APIBind
	}

	for _, field := range []*string{&c.Paths.RuntimeDir, &c.Paths.StagingDir, &c.Paths.LogDir} {
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}

	c.Converter.Binary = strings.TrimSpace(c.Converter.Binary)
	if c.Converter.Binary == "" {
		c.Converter.Binary = defaults.Converter.Binary
	}
	// Converter paths with separators are deployment-specific; expand them too.
	if strings.ContainsAny(c.Converter.Binary, "/~") {
		expanded, err := expandPath(c.Converter.Binary)
		if err != nil {
			return err
		}
		c.Converter.Binary = expanded
	}
	if strings.TrimSpace(c.Converter.OutputVersion) == "" {
		c.Converter.OutputVersion = defaults.Converter.OutputVersion
	}

	c.Display.XvfbBinary = strings.TrimSpace(c.Display.XvfbBinary)
	if c.Display.XvfbBinary == "" {
		c.Display.XvfbBinary = defaults.Display.XvfbBinary
	}
	if strings.TrimSpace(c.Display.Screen) == "" {
		c.Display.Screen = defaults.Display.Screen
	}

	if strings.TrimSpace(c.Logging.Format) == "" {
		c.Logging.Format = defaults.Logging.Format
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = defaults.Logging.Level
	}

	return nil
}
