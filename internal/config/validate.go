package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateConverter(); err != nil {
		return err
	}
	if err := c.validateDisplay(); err != nil {
		return err
	}
	if err := c.validateAdmission(); err != nil {
		return err
	}
	if err := c.validateWorkspace(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateConverter() error {
	if c.Converter.Binary == "" {
		return errors.New("converter.binary must be set")
	}
	if c.Converter.TimeoutSeconds <= 0 {
		return errors.New("converter.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateDisplay() error {
	if c.Display.RangeMin <= 0 {
		return errors.New("display.range_min must be positive")
	}
	if c.Display.RangeMax < c.Display.RangeMin {
		return fmt.Errorf("display.range_max must be >= display.range_min (%d)", c.Display.RangeMin)
	}
	if c.Display.StartupWaitSeconds <= 0 {
		return errors.New("display.startup_wait_seconds must be positive")
	}
	if c.Display.StopGraceSeconds <= 0 {
		return errors.New("display.stop_grace_seconds must be positive")
	}
	return nil
}

func (c *Config) validateAdmission() error {
	if c.Admission.Limit <= 0 {
		return errors.New("admission.limit must be positive")
	}
	if c.Admission.WaitTimeoutSeconds <= 0 {
		return errors.New("admission.wait_timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateWorkspace() error {
	if c.Workspace.StaleAgeMinutes <= 0 {
		return errors.New("workspace.stale_age_minutes must be positive")
	}
	if c.Workspace.SweepIntervalMinutes <= 0 {
		return errors.New("workspace.sweep_interval_minutes must be positive")
	}
	if c.Workspace.MaxInputMB <= 0 {
		return errors.New("workspace.max_input_mb must be positive")
	}
	return nil
}
