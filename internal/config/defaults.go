package config

const (
	defaultRuntimeDir         = "~/.local/share/caddis/run"
	defaultStagingDir         = "~/.local/share/caddis/staging"
	defaultLogDir             = "~/.local/share/caddis/logs"
	defaultAPIBind            = "127.0.0.1:7690"
	defaultConverterBinary    = "ODAFileConverter"
	defaultConverterTimeout   = 300
	defaultOutputVersion      = "ACAD2018"
	defaultXvfbBinary         = "Xvfb"
	defaultDisplayRangeMin    = 100
	defaultDisplayRangeMax    = 299
	defaultDisplayScreen      = "1024x768x24"
	defaultDisplayStartupWait = 10
	defaultDisplayStopGrace   = 3
	defaultAdmissionLimit     = 4
	defaultAdmissionWait      = 30
	defaultStaleAgeMinutes    = 120
	defaultSweepMinutes       = 15
	defaultMaxInputMB         = 256
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			RuntimeDir: defaultRuntimeDir,
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Converter: Converter{
			Binary:         defaultConverterBinary,
			TimeoutSeconds: defaultConverterTimeout,
			OutputVersion:  defaultOutputVersion,
			Audit:          true,
		},
		Display: Display{
			XvfbBinary:         defaultXvfbBinary,
			RangeMin:           defaultDisplayRangeMin,
			RangeMax:           defaultDisplayRangeMax,
			Screen:             defaultDisplayScreen,
			StartupWaitSeconds: defaultDisplayStartupWait,
			StopGraceSeconds:   defaultDisplayStopGrace,
		},
		Admission: Admission{
			Limit:              defaultAdmissionLimit,
			WaitTimeoutSeconds: defaultAdmissionWait,
		},
		Workspace: Workspace{
			StaleAgeMinutes:      defaultStaleAgeMinutes,
			SweepIntervalMinutes: defaultSweepMinutes,
			MaxInputMB:           defaultMaxInputMB,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
