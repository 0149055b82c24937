package app

// Config holds the command-line-derived settings that drive a single
// broker invocation. Everything else comes from the loaded GlobalConfig.
type Config struct {
	// Debug enables DEBUG-level logging regardless of the configured
	// LogLevel.
	Debug bool

	// Silent suppresses operational log output entirely.
	Silent bool

	// ConfigPath is the path to the broker's JSON or YAML configuration
	// file.
	ConfigPath string

	// ListenAddr is the address the admin+proxy HTTP server binds to.
	ListenAddr string

	// PluginVersion is embedded in every admin response envelope.
	PluginVersion string
}

// NewConfig constructs a Config from CLI flag values.
func NewConfig(debug, silent bool, configPath, listenAddr, pluginVersion string) *Config {
	return &Config{
		Debug:         debug,
		Silent:        silent,
		ConfigPath:    configPath,
		ListenAddr:    listenAddr,
		PluginVersion: pluginVersion,
	}
}
