package log

// LoggerConfig describes how the global logger is constructed. cmd/start
// builds it from DefaultConfig and copies only Level from the global
// configuration's log_level (see internal/config); the other fields keep
// their defaults.
type LoggerConfig struct {
	Level   string           `mapstructure:"level" yaml:"level"`
	Pattern string           `mapstructure:"pattern" yaml:"pattern"`
	Time    string           `mapstructure:"time" yaml:"time"`
	File    FileOutputConfig `mapstructure:"file" yaml:"file"`
}

// FileOutputConfig enables rotated file output alongside stdout, via lumberjack.
type FileOutputConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Path       string `mapstructure:"path" yaml:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// DefaultConfig mirrors the teacher's setDefaults pattern for the logging section.
func DefaultConfig() *LoggerConfig {
	return &LoggerConfig{
		Level:   "info",
		Pattern: "%time [%level] %field %msg",
		Time:    "2006-01-02T15:04:05.000Z07:00",
		File: FileOutputConfig{
			MaxSizeMB:  100,
			MaxAgeDays: 30,
			MaxBackups: 5,
			Compress:   true,
		},
	}
}
