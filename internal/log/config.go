package log

const (
	DefaultPattern = "%time [%level] %field %msg\n"
	DefaultTime    = "2006-01-02 15:04:05"
)

// Console outputs
const (
	OutputStdout = "stdout"
	OutputStderr = "stderr"
)

type LoggerConfig struct {
	Level   string          `mapstructure:"level"`
	Pattern string          `mapstructure:"pattern"`
	Time    string          `mapstructure:"time"`
	Caller  bool            `mapstructure:"caller"`
	Output  string          `mapstructure:"output"` // stdout | stderr
	File    FileAppenderOpt `mapstructure:"file"`
}

// FileAppenderOpt configures the rotating file appender. Sizes are in
// megabytes, ages in days.
type FileAppenderOpt struct {
	Enabled    bool   `mapstructure:"enabled"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}
