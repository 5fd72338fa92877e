package config

import "time"

// Config represents the complete ned runtime configuration.
//
// Listeners come from the command line; everything here is process-level
// tuning with sensible defaults. There is no configuration file.
type Config struct {
	// MaxConcurrentTasks caps in-flight dispatch tasks across all listeners.
	MaxConcurrentTasks int
	// CommandTimeout bounds the wall time of a single dispatch task.
	CommandTimeout time.Duration
	// TerminationGrace is how long a timed-out command gets after SIGTERM
	// before SIGKILL. Zero kills immediately.
	TerminationGrace time.Duration
	// SocketPath is the niri IPC socket.
	SocketPath string
	LogLevel   string
	LogFormat  string
}

const (
	DefaultMaxConcurrentTasks = 8
	DefaultCommandTimeout     = 5 * time.Second
)

// Defaults returns a configuration with default values.
func Defaults() *Config {
	return &Config{
		MaxConcurrentTasks: DefaultMaxConcurrentTasks,
		CommandTimeout:     DefaultCommandTimeout,
		TerminationGrace:   0,
		LogLevel:           "info",
		LogFormat:          "text",
	}
}
