package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config contains all of the configuration options available to any of the
// master server's components.
type Config struct {
	// Hostname or IP address on which the servers will listen for connections.
	Hostname string `mapstructure:"hostname"`
	// IP broadcast to clients in room creation responses and passed to
	// spawned room server processes.
	ExternalIP string `mapstructure:"external_ip"`
	// Maximum number of concurrent connections the server will allow. The
	// connection slot table is sized to this at startup.
	MaxConnections int `mapstructure:"max_connections"`

	Logging struct {
		// Minimum level of a log required to be written. Options: debug, info, warn, error
		LogLevel string `mapstructure:"log_level"`
		// Full path to file to which logs will be written. Blank will write to stdout.
		LogFilePath string `mapstructure:"log_file_path"`
	} `mapstructure:"logging"`

	MasterServer struct {
		// Port on which the master server will listen.
		Port int `mapstructure:"port"`
		// Rate at which the dispatch queue drains pending callbacks.
		DispatchHz int `mapstructure:"dispatch_hz"`
		// Queue depth past which an error is logged (the queue itself is unbounded).
		DispatchQueueWarnDepth int `mapstructure:"dispatch_queue_warn_depth"`
	} `mapstructure:"master_server"`

	Spawner struct {
		// Path to the room server executable launched for each created room.
		RoomServerPath string `mapstructure:"room_server_path"`
		// First port handed to a spawned room server; the pool spans
		// [base_port, base_port+max_room_count).
		BasePort int `mapstructure:"base_port"`
		// Number of room server processes (and reserved ports) allowed at once.
		MaxRoomCount int `mapstructure:"max_room_count"`
		// Seconds a launched process has to register itself before it is
		// killed and its port reclaimed.
		RegisterTimeoutSeconds int `mapstructure:"register_timeout_seconds"`
	} `mapstructure:"spawner"`

	Database struct {
		// Path to the sqlite file backing the session store. Created if absent.
		Filename string `mapstructure:"filename"`
	} `mapstructure:"database"`

	Debugging struct {
		// Enable extra info-providing mechanisms for the server.
		PprofEnabled bool `mapstructure:"pprof_enabled"`
		// Port on which a pprof server will be started if debug mode is enabled.
		PprofPort int `mapstructure:"pprof_port"`
		// Log decoded packets at debug level.
		PacketLoggingEnabled bool `mapstructure:"packet_logging_enabled"`
	} `mapstructure:"debugging"`
}

const envVarPrefix = "MSK"

// LoadConfig initializes Viper with the contents of the config file under configPath.
func LoadConfig(configPath string) (*Config, error) {
	viper.AddConfigPath(configPath)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix(envVarPrefix)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file in %s: %w", configPath, err)
	}

	// This allows us to set nested yaml config options through environment
	// variables. For example, master_server.port can be set using MSK_MASTER_SERVER_PORT.
	for _, k := range viper.AllKeys() {
		envVar := strings.ReplaceAll(strings.ToUpper(k), ".", "_")
		if err := viper.BindEnv(k, envVarPrefix+"_"+envVar); err != nil {
			return nil, fmt.Errorf("binding %s to %s: %w", k, envVarPrefix+"_"+envVar, err)
		}
	}

	config := defaultConfig()
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return config, nil
}

func defaultConfig() *Config {
	c := &Config{
		Hostname:       "127.0.0.1",
		MaxConnections: 1024,
	}
	c.Logging.LogLevel = "info"
	c.MasterServer.DispatchHz = 30
	c.MasterServer.DispatchQueueWarnDepth = 10000
	c.Spawner.RegisterTimeoutSeconds = 30
	return c
}

// MasterAddress returns the address clients (and spawned room servers)
// should connect to.
func (c *Config) MasterAddress() string {
	return fmt.Sprintf("%s:%d", c.Hostname, c.MasterServer.Port)
}

// BroadcastIP returns the IP reported to clients in OnCreatedRoom, falling
// back to the listen hostname when no external IP is configured.
func (c *Config) BroadcastIP() string {
	if c.ExternalIP != "" {
		return c.ExternalIP
	}
	return c.Hostname
}

// DispatchInterval converts the configured drain rate into a tick interval.
func (c *Config) DispatchInterval() time.Duration {
	hz := c.MasterServer.DispatchHz
	if hz <= 0 {
		hz = 30
	}
	return time.Second / time.Duration(hz)
}

// RegisterTimeout returns how long a spawn request may stay pending.
func (c *Config) RegisterTimeout() time.Duration {
	return time.Duration(c.Spawner.RegisterTimeoutSeconds) * time.Second
}
