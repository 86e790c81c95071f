package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Device   DeviceConfig   `mapstructure:"device"`
	Flow     FlowConfig     `mapstructure:"flow"`
	Bank     BankConfig     `mapstructure:"bank"`
	Log      LogConfig      `mapstructure:"log"`
	Security SecurityConfig `mapstructure:"security"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig configures persistence.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DeviceConfig configures the cash-deposit machine protocol client.
type DeviceConfig struct {
	// SenseInterval is the default polling interval for status waiters.
	SenseInterval time.Duration `mapstructure:"sense_interval"`
	// ReadyTimeout bounds the wait for the device to return to
	// ready-to-count after a count cycle.
	ReadyTimeout time.Duration `mapstructure:"ready_timeout"`
	// UnlockTimeout bounds the unlock call. An un-unlocked device blocks
	// all future transactions, so failures are escalated.
	UnlockTimeout  time.Duration `mapstructure:"unlock_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	DoorInterval   time.Duration `mapstructure:"door_interval"`
	CancelInterval time.Duration `mapstructure:"cancel_interval"`
}

// FlowConfig configures the deposit flow controller.
type FlowConfig struct {
	// CollectionPollInterval drives the background check for pending
	// disbursement/collection states that block new deposits.
	CollectionPollInterval time.Duration `mapstructure:"collection_poll_interval"`
	TransactionNumber      int           `mapstructure:"transaction_number"`
	DepositMode            int           `mapstructure:"deposit_mode"`
}

// BankConfig configures the external bank notification API.
type BankConfig struct {
	APIURL         string        `mapstructure:"api_url"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	Channel        string        `mapstructure:"channel"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetryAttempts  int           `mapstructure:"retry_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig configures the rotating log file.
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// SecurityConfig groups security settings.
type SecurityConfig struct {
	JWT JWTConfig `mapstructure:"jwt"`
}

// JWTConfig configures token signing.
type JWTConfig struct {
	Secret       string `mapstructure:"secret"`
	ExpireHours  int    `mapstructure:"expire_hours"`
	RefreshHours int    `mapstructure:"refresh_hours"`
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init loads configuration from file and environment.
func Init(configPath string) error {
	var err error
	once.Do(func() {
		v = viper.New()

		if configPath != "" {
			v.SetConfigFile(configPath)
		} else {
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			v.AddConfigPath("./config")
			v.AddConfigPath(".")
		}

		v.SetEnvPrefix("CDM_TELLER")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		setDefaults(v)

		if err = v.ReadInConfig(); err != nil {
			// Missing config file is fine, defaults apply.
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return
			}
			err = nil
		}

		cfg = &Config{}
		if err = v.Unmarshal(cfg); err != nil {
			return
		}
	})

	return err
}

// setDefaults installs default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.mode", "development")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/cdm-teller.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "info")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("device.sense_interval", "600ms")
	v.SetDefault("device.door_interval", "800ms")
	v.SetDefault("device.cancel_interval", "500ms")
	v.SetDefault("device.ready_timeout", "10s")
	v.SetDefault("device.unlock_timeout", "7s")
	v.SetDefault("device.request_timeout", "30s")

	v.SetDefault("flow.collection_poll_interval", "10s")
	v.SetDefault("flow.transaction_number", 1)
	v.SetDefault("flow.deposit_mode", 1)

	v.SetDefault("bank.channel", "TEST")
	v.SetDefault("bank.request_timeout", "30s")
	v.SetDefault("bank.retry_attempts", 3)
	v.SetDefault("bank.retry_delay", "5s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "both")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "cdm-teller.log")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.compress", true)

	v.SetDefault("security.jwt.secret", "change-me-in-production")
	v.SetDefault("security.jwt.expire_hours", 8)
	v.SetDefault("security.jwt.refresh_hours", 72)
}

// Get returns the active configuration.
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch reloads configuration on file change.
func Watch(callback func(*Config)) {
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		mu.Lock()
		defer mu.Unlock()

		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			fmt.Printf("config reload failed: %v\n", err)
			return
		}

		cfg = newCfg

		if callback != nil {
			callback(cfg)
		}
	})
}

// GetString reads a string value by key.
func GetString(key string) string {
	return v.GetString(key)
}

// GetInt reads an int value by key.
func GetInt(key string) int {
	return v.GetInt(key)
}

// GetBool reads a bool value by key.
func GetBool(key string) bool {
	return v.GetBool(key)
}

// GetDuration reads a duration value by key.
func GetDuration(key string) time.Duration {
	return v.GetDuration(key)
}

// IsSet reports whether the key is present.
func IsSet(key string) bool {
	return v.IsSet(key)
}

// Set overrides a value at runtime.
func Set(key string, value interface{}) {
	v.Set(key, value)
}
