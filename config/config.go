// Package config loads bridge settings from defaults, an optional YAML file,
// environment variables and command-line flags, in increasing priority.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/nixxel-company-limited/zpl-bridge/adapter"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes every environment variable, e.g. ZPLBRIDGE_TCP_PORT
const EnvPrefix = "ZPLBRIDGE"

// Config holds all application configuration.
type Config struct {
	Listen         string          `mapstructure:"listen"`
	AllowedOrigins []string        `mapstructure:"allowed_origins"`
	LogLevel       string          `mapstructure:"log_level"`
	TCP            TCPConfig       `mapstructure:"tcp"`
	Bluetooth      BluetoothConfig `mapstructure:"bluetooth"`
	USB            USBConfig       `mapstructure:"usb"`
	Serial         SerialConfig    `mapstructure:"serial"`
	Info           InfoConfig      `mapstructure:"info"`
}

type TCPConfig struct {
	Port         int           `mapstructure:"port"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type BluetoothConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ChunkSize       int           `mapstructure:"chunk_size"`
	InterChunkDelay time.Duration `mapstructure:"inter_chunk_delay"`
}

// USBConfig selects the USB printer; vendor and product IDs are hexadecimal strings.
type USBConfig struct {
	VendorID  string `mapstructure:"vendor_id"`
	ProductID string `mapstructure:"product_id"`
	Serial    string `mapstructure:"serial"`
}

type SerialConfig struct {
	BaudRate    int           `mapstructure:"baud_rate"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

// InfoConfig lists the SGD keys fetched by the printer info operations.
type InfoConfig struct {
	Keys []string `mapstructure:"keys"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	tcp := adapter.DefaultTCPOptions()
	ble := adapter.DefaultBLEOptions()
	serial := adapter.DefaultSerialOptions()

	v.SetDefault("listen", "localhost:8080")
	v.SetDefault("allowed_origins", []string{"*"})
	v.SetDefault("log_level", "info")

	v.SetDefault("tcp.port", tcp.Port)
	v.SetDefault("tcp.dial_timeout", tcp.DialTimeout)
	v.SetDefault("tcp.read_timeout", tcp.ReadTimeout)
	v.SetDefault("tcp.write_timeout", tcp.WriteTimeout)

	v.SetDefault("bluetooth.enabled", true)
	v.SetDefault("bluetooth.connect_timeout", ble.ConnectTimeout)
	v.SetDefault("bluetooth.read_timeout", ble.ReadTimeout)
	v.SetDefault("bluetooth.chunk_size", ble.ChunkSize)
	v.SetDefault("bluetooth.inter_chunk_delay", ble.InterChunkDelay)

	v.SetDefault("usb.vendor_id", "")
	v.SetDefault("usb.product_id", "")
	v.SetDefault("usb.serial", "")

	v.SetDefault("serial.baud_rate", serial.BaudRate)
	v.SetDefault("serial.read_timeout", serial.ReadTimeout)

	v.SetDefault("info.keys", adapter.DefaultInfoKeys)
}

// BindFlags defines the command-line flags and binds them into v.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	fs.StringP("config", "c", "", "path to a YAML config file")
	fs.StringP("listen", "l", "localhost:8080", "address to serve method calls on")
	fs.String("log-level", "info", "log level: debug, info, warn or error")
	fs.Int("tcp-port", adapter.DefaultZPLPort, "default printer TCP port")
	fs.Bool("bluetooth", true, "enable the Bluetooth radio")

	for key, flag := range map[string]string{
		"listen":            "listen",
		"log_level":         "log-level",
		"tcp.port":          "tcp-port",
		"bluetooth.enabled": "bluetooth",
	} {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return fmt.Errorf("binding flag %s: %w", flag, err)
		}
	}
	return nil
}

// NewViper returns a viper instance with defaults and environment bindings.
// The legacy SERVER_ADDRESS variable still sets the listen address.
func NewViper(fs afero.Fs) *viper.Viper {
	v := viper.New()
	if fs != nil {
		v.SetFs(fs)
	}
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("listen", EnvPrefix+"_LISTEN", "SERVER_ADDRESS")
	return v
}

// Load reads the optional config file at path into v and decodes the result.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{}
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("listen must not be empty")
	}
	if c.TCP.Port <= 0 || c.TCP.Port > 65535 {
		return fmt.Errorf("tcp.port must be between 1 and 65535, got %d", c.TCP.Port)
	}
	if c.Bluetooth.ChunkSize <= 0 {
		return fmt.Errorf("bluetooth.chunk_size must be > 0")
	}
	if c.Serial.BaudRate <= 0 {
		return fmt.Errorf("serial.baud_rate must be > 0")
	}
	if _, err := parseHexID(c.USB.VendorID); err != nil {
		return fmt.Errorf("usb.vendor_id: %w", err)
	}
	if _, err := parseHexID(c.USB.ProductID); err != nil {
		return fmt.Errorf("usb.product_id: %w", err)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}
	return nil
}

// AdapterOptions converts the transport sections into adapter options.
func (c *Config) AdapterOptions() adapter.Options {
	vid, _ := parseHexID(c.USB.VendorID)
	pid, _ := parseHexID(c.USB.ProductID)
	return adapter.Options{
		TCP: adapter.TCPOptions{
			Port:         c.TCP.Port,
			DialTimeout:  c.TCP.DialTimeout,
			ReadTimeout:  c.TCP.ReadTimeout,
			WriteTimeout: c.TCP.WriteTimeout,
		},
		BLE: adapter.BLEOptions{
			ConnectTimeout:  c.Bluetooth.ConnectTimeout,
			ReadTimeout:     c.Bluetooth.ReadTimeout,
			ChunkSize:       c.Bluetooth.ChunkSize,
			InterChunkDelay: c.Bluetooth.InterChunkDelay,
		},
		USB: adapter.USBOptions{
			VendorID:  vid,
			ProductID: pid,
			Serial:    c.USB.Serial,
		},
		Serial: adapter.SerialOptions{
			BaudRate:    c.Serial.BaudRate,
			ReadTimeout: c.Serial.ReadTimeout,
		},
	}
}

// NewLogger builds a production zap logger at the configured level.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Encoding = "console"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return zc.Build()
}

func parseHexID(s string) (uint16, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	if s == "" {
		return 0, nil
	}
	id, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid hex id %q", s)
	}
	return uint16(id), nil
}

// Factory builds the adapter factory, attaching the system Bluetooth radio
// when bluetooth.enabled is set.
func (c *Config) Factory() *adapter.DefaultFactory {
	var radio adapter.Radio
	if c.Bluetooth.Enabled {
		radio = adapter.NewBluetoothRadio()
	}
	return adapter.NewFactory(c.AdapterOptions(), radio)
}
