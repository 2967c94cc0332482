// Package config provides a reusable loader for the kiosk's configuration
// files and environment variables. It is versioned so that applications can
// depend on a stable API contract.
//
// Version: v0.1.0
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"moneychanger/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified configuration for a kiosk control-core process. It
// mirrors the structure of the YAML files under cmd/kioskctl/config. Callers
// own the returned value and pass it by explicit reference through their
// application lifecycle; this package holds no mutable global state.
type Config struct {
	Serial struct {
		PortBill  string        `mapstructure:"port_bill" json:"port_bill"`
		PortCoin  string        `mapstructure:"port_coin" json:"port_coin"`
		BaudRate  int           `mapstructure:"baud_rate" json:"baud_rate"`
		Timeout   time.Duration `mapstructure:"timeout" json:"timeout"`
		UseMock   bool          `mapstructure:"use_mock" json:"use_mock"`
		MockDelay time.Duration `mapstructure:"mock_delay" json:"mock_delay"`
		UseMockHw bool          `mapstructure:"use_mock_hardware" json:"use_mock_hardware"`
	} `mapstructure:"serial" json:"serial"`

	BillAcceptor struct {
		AcceptanceTimeout time.Duration `mapstructure:"acceptance_timeout" json:"acceptance_timeout"`
		PositionTimeout   time.Duration `mapstructure:"position_timeout" json:"position_timeout"`
		LEDStabilizeDelay time.Duration `mapstructure:"led_stabilization_delay" json:"led_stabilization_delay"`
		PullSpeed         int           `mapstructure:"pull_speed" json:"pull_speed"`
		EjectSpeed        int           `mapstructure:"eject_speed" json:"eject_speed"`
		StoreSpeed        int           `mapstructure:"store_speed" json:"store_speed"`
		StoreDuration     time.Duration `mapstructure:"store_duration" json:"store_duration"`
		EjectDuration     time.Duration `mapstructure:"eject_duration" json:"eject_duration"`
	} `mapstructure:"bill_acceptor" json:"bill_acceptor"`

	Consumables struct {
		StorageSlotCapacity int `mapstructure:"storage_slot_capacity" json:"storage_slot_capacity"`
		LowBillThreshold    int `mapstructure:"low_bill_threshold" json:"low_bill_threshold"`
		LowCoinThreshold    int `mapstructure:"low_coin_threshold" json:"low_coin_threshold"`
	} `mapstructure:"consumables" json:"consumables"`

	Storage struct {
		DataDir string `mapstructure:"data_dir" json:"data_dir"`
	} `mapstructure:"storage" json:"storage"`

	API struct {
		ListenAddr string `mapstructure:"listen_addr" json:"listen_addr"`
	} `mapstructure:"api" json:"api"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// Default returns a Config populated with the kiosk's shipped defaults
// (baud_rate=115200, serial timeout 5s, bill acceptance timeout 10s,
// storage_slot_capacity=100, and so on).
func Default() Config {
	var c Config
	c.Serial.BaudRate = 115200
	c.Serial.Timeout = 5 * time.Second
	c.BillAcceptor.AcceptanceTimeout = 10 * time.Second
	c.BillAcceptor.PositionTimeout = 5 * time.Second
	c.BillAcceptor.LEDStabilizeDelay = 200 * time.Millisecond
	c.BillAcceptor.PullSpeed = 60
	c.BillAcceptor.EjectSpeed = 80
	c.BillAcceptor.StoreSpeed = 70
	c.BillAcceptor.StoreDuration = 2 * time.Second
	c.BillAcceptor.EjectDuration = 1500 * time.Millisecond
	c.Consumables.StorageSlotCapacity = 100
	c.Consumables.LowBillThreshold = 10
	c.Consumables.LowCoinThreshold = 50
	c.Storage.DataDir = "./data"
	c.API.ListenAddr = ":8080"
	c.Logging.Level = "info"
	return c
}

// Load reads configuration files and merges any environment specific
// overrides on top of Default(). The resulting configuration is returned; it
// is the caller's responsibility to thread it through the application
// lifecycle.
//
// env selects an optional overlay file (e.g. "production" loads
// production.yaml on top of default.yaml). If env is empty, only the default
// configuration is loaded.
func Load(env string) (*Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, utils.Wrap(err, "load .env overrides")
	}

	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/kioskctl/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, utils.Wrap(err, "load config")
		}
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.SetEnvPrefix("KIOSK")
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &cfg, nil
}

// LoadFromEnv loads configuration using the KIOSK_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("KIOSK_ENV", ""))
}
