package pinsrv

import (
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const envPrefix = "PINSRV_"

type Config struct {
	Main MainConfig `koanf:"main"`
	Gpio GpioConfig `koanf:"gpio"`

	HomeKit *HomeKitConfig `koanf:"homekit"`
	Mqtt    *MqttConfig    `koanf:"mqtt"`
	Influx  *InfluxConfig  `koanf:"influx"`
}

type MainConfig struct {
	Debug bool   `koanf:"debug"`
	Port  uint16 `koanf:"port"`
}

type GpioConfig struct {
	Driver string `koanf:"driver"`
	Chip   string `koanf:"chip"`
	Invert bool   `koanf:"invert"`
	Bus    uint8  `koanf:"bus"`
	Device uint8  `koanf:"device"`

	Pins  []int    `koanf:"pins"`
	Names []string `koanf:"names"`
}

type HomeKitConfig struct {
	Pin       string `koanf:"pin"`
	Directory string `koanf:"directory"`
	Address   string `koanf:"address"`
	Debug     bool   `koanf:"debug"`
}

type MqttConfig struct {
	Broker string `koanf:"broker"`
	Prefix string `koanf:"prefix"`
	Sync   string `koanf:"sync"`
}

// TopicPrefix doubles as the MQTT client identity, so two instances
// with distinct prefixes can share a broker without kicking each
// other off.
func (mq *MqttConfig) TopicPrefix() string {
	if len(mq.Prefix) == 0 {
		return defaultMqttPrefix
	}
	return mq.Prefix
}

type InfluxConfig struct {
	Host         string `koanf:"host"`
	Organization string `koanf:"org"`
	Bucket       string `koanf:"bucket"`
	Token        string `koanf:"token"`
	Interval     string `koanf:"interval"`
}

// LoadConfig reads a TOML configuration file and applies PINSRV_*
// environment overrides on top (PINSRV_MAIN_PORT=8080 sets main.port).
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		return nil, errors.Wrapf(err, "failed to load config file %s", path)
	}

	envTransform := func(s string) string {
		s = strings.TrimPrefix(s, envPrefix)
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "_", ".")
		return s
	}
	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, errors.Wrap(err, "failed to load environment overrides")
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate runs before any hardware is touched; a config that fails
// here never reaches the driver.
func (cfg *Config) Validate() error {
	if cfg.Main.Port == 0 {
		return errors.New("main.port must be set")
	}

	if len(cfg.Gpio.Pins) == 0 {
		return errors.New("no gpio pins configured")
	}

	if len(cfg.Gpio.Pins) != len(cfg.Gpio.Names) {
		return errors.Errorf("gpio.pins (%d) and gpio.names (%d) must have the same length",
			len(cfg.Gpio.Pins), len(cfg.Gpio.Names))
	}

	for _, pin := range cfg.Gpio.Pins {
		if pin < 0 {
			return errors.Errorf("gpio pin %d out of range", pin)
		}
	}

	return nil
}
