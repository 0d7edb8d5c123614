// Package pinsrv exposes configured GPIO output pins over a small
// plain-text HTTP API, with optional HomeKit, MQTT and InfluxDB side
// surfaces.
package pinsrv

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/hubertat/pinsrv/drivers"
	"github.com/hubertat/pinsrv/mqtt"
)

const defaultMqttPrefix = "pinsrv"
const defaultMqttSyncInterval = 2 * time.Second
const defaultInfluxInterval = 30 * time.Second

// Kit wires a configuration into a driver, the pin registry and the
// HTTP server, and starts the optional services.
type Kit struct {
	Config *Config

	driver         drivers.IoDriver
	registry       *Registry
	server         *Server
	mqttClient     *mqtt.MqttClient
	influxRecorder *InfluxRecorder
}

func NewKit(cfg *Config) *Kit {
	return &Kit{Config: cfg}
}

// InitDriver constructs the configured driver and claims every
// configured pin as an exclusive output. Partial binding is not a
// supported state: any claim failure fails the whole call.
func (kit *Kit) InitDriver(ctx context.Context) error {
	switch kit.Config.Gpio.Driver {
	case "", "cdev":
		kit.driver = &drivers.CdevIO{Chip: kit.Config.Gpio.Chip}
	case "rpio":
		kit.driver = &drivers.RpIO{InvertOutputs: kit.Config.Gpio.Invert}
	case "mcpio":
		kit.driver = &drivers.McpIO{
			BusNo:         kit.Config.Gpio.Bus,
			DevNo:         kit.Config.Gpio.Device,
			InvertOutputs: kit.Config.Gpio.Invert,
		}
	case "mock":
		kit.driver = &drivers.MockIoDriver{}
	default:
		return errors.Errorf("unknown gpio driver: %s", kit.Config.Gpio.Driver)
	}

	err := kit.driver.Setup(ctx, kit.Config.Gpio.Pins)
	if err != nil {
		return errors.Wrapf(err, "failed to setup %s driver", kit.driver)
	}

	return nil
}

// BindPins builds the registry from the claimed lines and prepares the
// HTTP server. Must run after InitDriver.
func (kit *Kit) BindPins() error {
	registry, err := BindPins(kit.driver, kit.Config.Gpio.Pins, kit.Config.Gpio.Names)
	if err != nil {
		return err
	}

	kit.registry = registry
	kit.server = NewServer(registry, kit.Config.Main.Port)

	return nil
}

func (kit *Kit) Registry() *Registry {
	return kit.registry
}

func (kit *Kit) Driver() drivers.IoDriver {
	return kit.driver
}

func (kit *Kit) ListenAndServe() error {
	return kit.server.ListenAndServe()
}

// Shutdown stops accepting HTTP requests; claimed lines stay held
// until Close.
func (kit *Kit) Shutdown() {
	if kit.server != nil {
		kit.server.Close()
	}
}

// Close releases every claimed line (drivers drive them low first) and
// disconnects the optional services.
func (kit *Kit) Close() (err error) {
	if kit.mqttClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		disconnectErr := kit.mqttClient.Disconnect(ctx)
		if disconnectErr != nil {
			err = errors.Wrap(disconnectErr, "failed to disconnect mqtt client")
		}
	}

	if kit.influxRecorder != nil {
		kit.influxRecorder.Close()
	}

	if kit.driver != nil {
		closeErr := kit.driver.Close()
		if closeErr != nil {
			err = errors.Wrap(closeErr, "failed to close io driver")
		}
	}

	return
}

// StartMqtt connects the MQTT bridge: retained state messages go out
// on an interval and set commands come back in by pin name.
func (kit *Kit) StartMqtt(ctx context.Context) error {
	cfg := kit.Config.Mqtt
	if cfg == nil || len(cfg.Broker) == 0 {
		return errors.New("mqtt broker not set")
	}

	prefix := cfg.TopicPrefix()

	mc, err := mqtt.NewMqttClient(cfg.Broker, prefix)
	if err != nil {
		return errors.Wrap(err, "failed to create mqtt client")
	}
	kit.mqttClient = mc

	bridge := NewMqttBridge(kit.registry, mc, prefix)

	err = mc.Connect(ctx, []mqtt.MqttHandler{bridge})
	if err != nil {
		return errors.Wrap(err, "failed to connect to mqtt broker")
	}

	interval := defaultMqttSyncInterval
	if len(cfg.Sync) > 0 {
		interval, err = time.ParseDuration(cfg.Sync)
		if err != nil {
			return errors.Wrapf(err, "failed to parse mqtt sync interval %s", cfg.Sync)
		}
	}
	go bridge.PublishLoop(ctx, interval)

	return nil
}

// StartInflux starts the periodic pin-state recorder.
func (kit *Kit) StartInflux(ctx context.Context) error {
	cfg := kit.Config.Influx
	if cfg == nil || len(cfg.Host) == 0 {
		return errors.New("influx host not set")
	}

	recorder := NewInfluxRecorder(kit.registry, cfg)
	err := recorder.Setup(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to setup influx recorder")
	}
	kit.influxRecorder = recorder

	interval := defaultInfluxInterval
	if len(cfg.Interval) > 0 {
		interval, err = time.ParseDuration(cfg.Interval)
		if err != nil {
			return errors.Wrapf(err, "failed to parse influx interval %s", cfg.Interval)
		}
	}
	go recorder.Run(ctx, interval)

	return nil
}

// PrintIoStatus reports the bound pins, mainly for startup logs.
func (kit *Kit) PrintIoStatus(writer io.Writer) {
	fmt.Fprintln(writer)
	fmt.Fprintf(writer, "=== %s driver, %d pins bound ===\n", kit.driver, kit.registry.Len())
	kit.registry.Describe(writer)
	fmt.Fprintln(writer, "-----------------------------")
	fmt.Fprintln(writer)
}
