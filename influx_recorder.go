package pinsrv

import (
	"context"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/pkg/errors"
)

const influxMeasurement = "gpio_state"

// InfluxRecorder periodically writes a point per bound pin, so pin
// history survives even though the service itself keeps no state.
type InfluxRecorder struct {
	Host         string
	Organization string
	Bucket       string
	Token        string

	registry *Registry
	client   influxdb2.Client
	logger   *log.Logger
	ready    bool
}

func NewInfluxRecorder(registry *Registry, cfg *InfluxConfig) *InfluxRecorder {
	return &InfluxRecorder{
		Host:         cfg.Host,
		Organization: cfg.Organization,
		Bucket:       cfg.Bucket,
		Token:        cfg.Token,
		registry:     registry,
		logger: log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "influx",
			Level:  log.GetLevel(),
		}),
	}
}

func (ir *InfluxRecorder) Setup(ctx context.Context) error {
	ir.client = influxdb2.NewClient(ir.Host, ir.Token)

	health, err := ir.client.Health(ctx)
	if err != nil {
		ir.client.Close()
		ir.client = nil
		return errors.Wrapf(err, "failed to reach influx at %s", ir.Host)
	}
	ir.logger.Debug("influx health", "status", health.Status)

	ir.ready = true
	return nil
}

func (ir *InfluxRecorder) IsReady() bool {
	return ir.ready
}

func (ir *InfluxRecorder) Close() error {
	ir.ready = false
	if ir.client != nil {
		ir.client.Close()
		ir.client = nil
	}
	return nil
}

// Sync writes one point per pin. Pins reading "err" are skipped; a
// fault sentinel is not a state worth recording.
func (ir *InfluxRecorder) Sync(ctx context.Context) error {
	writeApi := ir.client.WriteAPIBlocking(ir.Organization, ir.Bucket)

	for _, st := range ir.registry.States() {
		state, err := strconv.Atoi(st.Value)
		if err != nil {
			ir.logger.Debug("skipping pin with unreadable state", "pin", st.Offset, "name", st.Name)
			continue
		}

		point := influxdb2.NewPoint(influxMeasurement,
			map[string]string{
				"pin":  strconv.Itoa(st.Offset),
				"name": st.Name,
			},
			map[string]interface{}{
				"state": state,
			},
			time.Now())

		err = writeApi.WritePoint(ctx, point)
		if err != nil {
			return errors.Wrapf(err, "failed to write state point for pin %d", st.Offset)
		}
	}

	return nil
}

func (ir *InfluxRecorder) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := ir.Sync(ctx)
			if err != nil {
				ir.logger.Error("failed to record pin states", "err", err)
			}
		}
	}
}
