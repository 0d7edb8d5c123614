package pinsrv

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/eclipse/paho.golang/paho"

	"github.com/hubertat/pinsrv/mqtt"
)

// MqttBridge mirrors the registry onto an MQTT broker: pin states go
// out as retained messages on <prefix>/state/<name>, and payloads "0"
// or "1" on <prefix>/set/<name> write through by name, fanning out to
// every alias like the HTTP name route.
type MqttBridge struct {
	registry  *Registry
	publisher mqtt.Publisher
	prefix    string
	logger    *log.Logger
}

func NewMqttBridge(registry *Registry, publisher mqtt.Publisher, prefix string) *MqttBridge {
	return &MqttBridge{
		registry:  registry,
		publisher: publisher,
		prefix:    prefix,
		logger: log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "mqtt-bridge",
			Level:  log.GetLevel(),
		}),
	}
}

func (mb *MqttBridge) MqttSubscribeTopic() string {
	return mb.prefix + "/set/+"
}

func (mb *MqttBridge) MqttHandle(pub *paho.Publish) {
	name := strings.TrimPrefix(pub.Topic, mb.prefix+"/set/")

	state, ok := parseState(string(pub.Payload))
	if !ok {
		mb.logger.Debug("ignoring set message with invalid state", "topic", pub.Topic, "payload", string(pub.Payload))
		return
	}

	if !mb.registry.SetByName(name, state) {
		mb.logger.Debug("ignoring set message for unknown pin name", "name", name)
	}
}

// PublishStates pushes the current state of every pin. Aliased names
// publish to the same topic; the last alias in registry order wins,
// consistent with name reads.
func (mb *MqttBridge) PublishStates() {
	for _, st := range mb.registry.States() {
		topic := fmt.Sprintf("%s/state/%s", mb.prefix, st.Name)
		err := mb.publisher.Publish(topic, []byte(st.Value))
		if err != nil {
			mb.logger.Error("failed to publish pin state", "topic", topic, "err", err)
		}
	}
}

func (mb *MqttBridge) PublishLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mb.PublishStates()
		}
	}
}
