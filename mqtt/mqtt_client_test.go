package mqtt

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/eclipse/paho.golang/packets"
	"github.com/eclipse/paho.golang/paho"
)

func TestTopicMatches(t *testing.T) {
	cases := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"pinsrv/set/relay", "pinsrv/set/relay", true},
		{"pinsrv/set/+", "pinsrv/set/relay", true},
		{"pinsrv/set/+", "pinsrv/set/relay/extra", false},
		{"pinsrv/set/+", "pinsrv/state/relay", false},
		{"pinsrv/#", "pinsrv/set/relay", true},
		{"pinsrv/#", "other/set/relay", false},
		{"pinsrv/set/relay", "pinsrv/set", false},
		{"+/set/+", "pinsrv/set/fan", true},
	}

	for _, c := range cases {
		t.Run(c.filter+" vs "+c.topic, func(t *testing.T) {
			got := TopicMatches(c.filter, c.topic)
			if got != c.want {
				t.Errorf("TopicMatches(%q, %q) = %v, want %v", c.filter, c.topic, got, c.want)
			}
		})
	}
}

// serveTestBroker speaks just enough MQTT for one client: it acks the
// connection and subscriptions, answers pings, acks QoS 1 publishes,
// and pushes one set message right after the subscription lands.
func serveTestBroker(ln net.Listener) {
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	for {
		cp, err := packets.ReadPacket(conn)
		if err != nil {
			return
		}

		switch cp.Type {
		case packets.CONNECT:
			packets.NewControlPacket(packets.CONNACK).WriteTo(conn)
		case packets.SUBSCRIBE:
			sub := cp.Content.(*packets.Subscribe)
			suback := packets.NewControlPacket(packets.SUBACK)
			suback.Content.(*packets.Suback).PacketID = sub.PacketID
			suback.Content.(*packets.Suback).Reasons = []byte{1}
			suback.WriteTo(conn)

			push := packets.NewControlPacket(packets.PUBLISH)
			pushContent := push.Content.(*packets.Publish)
			pushContent.Topic = "pins/set/relay"
			pushContent.Payload = []byte("1")
			push.WriteTo(conn)
		case packets.PUBLISH:
			received := cp.Content.(*packets.Publish)
			if received.QoS > 0 {
				puback := packets.NewControlPacket(packets.PUBACK)
				puback.Content.(*packets.Puback).PacketID = received.PacketID
				puback.WriteTo(conn)
			}
		case packets.PINGREQ:
			packets.NewControlPacket(packets.PINGRESP).WriteTo(conn)
		case packets.DISCONNECT:
			return
		}
	}
}

type chanHandler struct {
	received chan *paho.Publish
}

func (ch *chanHandler) MqttHandle(pub *paho.Publish) {
	ch.received <- pub
}

func (ch *chanHandler) MqttSubscribeTopic() string {
	return "pins/set/+"
}

func TestConnectionOutlivesConnect(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer ln.Close()
	go serveTestBroker(ln)

	mc, err := NewMqttClient("mqtt://"+ln.Addr().String(), "pins-test")
	if err != nil {
		t.Fatalf("NewMqttClient returned err: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := &chanHandler{received: make(chan *paho.Publish, 1)}
	err = mc.Connect(ctx, []MqttHandler{handler})
	if err != nil {
		t.Fatalf("Connect returned err: %v", err)
	}
	defer mc.Disconnect(context.Background())

	// the broker pushes a set message right after subscribing; it must
	// still arrive once Connect has returned
	select {
	case pub := <-handler.received:
		if pub.Topic != "pins/set/relay" {
			t.Errorf("received topic %s, want pins/set/relay", pub.Topic)
		}
		if string(pub.Payload) != "1" {
			t.Errorf("received payload %q, want 1", pub.Payload)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("set message never arrived after Connect returned")
	}

	// publishing must keep working well after Connect's own deadline
	time.Sleep(500 * time.Millisecond)
	err = mc.Publish("pins/state/relay", []byte("1"))
	if err != nil {
		t.Errorf("Publish after Connect returned err: %v", err)
	}
}
