package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/garage2mqtt/internal/door"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	TopicRoot = "garage2mqtt"

	AvailabilityOnline  = "online"
	AvailabilityOffline = "offline"
)

type Bridge struct {
	mqtt mqtt.Client
	door door.Door
	id   string

	StateTopic        string
	TargetTopic       string
	CurrentCodeTopic  string
	TargetCodeTopic   string
	ConfidenceTopic   string
	MetadataTopic     string
	AvailabilityTopic string

	CommandTopic string
}

// NewBridge binds d to topics under garage2mqtt/<id>/. id must be a valid
// topic level.
func NewBridge(client mqtt.Client, id string, d door.Door) *Bridge {
	bridge := &Bridge{mqtt: client, door: d, id: id}
	bridge.StateTopic = topic(id, "state")
	bridge.TargetTopic = topic(id, "target")
	bridge.CurrentCodeTopic = topic(id, "current_code")
	bridge.TargetCodeTopic = topic(id, "target_code")
	bridge.ConfidenceTopic = topic(id, "confidence")
	bridge.MetadataTopic = topic(id, "metadata")
	bridge.AvailabilityTopic = topic(id, "availability")
	bridge.CommandTopic = topic(id, "set")

	d.OnUpdate(bridge.onDoorUpdateHandler())

	return bridge
}

// AvailabilityTopicFor is known before the client connects, so it can be
// used as the will topic.
func AvailabilityTopicFor(id string) string {
	return topic(id, "availability")
}

func topic(id, leaf string) string {
	return fmt.Sprintf("%s/%s/%s", TopicRoot, id, leaf)
}

func (b *Bridge) ID() string {
	return b.id
}

// SetMetadata publishes free-form door details (location, wiring notes) as
// retained JSON. Nothing is published for empty metadata.
func (b *Bridge) SetMetadata(value map[string]string) error {
	if len(value) == 0 {
		return nil
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}

	if token := b.mqtt.Publish(b.MetadataTopic, 0, true, payload); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "%s: MQTT metadata publish failed", b.door.Name())
	}

	return nil
}

// PublishState publishes the full door state, as needed after (re)connect.
func (b *Bridge) PublishState() error {
	if err := b.publish(b.AvailabilityTopic, AvailabilityOnline); err != nil {
		return err
	}
	if err := b.publish(b.ConfidenceTopic, string(b.door.Confidence())); err != nil {
		return err
	}

	b.publishStates(b.door.CurrentState(), b.door.TargetState())
	return nil
}

// PublishOffline marks the door unavailable before a clean disconnect.
func (b *Bridge) PublishOffline() error {
	return b.publish(b.AvailabilityTopic, AvailabilityOffline)
}

func (b *Bridge) Subscribe(ctx context.Context) error {
	if token := b.mqtt.Subscribe(b.CommandTopic, 0, b.onCommandHandler()); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "%s: MQTT command topic subscription failed", b.door.Name())
	}
	logrus.Infof("%s: MQTT command topic subscribed", b.door.Name())

	go func() {
		<-ctx.Done()
		if token := b.mqtt.Unsubscribe(b.CommandTopic); token.Wait() && token.Error() != nil {
			logrus.Errorf("%s: MQTT topics unsubscribe failed: %s", b.door.Name(), token.Error())
		}
	}()

	return nil
}

func (b *Bridge) publish(topic string, payload string) error {
	if token := b.mqtt.Publish(topic, 0, true, payload); token.Wait() && token.Error() != nil {
		return errors.Wrapf(token.Error(), "%s: MQTT publish to %s failed", b.door.Name(), topic)
	}
	return nil
}

func (b *Bridge) publishStates(current, target door.State) {
	for _, m := range []struct {
		topic   string
		payload string
	}{
		{b.StateTopic, current.String()},
		{b.TargetTopic, target.String()},
		{b.CurrentCodeTopic, strconv.Itoa(int(current))},
		{b.TargetCodeTopic, strconv.Itoa(int(target))},
	} {
		if err := b.publish(m.topic, m.payload); err != nil {
			logrus.Error(err)
		}
	}
}

func (b *Bridge) onDoorUpdateHandler() door.UpdateHandler {
	return func(current, target door.State) {
		b.publishStates(current, target)
	}
}

func (b *Bridge) onCommandHandler() mqtt.MessageHandler {
	return func(c mqtt.Client, msg mqtt.Message) {
		cmd := string(msg.Payload())
		target, err := door.ParseState(cmd)
		if err != nil {
			logrus.Errorf("%s: MQTT unsupported %q command received: %s", b.door.Name(), cmd, err)
			return
		}

		if err := b.door.SetTargetState(target); err != nil {
			logrus.Errorf("%s: MQTT command %s failed: %s", b.door.Name(), cmd, err)
		}
	}
}
