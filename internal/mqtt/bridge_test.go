package mqtt

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/garage2mqtt/internal/door"
	"github.com/jkaflik/garage2mqtt/internal/door/driver/relay"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeToken struct {
	paho.Token
	err error
}

func (t *fakeToken) Wait() bool   { return true }
func (t *fakeToken) Error() error { return t.err }

type fakeMessage struct {
	paho.Message
	topic   string
	payload []byte
}

func (m *fakeMessage) Topic() string   { return m.topic }
func (m *fakeMessage) Payload() []byte { return m.payload }

// fakeClient records publishes and keeps subscription handlers. Methods not
// overridden panic through the nil embedded interface.
type fakeClient struct {
	paho.Client

	mu            sync.Mutex
	published     map[string]string
	handlers      map[string]paho.MessageHandler
	unsubscribed  []string
	unsubscribeCh chan struct{}
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		published:     map[string]string{},
		handlers:      map[string]paho.MessageHandler{},
		unsubscribeCh: make(chan struct{}, 1),
	}
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch p := payload.(type) {
	case string:
		c.published[topic] = p
	case []byte:
		c.published[topic] = string(p)
	}
	return &fakeToken{}
}

func (c *fakeClient) Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers[topic] = callback
	return &fakeToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.unsubscribed = append(c.unsubscribed, topics...)
	c.unsubscribeCh <- struct{}{}
	return &fakeToken{}
}

func (c *fakeClient) Published(topic string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.published[topic]
}

func (c *fakeClient) deliver(topic string, payload string) {
	c.mu.Lock()
	h := c.handlers[topic]
	c.mu.Unlock()

	h(c, &fakeMessage{topic: topic, payload: []byte(payload)})
}

func newTestBridge(t *testing.T) (*fakeClient, *relay.Dumb, *relay.RelayDoor, *Bridge) {
	t.Helper()

	r := &relay.Dumb{Name: "test"}
	d := relay.NewRelayDoor("Garage Door", r, time.Millisecond, time.Millisecond*20)
	t.Cleanup(func() { d.Shutdown() })

	client := newFakeClient()
	return client, r, d, NewBridge(client, "garage", d)
}

func TestBridgeTopics(t *testing.T) {
	_, _, _, b := newTestBridge(t)

	assert.Equal(t, "garage2mqtt/garage/state", b.StateTopic)
	assert.Equal(t, "garage2mqtt/garage/target", b.TargetTopic)
	assert.Equal(t, "garage2mqtt/garage/current_code", b.CurrentCodeTopic)
	assert.Equal(t, "garage2mqtt/garage/target_code", b.TargetCodeTopic)
	assert.Equal(t, "garage2mqtt/garage/confidence", b.ConfidenceTopic)
	assert.Equal(t, "garage2mqtt/garage/metadata", b.MetadataTopic)
	assert.Equal(t, "garage2mqtt/garage/set", b.CommandTopic)
	assert.Equal(t, AvailabilityTopicFor("garage"), b.AvailabilityTopic)
}

func TestBridgePublishState(t *testing.T) {
	client, _, _, b := newTestBridge(t)

	require.NoError(t, b.PublishState())

	assert.Equal(t, AvailabilityOnline, client.Published(b.AvailabilityTopic))
	assert.Equal(t, "assumed", client.Published(b.ConfidenceTopic))
	assert.Equal(t, "closed", client.Published(b.StateTopic))
	assert.Equal(t, "closed", client.Published(b.TargetTopic))
	assert.Equal(t, "1", client.Published(b.CurrentCodeTopic))
	assert.Equal(t, "1", client.Published(b.TargetCodeTopic))

	require.NoError(t, b.PublishOffline())
	assert.Equal(t, AvailabilityOffline, client.Published(b.AvailabilityTopic))
}

func TestBridgeSetMetadata(t *testing.T) {
	t.Run("metadata is published as json", func(t *testing.T) {
		client, _, _, b := newTestBridge(t)

		require.NoError(t, b.SetMetadata(map[string]string{"location": "north wall", "opener": "Chamberlain"}))
		assert.JSONEq(t, `{"location":"north wall","opener":"Chamberlain"}`, client.Published(b.MetadataTopic))
	})

	t.Run("empty metadata publishes nothing", func(t *testing.T) {
		client, _, _, b := newTestBridge(t)

		require.NoError(t, b.SetMetadata(nil))
		assert.Empty(t, client.Published(b.MetadataTopic))
	})
}

func TestBridgeCommands(t *testing.T) {
	t.Run("open command presses and publishes opening then open", func(t *testing.T) {
		client, r, d, b := newTestBridge(t)
		require.NoError(t, b.Subscribe(context.Background()))

		client.deliver(b.CommandTopic, "open")

		assert.Equal(t, "opening", client.Published(b.StateTopic))
		assert.Equal(t, "open", client.Published(b.TargetTopic))
		assert.Equal(t, "2", client.Published(b.CurrentCodeTopic))
		assert.Equal(t, "0", client.Published(b.TargetCodeTopic))

		require.Eventually(t, func() bool { return d.CurrentState() == door.Open }, time.Second, time.Millisecond)
		assert.Equal(t, "open", client.Published(b.StateTopic))
		require.Eventually(t, func() bool { return r.Presses() == 1 }, time.Second, time.Millisecond)
	})

	t.Run("numeric codes are accepted", func(t *testing.T) {
		client, _, d, b := newTestBridge(t)
		require.NoError(t, b.Subscribe(context.Background()))

		client.deliver(b.CommandTopic, "2")

		assert.Equal(t, door.Open, d.CurrentState())
		assert.Equal(t, door.Opening, d.TargetState())
	})

	t.Run("unknown command leaves the door alone", func(t *testing.T) {
		client, r, d, b := newTestBridge(t)
		require.NoError(t, b.Subscribe(context.Background()))

		client.deliver(b.CommandTopic, "ajar")
		client.deliver(b.CommandTopic, "9")

		assert.Equal(t, door.Closed, d.CurrentState())
		assert.Equal(t, door.Closed, d.TargetState())
		assert.Equal(t, int64(0), r.Presses())
		assert.Empty(t, client.Published(b.StateTopic))
	})
}

func TestBridgeUnsubscribeOnDone(t *testing.T) {
	client, _, _, b := newTestBridge(t)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, b.Subscribe(ctx))
	cancel()

	select {
	case <-client.unsubscribeCh:
	case <-time.After(time.Second):
		t.Fatal("command topic was not unsubscribed")
	}
	assert.Equal(t, []string{b.CommandTopic}, client.unsubscribed)
}

func TestHAAutoDiscovery(t *testing.T) {
	client, _, _, b := newTestBridge(t)

	cover := NewHACoverFromMQTTBridge(b, DeviceInfo{Manufacturer: "garage2mqtt", Model: "relay", SWVersion: "dev"})
	require.NoError(t, PublishHAAutoDiscovery(client, "homeassistant", b, cover))

	raw := client.Published("homeassistant/cover/garage2mqtt/garage/config")
	require.NotEmpty(t, raw)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(raw), &payload))

	assert.Equal(t, "garage", payload["device_class"])
	assert.Equal(t, "Garage Door", payload["name"])
	assert.Equal(t, "garage2mqtt_garage", payload["uniq_id"])
	assert.Equal(t, b.StateTopic, payload["stat_t"])
	assert.Equal(t, b.CommandTopic, payload["cmd_t"])
	assert.Equal(t, b.AvailabilityTopic, payload["avty_t"])
	assert.Equal(t, "close", payload["pl_cls"])
	assert.Equal(t, "stopped", payload["stat_stopped"])
}
