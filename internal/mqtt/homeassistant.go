package mqtt

import (
	"encoding/json"
	"fmt"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/garage2mqtt/internal/door"
)

type haDevice struct {
	Identifiers  []string `json:"ids,omitempty"`
	Manufacturer string   `json:"mf,omitempty"`
	Model        string   `json:"mdl,omitempty"`
	Name         string   `json:"name,omitempty"`
	SWVersion    string   `json:"sw,omitempty"`
}

type haEntity struct {
	AvailabilityTopic string `json:"avty_t,omitempty"`
	UniqueID          string `json:"uniq_id,omitempty"`
	Name              string `json:"name,omitempty"`
	DeviceClass       string `json:"device_class,omitempty"`

	Device haDevice `json:"device,omitempty"`
}

type haCover struct {
	haEntity
	StateTopic   string `json:"stat_t"`
	CommandTopic string `json:"cmd_t"`
	PayloadOpen  string `json:"pl_open"`
	PayloadStop  string `json:"pl_stop"`
	PayloadClose string `json:"pl_cls"`
	StateOpen    string `json:"stat_open"`
	StateOpening string `json:"stat_opening"`
	StateClosed  string `json:"stat_clsd"`
	StateClosing string `json:"stat_closing"`
	StateStopped string `json:"stat_stopped"`
	Optimistic   bool   `json:"opt"`
}

// DeviceInfo describes the physical device in discovery payloads.
type DeviceInfo struct {
	Manufacturer string
	Model        string
	SWVersion    string
}

func NewHACoverFromMQTTBridge(bridge *Bridge, info DeviceInfo) haCover {
	return haCover{
		haEntity: haEntity{
			AvailabilityTopic: bridge.AvailabilityTopic,
			UniqueID:          TopicRoot + "_" + bridge.ID(),
			Name:              bridge.door.Name(),
			DeviceClass:       "garage",

			Device: haDevice{
				Identifiers:  []string{TopicRoot + "_" + bridge.ID()},
				Manufacturer: info.Manufacturer,
				Model:        info.Model,
				Name:         bridge.door.Name(),
				SWVersion:    info.SWVersion,
			},
		},
		StateTopic:   bridge.StateTopic,
		CommandTopic: bridge.CommandTopic,
		PayloadOpen:  door.OpenCmd,
		PayloadStop:  door.StopCmd,
		PayloadClose: door.CloseCmd,
		StateOpen:    door.DoorOpenState,
		StateOpening: door.DoorOpeningState,
		StateClosed:  door.DoorClosedState,
		StateClosing: door.DoorClosingState,
		StateStopped: door.DoorStoppedState,
		Optimistic:   false,
	}
}

func DiscoveryTopic(homeAssistantDiscoveryTopicPrefix string, id string) string {
	return fmt.Sprintf("%s/cover/%s/%s/config", homeAssistantDiscoveryTopicPrefix, TopicRoot, id)
}

func PublishHAAutoDiscovery(client paho.Client, homeAssistantDiscoveryTopicPrefix string, bridge *Bridge, haCover haCover) error {
	payload, err := json.Marshal(haCover)
	if err != nil {
		return err
	}

	topic := DiscoveryTopic(homeAssistantDiscoveryTopicPrefix, bridge.ID())
	if token := client.Publish(topic, 0, true, payload); token.Wait() && token.Error() != nil {
		return token.Error()
	}

	return nil
}
