package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/cristalhq/aconfig"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/jkaflik/garage2mqtt/internal/door/driver/relay"
	"github.com/jkaflik/garage2mqtt/internal/homekit"
	"github.com/jkaflik/garage2mqtt/internal/mqtt"
	"github.com/pkg/errors"
	"github.com/racerxdl/go-mcp23017"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

type cfgWiredRelaySetPin struct {
	Kind string `yaml:"kind" toml:"kind" default:"cdev"`

	Chip string `yaml:"chip" toml:"chip" default:"gpiochip0"`
	Pin  uint8  `yaml:"pin" toml:"pin" default:"26"`

	Mcp23017 int `yaml:"mcp23017" toml:"mcp23017"`
}

type cfgRelay struct {
	Kind string `yaml:"kind" toml:"kind" default:"wired"`

	Pin       cfgWiredRelaySetPin `yaml:"pin" toml:"pin"`
	ActiveLow bool                `yaml:"active_low" toml:"active_low"`
}

type cfgDoor struct {
	ID   string `yaml:"id" toml:"id" default:"garage" env:"ID"`
	Name string `yaml:"name" toml:"name" default:"Garage Door" env:"NAME"`

	PulseDuration time.Duration `yaml:"pulse_duration" toml:"pulse_duration" default:"100ms"`
	TravelTime    time.Duration `yaml:"travel_time" toml:"travel_time" default:"5s"`

	Metadata map[string]string `yaml:"metadata" toml:"metadata"`

	Relay cfgRelay `yaml:"relay" toml:"relay"`
}

type cfgMcp23017 struct {
	Bus          uint8 `yaml:"bus" toml:"bus"`
	DeviceNumber uint8 `yaml:"device_number" toml:"device_number"`
}

type cfgDrivers struct {
	Relay struct {
		Pool     int                 `yaml:"pool" toml:"pool" default:"0"`
		Mcp23017 map[int]cfgMcp23017 `yaml:"mcp23017" toml:"mcp23017"`
	} `yaml:"relay" toml:"relay"`
}

type cfgMQTT struct {
	ClientID string `yaml:"client_id" toml:"client_id" env:"CLIENT_ID"`
	Broker   string `yaml:"broker" toml:"broker" default:"127.0.0.1:1883" env:"BROKER"`
	Username string `yaml:"username" toml:"username" env:"USERNAME"`
	Password string `yaml:"password" toml:"password" env:"PASSWORD"`
}

type cfgHASS struct {
	Enabled     bool   `yaml:"enabled" toml:"enabled" default:"true" env:"ENABLED"`
	TopicPrefix string `yaml:"topic_prefix" toml:"topic_prefix" default:"homeassistant" env:"TOPIC_PREFIX"`
}

type cfgHAP struct {
	Enabled      bool   `yaml:"enabled" toml:"enabled" default:"false" env:"ENABLED"`
	Pin          string `yaml:"pin" toml:"pin" default:"00102003" env:"PIN"`
	Port         string `yaml:"port" toml:"port" env:"PORT"`
	StoragePath  string `yaml:"storage_path" toml:"storage_path" default:"hap" env:"STORAGE_PATH"`
	Manufacturer string `yaml:"manufacturer" toml:"manufacturer" default:"Custom Manufacturer"`
	Model        string `yaml:"model" toml:"model" default:"Custom Model"`
}

type config struct {
	LogLevel string `yaml:"log_level" toml:"log_level" default:"info" env:"LOG_LEVEL"`

	MQTT cfgMQTT `yaml:"mqtt" toml:"mqtt" env:"MQTT"`
	HASS cfgHASS `yaml:"hass" toml:"hass" env:"HASS"`
	HAP  cfgHAP  `yaml:"hap" toml:"hap" env:"HAP"`

	Door cfgDoor `yaml:"door" toml:"door" env:"DOOR"`

	Drivers cfgDrivers `yaml:"drivers" toml:"drivers"`
}

var Cfg config

// newConfigLoader reads the environment at construction, so it must be
// built right before Load.
func newConfigLoader() *aconfig.Loader {
	return aconfig.LoaderFor(&Cfg, aconfig.Config{
		EnvPrefix: "G2M",
		SkipFlags: true,
	})
}

var relaysPool chan struct{}

var version = "dev"

// loadConfigFromFile overlays a YAML or TOML file, chosen by extension, on
// top of defaults and environment.
func loadConfigFromFile(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".toml":
		if _, err := toml.NewDecoder(f).Decode(&Cfg); err != nil {
			return errors.Wrapf(err, "decode %s", filename)
		}
	default:
		if err := yaml.NewDecoder(f).Decode(&Cfg); err != nil {
			return errors.Wrapf(err, "decode %s", filename)
		}
	}

	return nil
}

// relaysPoolFromConfig runs after defaults, environment and file are all
// loaded.
func relaysPoolFromConfig() {
	if relaysPool == nil && Cfg.Drivers.Relay.Pool > 0 {
		relaysPool = make(chan struct{}, Cfg.Drivers.Relay.Pool)
	}
}

func clientID() string {
	if Cfg.MQTT.ClientID != "" {
		return Cfg.MQTT.ClientID
	}

	return mqtt.TopicRoot + "-" + uuid.NewString()[:8]
}

func pahoOptsFromConfig() *paho.ClientOptions {
	return paho.NewClientOptions().
		SetClientID(clientID()).
		AddBroker(Cfg.MQTT.Broker).
		SetUsername(Cfg.MQTT.Username).
		SetPassword(Cfg.MQTT.Password).
		SetConnectTimeout(time.Second).
		SetPingTimeout(time.Second).
		SetWriteTimeout(time.Second).
		SetWill(mqtt.AvailabilityTopicFor(Cfg.Door.ID), mqtt.AvailabilityOffline, 0, true).
		SetAutoReconnect(true)
}

func homekitConfig() homekit.Config {
	return homekit.Config{
		Pin:          Cfg.HAP.Pin,
		Port:         Cfg.HAP.Port,
		StoragePath:  Cfg.HAP.StoragePath,
		Manufacturer: Cfg.HAP.Manufacturer,
		Model:        Cfg.HAP.Model,
		SerialNumber: Cfg.Door.ID,
		Firmware:     version,
	}
}

func doorFromConfig(cfg cfgDoor) (*relay.RelayDoor, error) {
	relaysPoolFromConfig()

	r, err := relayFromConfig(cfg.Relay)
	if err != nil {
		return nil, err
	}

	return relay.NewRelayDoor(cfg.Name, r, cfg.PulseDuration, cfg.TravelTime), nil
}

func relayFromConfig(cfg cfgRelay) (relay.Relay, error) {
	switch cfg.Kind {
	case "wired":
		pin, err := wiredRelaySetPinFromConfig(cfg.Pin, cfg.ActiveLow)
		if err != nil {
			return nil, errors.Wrapf(relay.ErrHardwareUnavailable, "pin %s: %s", cfg.Pin.Kind, err)
		}

		w, err := relay.NewWired(pin, cfg.ActiveLow)
		if err != nil {
			return nil, err
		}
		return wrapRelayWithPoolProxy(w), nil
	case "dumb":
		return wrapRelayWithPoolProxy(&relay.Dumb{Name: Cfg.Door.ID}), nil
	}

	return nil, errors.Errorf("%s is not supported relay kind", cfg.Kind)
}

func wrapRelayWithPoolProxy(r relay.Relay) relay.Relay {
	if relaysPool == nil {
		return r
	}

	return relay.NewPoolProxy(r, relaysPool)
}

func wiredRelaySetPinFromConfig(cfg cfgWiredRelaySetPin, activeLow bool) (relay.SetPin, error) {
	switch cfg.Kind {
	case "cdev":
		rest := 0
		if activeLow {
			rest = 1
		}
		return relay.NewCdevPin(cfg.Chip, int(cfg.Pin), rest)
	case "bcm":
		return relay.NewBcmPin(cfg.Pin)
	case "mcp23017":
		device, err := mcp23017DeviceFromConfigByID(cfg.Mcp23017)
		if err != nil {
			return nil, err
		}
		return relay.NewMcp23017Pin(device, cfg.Pin)
	}

	return nil, errors.Errorf("%s is not supported wired relay set pin kind", cfg.Kind)
}

var mcpDevices = map[int]*mcp23017.Device{}

func mcp23017DeviceFromConfigByID(id int) (*mcp23017.Device, error) {
	cfg, found := Cfg.Drivers.Relay.Mcp23017[id]
	if !found {
		return nil, errors.Errorf("%d is not valid defined drivers.relay.mcp23017", id)
	}

	dev := mcpDevices[id]
	if dev == nil {
		var err error
		dev, err = mcp23017.Open(cfg.Bus, cfg.DeviceNumber)
		if err != nil {
			return nil, errors.Wrapf(err, "mcp23017 %d: open", id)
		}
		if err := dev.Reset(); err != nil {
			return nil, errors.Wrapf(err, "mcp23017 %d: reset", id)
		}

		mcpDevices[id] = dev
	}

	return dev, nil
}

// closeMcp23017Devices must run after the relays using them are shut down.
func closeMcp23017Devices() {
	for id, dev := range mcpDevices {
		if err := dev.Close(); err != nil {
			logrus.Errorf("mcp23017 %d: close failed %s", id, err)
			continue
		}
		logrus.Infof("mcp23017 %d: close", id)
	}
}

func runHomeKit(ctx context.Context, a *homekit.Accessory) {
	if err := a.Run(ctx); err != nil {
		logrus.Error(err)
	}
}
