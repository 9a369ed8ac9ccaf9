package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/garage2mqtt/internal/door"
	"github.com/jkaflik/garage2mqtt/internal/homekit"
	"github.com/jkaflik/garage2mqtt/internal/mqtt"
	"github.com/sirupsen/logrus"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		DisableColors: false,
		FullTimestamp: true,
	})

	configPath := flag.String("config", "config.yaml", "config file path (.yaml or .toml)")
	flag.Parse()

	if err := newConfigLoader().Load(); err != nil {
		logrus.Fatal(err)
	}
	if err := loadConfigFromFile(*configPath); err != nil {
		logrus.Error(err)
	}

	level, err := logrus.ParseLevel(Cfg.LogLevel)
	if err != nil {
		logrus.Fatal(err)
	}
	logrus.SetLevel(level)
	routePahoLogs()

	garage, err := doorFromConfig(Cfg.Door)
	if err != nil {
		logrus.Fatal(err)
	}
	garage.OnError(func(err error) {
		logrus.Warnf("%s: door state is assumed, button press may not have happened: %s", garage.Name(), err)
	})
	logrus.Infof("%s: initialized, current %s, target %s", garage.Name(), garage.CurrentState(), garage.TargetState())

	ctx, cancel := context.WithCancel(context.Background())
	var bridge *mqtt.Bridge
	cfg := pahoOptsFromConfig()
	cfg.OnConnect = func(m paho.Client) {
		logrus.Info("MQTT broker connected")
		if bridge != nil {
			subscribe(ctx, m, bridge)
		}
	}
	cfg.OnConnectionLost = func(_ paho.Client, err error) {
		logrus.Errorf("MQTT broker connection lost: %s", err.Error())
	}

	m := paho.NewClient(cfg)
	bridge = mqtt.NewBridge(m, Cfg.Door.ID, garage)
	if token := m.Connect(); token.Wait() && token.Error() != nil {
		logrus.Fatal(token.Error())
	}

	if Cfg.HAP.Enabled {
		go runHomeKit(ctx, homekit.NewAccessory(garage, homekitConfig()))
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		oscall := <-c
		log.Printf("system call:%+v", oscall)
		cancel()
	}()

	<-ctx.Done()

	shutdown(m, bridge, garage)
}

func subscribe(ctx context.Context, m paho.Client, bridge *mqtt.Bridge) {
	if Cfg.HASS.Enabled {
		entity := mqtt.NewHACoverFromMQTTBridge(bridge, mqtt.DeviceInfo{
			Manufacturer: Cfg.HAP.Manufacturer,
			Model:        Cfg.HAP.Model,
			SWVersion:    mqtt.TopicRoot + " " + version,
		})
		if err := mqtt.PublishHAAutoDiscovery(m, Cfg.HASS.TopicPrefix, bridge, entity); err != nil {
			logrus.Error(err)
		}
	}

	if err := bridge.SetMetadata(Cfg.Door.Metadata); err != nil {
		logrus.Error(err)
	}

	if err := bridge.Subscribe(ctx); err != nil {
		logrus.Error(err)
	}

	if err := bridge.PublishState(); err != nil {
		logrus.Error(err)
	}
}

// shutdown releases the relay before anything else, so the button is never
// left pressed.
func shutdown(m paho.Client, bridge *mqtt.Bridge, d door.Door) {
	if err := d.Shutdown(); err != nil {
		logrus.Errorf("%s: shutdown failed: %s", d.Name(), err)
	}
	closeMcp23017Devices()

	if m.IsConnected() {
		if err := bridge.PublishOffline(); err != nil {
			logrus.Error(err)
		}
		m.Disconnect(250)
	}

	logrus.Info("bye")
}
