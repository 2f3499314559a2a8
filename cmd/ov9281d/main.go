// ov9281d exposes one OV9281 sensor over MQTT.
//
// Topics, relative to the configured prefix:
//
//	<prefix>/set/<control>  accepts an integer control value
//	<prefix>/stream         accepts on/off
//	<prefix>/power          accepts on/off
//	<prefix>/state          retained state document, published by the daemon
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/opencam/ov9281"
	"github.com/opencam/ov9281/bridge"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	broker := flag.String("broker", "", "MQTT broker URL (overrides config)")
	topic := flag.String("topic", "", "MQTT topic prefix (overrides config)")
	busName := flag.String("bus", "", "i2c bus name (overrides config)")
	bridgePort := flag.String("bridge", "", "serial bridge port, \"auto\" to detect (overrides config)")
	logLevel := flag.String("log-level", "", "debug, info, warn or error (overrides config)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *broker != "" {
		cfg.Broker = *broker
	}
	if *topic != "" {
		cfg.Topic = *topic
	}
	if *busName != "" {
		cfg.Bus = *busName
	}
	if *bridgePort != "" {
		cfg.BridgePort = *bridgePort
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	level, err := cfg.logLevel()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("ov9281d failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg config, logger *slog.Logger) error {
	bus, closeBus, err := openBus(cfg)
	if err != nil {
		return err
	}
	defer closeBus()

	cam, err := ov9281.Open(bus, &ov9281.Opts{Addr: cfg.Addr, Logger: logger})
	if err != nil {
		return err
	}
	defer cam.Close()

	d := &daemon{cam: cam, topic: cfg.Topic, log: logger}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(fmt.Sprintf("%s-%s", cfg.ClientID, uuid.NewString()[:8]))
	opts.SetAutoReconnect(true)
	// Resubscribe after every (re)connect and announce the state.
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		d.subscribe(c)
		d.publishState(c)
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to broker: %w", token.Error())
	}
	defer client.Disconnect(250)

	logger.Info("ov9281d running", "broker", cfg.Broker, "topic", cfg.Topic, "sensor", cam.String())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	if err := cam.SetStreaming(false); err != nil {
		logger.Warn("failed to stop streaming", "err", err)
	}
	if err := cam.SetPower(false); err != nil {
		logger.Warn("failed to power down", "err", err)
	}
	return nil
}

// openBus picks the transport: a serial register bridge when
// configured, the host's i2c bus otherwise.
func openBus(cfg config) (i2c.Bus, func(), error) {
	if cfg.BridgePort != "" {
		port := cfg.BridgePort
		if port == "auto" {
			port = ""
		}
		b, err := bridge.Open(port)
		if err != nil {
			return nil, nil, err
		}
		return b, func() { b.Close() }, nil
	}

	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("failed to init host: %w", err)
	}
	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open i2c bus: %w", err)
	}
	return bus, func() { bus.Close() }, nil
}

type daemon struct {
	cam   *ov9281.OV9281
	topic string
	log   *slog.Logger
}

var controlNames = map[string]ov9281.ControlID{
	"link-freq":    ov9281.ControlLinkFreq,
	"pixel-rate":   ov9281.ControlPixelRate,
	"hblank":       ov9281.ControlHBlank,
	"vblank":       ov9281.ControlVBlank,
	"exposure":     ov9281.ControlExposure,
	"analog-gain":  ov9281.ControlAnalogGain,
	"test-pattern": ov9281.ControlTestPattern,
}

func (d *daemon) subscribe(c mqtt.Client) {
	subs := map[string]mqtt.MessageHandler{
		d.topic + "/set/+":  d.handleSet,
		d.topic + "/stream": d.handleStream,
		d.topic + "/power":  d.handlePower,
	}
	for t, h := range subs {
		if token := c.Subscribe(t, 1, h); token.Wait() && token.Error() != nil {
			d.log.Error("failed to subscribe", "topic", t, "err", token.Error())
		}
	}
}

func (d *daemon) handleSet(c mqtt.Client, msg mqtt.Message) {
	name := msg.Topic()[strings.LastIndex(msg.Topic(), "/")+1:]
	id, ok := controlNames[name]
	if !ok {
		d.log.Warn("unknown control", "name", name)
		return
	}

	value, err := strconv.ParseInt(strings.TrimSpace(string(msg.Payload())), 10, 64)
	if err != nil {
		d.log.Warn("invalid control value", "control", name, "payload", string(msg.Payload()))
		return
	}

	if err := d.cam.SetControl(id, value); err != nil {
		d.log.Warn("failed to set control", "control", name, "value", value, "err", err)
		return
	}
	d.log.Debug("control set", "control", name, "value", value)
	d.publishState(c)
}

func (d *daemon) handleStream(c mqtt.Client, msg mqtt.Message) {
	on, err := parseOnOff(string(msg.Payload()))
	if err != nil {
		d.log.Warn("invalid stream command", "payload", string(msg.Payload()))
		return
	}
	if err := d.cam.SetStreaming(on); err != nil {
		d.log.Error("failed to switch stream", "on", on, "err", err)
		return
	}
	d.log.Info("stream switched", "on", on)
	d.publishState(c)
}

func (d *daemon) handlePower(c mqtt.Client, msg mqtt.Message) {
	on, err := parseOnOff(string(msg.Payload()))
	if err != nil {
		d.log.Warn("invalid power command", "payload", string(msg.Payload()))
		return
	}
	if err := d.cam.SetPower(on); err != nil {
		d.log.Error("failed to switch power", "on", on, "err", err)
		return
	}
	d.log.Info("power switched", "on", on)
	d.publishState(c)
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "1", "true", "start":
		return true, nil
	case "off", "0", "false", "stop":
		return false, nil
	}
	return false, fmt.Errorf("invalid on/off value %q", s)
}

type formatState struct {
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
	Code   string `json:"code"`
}

type controlState struct {
	Value   int64 `json:"value"`
	Min     int64 `json:"min"`
	Max     int64 `json:"max"`
	Step    int64 `json:"step"`
	Default int64 `json:"default"`
}

type stateDoc struct {
	Format       formatState             `json:"format"`
	Controls     map[string]controlState `json:"controls"`
	Streaming    bool                    `json:"streaming"`
	Powered      bool                    `json:"powered"`
	TestPatterns []string                `json:"test_patterns"`
}

func (d *daemon) publishState(c mqtt.Client) {
	f := d.cam.GetFormat(false)
	doc := stateDoc{
		Format: formatState{
			Width:  f.Width,
			Height: f.Height,
			Code:   fmt.Sprintf("0x%04x", uint32(f.Code)),
		},
		Controls:     make(map[string]controlState, len(controlNames)),
		Streaming:    d.cam.Streaming(),
		Powered:      d.cam.Powered(),
		TestPatterns: d.cam.TestPatternModes(),
	}

	for name, id := range controlNames {
		value, err := d.cam.GetControl(id)
		if err != nil {
			continue
		}
		r, err := d.cam.ControlRange(id)
		if err != nil {
			continue
		}
		doc.Controls[name] = controlState{
			Value:   value,
			Min:     r.Min,
			Max:     r.Max,
			Step:    r.Step,
			Default: r.Def,
		}
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		d.log.Error("failed to marshal state", "err", err)
		return
	}
	if token := c.Publish(d.topic+"/state", 1, true, payload); token.Wait() && token.Error() != nil {
		d.log.Warn("failed to publish state", "err", token.Error())
	}
}
