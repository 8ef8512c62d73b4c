package eightsleep

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/joshp123/gobed/internal/config"
)

const mqttConnectTimeout = 10 * time.Second

// MQTTPublisher pushes retained per-side state messages so automation
// consumers see the latest thermostat view without polling us. Publish-only;
// commands come in over HTTP.
type MQTTPublisher struct {
	client mqtt.Client
	prefix string
}

// NewMQTTPublisher connects to the broker. A connect failure is returned to
// the caller; the plugin degrades rather than crashing on a broker outage.
func NewMQTTPublisher(cfg *config.MQTTConfig) (*MQTTPublisher, error) {
	if cfg == nil || cfg.Host == "" {
		return nil, nil
	}

	scheme := "tcp"
	if cfg.TLS {
		scheme = "ssl"
	}
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port)).
		SetClientID("gobed-eightsleep").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectTimeout(mqttConnectTimeout).
		SetOrderMatters(false)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetOnConnectHandler(func(mqtt.Client) {
		slog.Info("mqtt connected", "host", cfg.Host)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("mqtt connection lost", "error", err)
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect timed out after %s", mqttConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "gobed"
	}
	return &MQTTPublisher{client: client, prefix: prefix}, nil
}

// PublishSideState publishes the side's state as a retained JSON message.
func (p *MQTTPublisher) PublishSideState(side Side, status SideStatus) {
	if p == nil {
		return
	}
	payload, err := json.Marshal(status)
	if err != nil {
		slog.Error("marshal mqtt state", "side", side, "error", err)
		return
	}
	topic := fmt.Sprintf("%s/eightsleep/%s/state", p.prefix, side)
	token := p.client.Publish(topic, 0, true, payload)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			slog.Warn("mqtt publish failed", "topic", topic, "error", err)
		}
	}()
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	if p == nil {
		return
	}
	p.client.Disconnect(250)
}
