// internal/mqttclient/mqttclient.go
package mqttclient

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type Client struct {
	client mqtt.Client
	wait   time.Duration
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	ClientID string
}

// ConfigFromEnv lê MQTT_HOST, MQTT_PORT, MQTT_USERNAME, MQTT_PASSWORD e MQTT_CLIENT_ID.
func ConfigFromEnv(defaultClientID string) Config {
	return Config{
		Host:     getenv("MQTT_HOST", "localhost"),
		Port:     getenvInt("MQTT_PORT", 1883),
		Username: os.Getenv("MQTT_USERNAME"),
		Password: os.Getenv("MQTT_PASSWORD"),
		ClientID: getenv("MQTT_CLIENT_ID", defaultClientID),
	}
}

func NewClientFromEnv(defaultClientID string) (*Client, error) {
	return NewClient(ConfigFromEnv(defaultClientID))
}

func (c Config) Broker() string {
	return fmt.Sprintf("tcp://%s:%d", c.Host, c.Port)
}

func NewClient(cfg Config) (*Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker())
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("mqtt connection lost", "component", "mqtt", "err", err)
	})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	cli := mqtt.NewClient(opts)
	token := cli.Connect()
	if ok := token.WaitTimeout(10 * time.Second); !ok {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect error: %w", err)
	}

	slog.Info("mqtt connected", "component", "mqtt", "broker", cfg.Broker(), "client_id", cfg.ClientID)
	return &Client{client: cli, wait: 5 * time.Second}, nil
}

// Publish espera no máximo alguns segundos pelo ack; broker fora do ar
// não pode travar o ciclo de captura.
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(c.wait) {
		return fmt.Errorf("mqtt publish timeout on %s", topic)
	}
	return token.Error()
}

func (c *Client) PublishJSON(topic string, retained bool, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}
	return c.Publish(topic, 1, retained, b)
}

func (c *Client) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	token := c.client.Subscribe(topic, qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	token.Wait()
	return token.Error()
}

func (c *Client) Close() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if x, err := strconv.Atoi(os.Getenv(key)); err == nil && x > 0 {
		return x
	}
	return def
}
