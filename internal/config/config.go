// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sua-org/cam-timelapse/internal/core"
	"github.com/sua-org/cam-timelapse/internal/layout"
)

const EnvPrefix = "UNIFI_TIMELAPSE"

// Config holds all application configuration.
// Tempos vêm em segundos, como no .env de produção.
type Config struct {
	CameraList      string `mapstructure:"cameras"`
	Domain          string `mapstructure:"domain"`
	URLPattern      string `mapstructure:"url_pattern"`
	ImageOutputPath string `mapstructure:"image_output_path"`

	FetchInterval   int `mapstructure:"fetch_interval"`
	FetchMaxRetries int `mapstructure:"fetch_max_retries"`
	FetchRetryDelay int `mapstructure:"fetch_retry_delay"`
	HTTPTimeout     int `mapstructure:"http_timeout"`
	TaskDeadline    int `mapstructure:"task_deadline"`
	ShutdownGrace   int `mapstructure:"shutdown_grace"`

	LoggingLevel string `mapstructure:"logging_level"`
	InsecureTLS  bool   `mapstructure:"insecure_tls"`

	HTTPAddr      string `mapstructure:"http_addr"`
	MQTTEnabled   bool   `mapstructure:"mqtt_enabled"`
	MQTTBaseTopic string `mapstructure:"mqtt_base_topic"`
	Sinks         string `mapstructure:"sinks"`

	// Devices vem só do YAML; quando presente substitui CameraList.
	Devices []core.Camera `mapstructure:"devices"`

	// Cameras é a lista final, resolvida por Load.
	Cameras []core.Camera `mapstructure:"-"`
}

var defaults = map[string]any{
	"cameras":           "cam-basement,cam-basement-tenlog,cam-frontdoor,cam-garage,cam-lavalamp,cam-pergolanorth,cam-pergolasouth",
	"domain":            "tylephony.com",
	"url_pattern":       "http://{camera_name}.{domain}/snap.jpeg",
	"image_output_path": "output/images",
	"fetch_interval":    60,
	"fetch_max_retries": 3,
	"fetch_retry_delay": 5,
	"http_timeout":      10,
	"task_deadline":     0,
	"shutdown_grace":    5,
	"logging_level":     "INFO",
	"insecure_tls":      true,
	"http_addr":         "",
	"mqtt_enabled":      false,
	"mqtt_base_topic":   "timelapse/cameras",
	"sinks":             "",
}

// NewViper devolve uma instância com defaults, env e arquivo opcional já
// configurados. O chamador pode ligar flags nela antes de LoadFrom.
func NewViper() *viper.Viper {
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	// UNIFI_TIMELAPSE_FETCH_INTERVAL, etc.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv(EnvPrefix + "_CONFIG"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("timelapse")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/cam-timelapse")
	}
	return v
}

// Load reads configuration from environment, config file, and defaults.
func Load() (*Config, error) {
	return LoadFrom(NewViper())
}

func LoadFrom(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// arquivo explícito que não abre é erro; o implícito é opcional
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Cameras = cfg.resolveCameras()
	return &cfg, nil
}

func (c *Config) resolveCameras() []core.Camera {
	if len(c.Devices) > 0 {
		out := make([]core.Camera, 0, len(c.Devices))
		for _, d := range c.Devices {
			d.ID = strings.TrimSpace(d.ID)
			if d.SnapshotURL == "" && d.Host == "" {
				d.SnapshotURL = c.SnapshotURLFor(d.ID)
			}
			out = append(out, d)
		}
		return out
	}

	var out []core.Camera
	for _, name := range parseCSV(c.CameraList) {
		out = append(out, core.Camera{ID: name, SnapshotURL: c.SnapshotURLFor(name)})
	}
	return out
}

// SnapshotURLFor preenche {camera_name} e {domain} no padrão de URL.
func (c *Config) SnapshotURLFor(camera string) string {
	return strings.NewReplacer(
		"{camera_name}", camera,
		"{domain}", c.Domain,
	).Replace(c.URLPattern)
}

// Camera procura uma câmera pelo nome.
func (c *Config) Camera(name string) (core.Camera, bool) {
	for _, cam := range c.Cameras {
		if cam.ID == name {
			return cam, true
		}
	}
	return core.Camera{}, false
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.FetchInterval <= 0 {
		return fmt.Errorf("fetch_interval must be positive")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("http_timeout must be positive")
	}
	if c.FetchMaxRetries < 1 {
		return fmt.Errorf("fetch_max_retries must be at least 1")
	}
	if c.FetchRetryDelay < 0 {
		return fmt.Errorf("fetch_retry_delay must be non-negative")
	}
	if c.TaskDeadline < 0 {
		return fmt.Errorf("task_deadline must be non-negative")
	}
	if c.ShutdownGrace < 0 {
		return fmt.Errorf("shutdown_grace must be non-negative")
	}
	if strings.TrimSpace(c.ImageOutputPath) == "" {
		return fmt.Errorf("image_output_path cannot be empty")
	}
	if len(c.Cameras) == 0 {
		return fmt.Errorf("no cameras configured")
	}
	seen := make(map[string]bool, len(c.Cameras))
	for _, cam := range c.Cameras {
		if err := layout.ValidateCamera(cam.ID); err != nil {
			return err
		}
		if seen[cam.ID] {
			return fmt.Errorf("duplicate camera %q", cam.ID)
		}
		seen[cam.ID] = true
	}
	if _, err := ParseLevel(c.LoggingLevel); err != nil {
		return err
	}
	return nil
}

func (c *Config) Interval() time.Duration   { return seconds(c.FetchInterval) }
func (c *Config) RetryDelay() time.Duration { return seconds(c.FetchRetryDelay) }
func (c *Config) Timeout() time.Duration    { return seconds(c.HTTPTimeout) }
func (c *Config) Grace() time.Duration      { return seconds(c.ShutdownGrace) }

// Deadline é o prazo total de uma busca lógica. Sem valor explícito cobre
// todas as tentativas com seus timeouts e os atrasos entre elas.
func (c *Config) Deadline() time.Duration {
	if c.TaskDeadline > 0 {
		return seconds(c.TaskDeadline)
	}
	n := time.Duration(c.FetchMaxRetries)
	if n < 1 {
		n = 1
	}
	return n*c.Timeout() + (n-1)*c.RetryDelay()
}

// SinkNames devolve os sinks habilitados em minúsculas.
func (c *Config) SinkNames() []string {
	var out []string
	for _, s := range parseCSV(c.Sinks) {
		out = append(out, strings.ToLower(s))
	}
	return out
}

// ParseLevel aceita os nomes do logging do Python (WARNING, CRITICAL)
// além dos do slog.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "", "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR", "CRITICAL", "FATAL":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown logging_level %q", s)
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
