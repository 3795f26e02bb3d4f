// Package appconfig implements the gateway's Config Model (spec §4.A):
// an immutable, validated representation of channels, operations,
// topics and DLQs, loaded once at startup under the "app" prefix via
// viper, following the layered defaults/env/file pattern of the
// analytics-system preprocessor's internal/config package.
package appconfig

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Topics describes an operation's destination topic list (spec §3).
type Topics struct {
	Dynamic      bool              `mapstructure:"dynamic"`
	TopicDefault string            `mapstructure:"topic_default"`
	Static       map[string]string `mapstructure:"static"` // datacenter key -> topic name
}

func (t Topics) clone() Topics {
	c := Topics{Dynamic: t.Dynamic, TopicDefault: t.TopicDefault}
	if t.Static != nil {
		c.Static = make(map[string]string, len(t.Static))
		for k, v := range t.Static {
			c.Static[k] = v
		}
	}
	return c
}

// Resolve returns the destination topic for the given datacenter key,
// substituting {datacenter} into TopicDefault when Dynamic is set.
func (t Topics) Resolve(datacenter string) (string, bool) {
	if t.Dynamic {
		if t.TopicDefault == "" {
			return "", false
		}
		return strings.ReplaceAll(t.TopicDefault, "{datacenter}", datacenter), true
	}
	topic, ok := t.Static[datacenter]
	return topic, ok
}

// Operation is a named (schema, transform, topics, group) bundle: the
// unit of routing (spec §3, glossary).
type Operation struct {
	Enabled              bool     `mapstructure:"enabled"`
	Name                 string   `mapstructure:"name"`
	GroupID              string   `mapstructure:"group_id"`
	InboundTopics        []string `mapstructure:"inbound_topics"` // physical topics this operation's consumer group id governs
	BinarySchema         string   `mapstructure:"binary_schema"`
	OutboundBinarySchema string   `mapstructure:"outbound_binary_schema"` // receiver-side schema the transformed payload is re-serialized under
	TransformExpr        string   `mapstructure:"transform_expr"`
	JSONSchema           string   `mapstructure:"json_schema"`
	MessageSchema        string   `mapstructure:"message_schema"` // outbound header value set by the router
	RequiredHeaders      []string `mapstructure:"required_headers"`
	EPortalTopics        Topics   `mapstructure:"eportal_topics"`
	OrchestratorTopics   Topics   `mapstructure:"orchestrator_topics"`
}

func (o Operation) clone() Operation {
	c := o
	c.InboundTopics = append([]string(nil), o.InboundTopics...)
	c.RequiredHeaders = append([]string(nil), o.RequiredHeaders...)
	c.EPortalTopics = o.EPortalTopics.clone()
	c.OrchestratorTopics = o.OrchestratorTopics.clone()
	return c
}

func (o Operation) validate() error {
	if !o.Enabled {
		return nil
	}
	if o.Name == "" {
		return fmt.Errorf("operation: name is required")
	}
	if o.BinarySchema == "" || o.TransformExpr == "" || o.JSONSchema == "" {
		return fmt.Errorf("operation %q: binary_schema, transform_expr and json_schema are all required", o.Name)
	}
	if o.OutboundBinarySchema == "" {
		return fmt.Errorf("operation %q: outbound_binary_schema is required", o.Name)
	}
	if len(o.EPortalTopics.Static) == 0 && !o.EPortalTopics.Dynamic &&
		len(o.OrchestratorTopics.Static) == 0 && !o.OrchestratorTopics.Dynamic {
		return fmt.Errorf("operation %q: at least one topic is required", o.Name)
	}
	if o.GroupID == "" {
		return fmt.Errorf("operation %q: group_id is required", o.Name)
	}
	if len(o.InboundTopics) == 0 {
		return fmt.Errorf("operation %q: inbound_topics is required", o.Name)
	}
	return nil
}

// DLQ describes a channel's dead-letter destination (spec §3).
type DLQ struct {
	Enabled bool   `mapstructure:"enabled"`
	Topics  Topics `mapstructure:"topics"`
}

func (d DLQ) clone() DLQ {
	return DLQ{Enabled: d.Enabled, Topics: d.Topics.clone()}
}

// Channel groups operations under a datacenter map and DLQ (spec §3).
type Channel struct {
	Enabled     bool                 `mapstructure:"enabled"`
	TimeoutMS   int                  `mapstructure:"timeout_ms"`
	Operations  map[string]Operation `mapstructure:"operations"`
	DLQ         DLQ                  `mapstructure:"dlq"`
	Datacenters map[string]string    `mapstructure:"datacenters"` // substring key -> canonical code, e.g. "jrd" -> "JRD"
}

func (c Channel) clone() Channel {
	out := Channel{Enabled: c.Enabled, TimeoutMS: c.TimeoutMS, DLQ: c.DLQ.clone()}
	if c.Operations != nil {
		out.Operations = make(map[string]Operation, len(c.Operations))
		for k, v := range c.Operations {
			out.Operations[k] = v.clone()
		}
	}
	if c.Datacenters != nil {
		out.Datacenters = make(map[string]string, len(c.Datacenters))
		for k, v := range c.Datacenters {
			out.Datacenters[k] = v
		}
	}
	return out
}

func (c Channel) validate() error {
	if !c.Enabled {
		return nil
	}
	enabledOps := 0
	for _, op := range c.Operations {
		if !op.Enabled {
			continue
		}
		if err := op.validate(); err != nil {
			return err
		}
		enabledOps++
	}
	if enabledOps == 0 {
		return fmt.Errorf("channel: at least one enabled operation is required")
	}
	return nil
}

// Config is the immutable, validated configuration tree (spec §4.A).
// It must be treated as read-only after Load returns; every nested
// collection has been defensively copied so no caller can mutate the
// shared tree.
type Config struct {
	ServiceName    string             `mapstructure:"service_name"`
	ServiceVersion string             `mapstructure:"service_version"`
	Channels       map[string]Channel `mapstructure:"channel"`

	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
}

// KafkaConfig groups broker connection settings shared by every
// consumer/producer instantiated by the dispatcher (spec §6).
type KafkaConfig struct {
	Brokers     []string      `mapstructure:"brokers"`
	Version     string        `mapstructure:"version"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Acks        string        `mapstructure:"acks"`
	Compression string        `mapstructure:"compression"`
}

// TelemetryConfig controls the OTLP exporter.
type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otel_endpoint"`
	Insecure     bool   `mapstructure:"insecure"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	DevMode bool   `mapstructure:"dev_mode"`
}

// HTTPConfig controls the metrics/health server.
type HTTPConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MetricsPath     string        `mapstructure:"metrics_path"`
	HealthzPath     string        `mapstructure:"healthz_path"`
	ReadyzPath      string        `mapstructure:"readyz_path"`
}

// DispatcherConfig controls the worker pools (spec §5).
type DispatcherConfig struct {
	QueueCapacity   int           `mapstructure:"queue_capacity"`
	Workers         int           `mapstructure:"workers"`
	ProcessTimeout  time.Duration `mapstructure:"process_timeout"`
	RequestTopics   []string      `mapstructure:"request_topics"`
	ResponseTopics  []string      `mapstructure:"response_topics"`
}

// Load reads configuration from an optional file plus GATEWAY_-prefixed
// environment overrides, decodes it into a Config, defensively copies
// every nested collection, and validates it. Invalid configuration is a
// startup-time fatal error, never a per-message error (spec §4.A).
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("service_name", "eportal-gateway")
	v.SetDefault("service_version", "v1.0.0")

	v.SetDefault("kafka.version", "2.8.0")
	v.SetDefault("kafka.timeout", "15s")
	v.SetDefault("kafka.acks", "all")
	v.SetDefault("kafka.compression", "none")

	v.SetDefault("telemetry.otel_endpoint", "otel-collector:4317")
	v.SetDefault("telemetry.insecure", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.dev_mode", false)

	v.SetDefault("http.port", 8090)
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "15s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("http.shutdown_timeout", "5s")
	v.SetDefault("http.metrics_path", "/metrics")
	v.SetDefault("http.healthz_path", "/healthz")
	v.SetDefault("http.readyz_path", "/readyz")

	v.SetDefault("dispatcher.queue_capacity", 10)
	v.SetDefault("dispatcher.workers", 8)
	v.SetDefault("dispatcher.process_timeout", "30s")

	v.SetEnvPrefix("GATEWAY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	var cfg Config
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		func(f, t reflect.Kind, data interface{}) (interface{}, error) {
			if f == reflect.String && t == reflect.Bool {
				return strconv.ParseBool(data.(string))
			}
			return data, nil
		},
	)
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:    "mapstructure",
		Result:     &cfg,
		DecodeHook: decodeHook,
	})
	if err != nil {
		return nil, fmt.Errorf("create config decoder: %w", err)
	}
	settings := v.AllSettings()
	// The channel tree is read from app.channel.<id>...; a top-level
	// channel key is used when no app.channel key is present.
	if app, ok := settings["app"].(map[string]interface{}); ok {
		if ch, ok := app["channel"]; ok {
			settings["channel"] = ch
		}
	}
	if err := decoder.Decode(settings); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg = cfg.deepCopy()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// deepCopy defensively copies every nested map/slice, mirroring the
// Map.copyOf/List.copyOf calls the original Java config records used in
// their constructors, so the returned tree can never be mutated by a
// caller after Load returns.
func (c Config) deepCopy() Config {
	out := c
	out.Kafka.Brokers = append([]string(nil), c.Kafka.Brokers...)
	out.Dispatcher.RequestTopics = append([]string(nil), c.Dispatcher.RequestTopics...)
	out.Dispatcher.ResponseTopics = append([]string(nil), c.Dispatcher.ResponseTopics...)
	if c.Channels != nil {
		out.Channels = make(map[string]Channel, len(c.Channels))
		for k, v := range c.Channels {
			out.Channels[k] = v.clone()
		}
	}
	return out
}

// Validate checks the invariants from spec §3: at least one channel, that
// channel enabled, at least one enabled operation, every enabled
// operation has non-empty schema references, at least one topic and a
// non-empty group id.
func (c *Config) Validate() error {
	if c.ServiceName == "" {
		return fmt.Errorf("service_name is required")
	}
	if len(c.Channels) == 0 {
		return fmt.Errorf("at least one channel is required")
	}
	haveEnabled := false
	for id, ch := range c.Channels {
		if ch.Enabled {
			haveEnabled = true
		}
		if err := ch.validate(); err != nil {
			return fmt.Errorf("channel %q: %w", id, err)
		}
	}
	if !haveEnabled {
		return fmt.Errorf("at least one channel must be enabled")
	}

	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required")
	}
	if c.Kafka.Timeout <= 0 {
		return fmt.Errorf("kafka.timeout must be > 0")
	}
	switch strings.ToLower(c.Kafka.Acks) {
	case "all", "leader", "none":
	default:
		return fmt.Errorf("kafka.acks must be one of [all, leader, none]")
	}
	switch strings.ToLower(c.Kafka.Compression) {
	case "none", "gzip", "snappy", "lz4", "zstd":
	default:
		return fmt.Errorf("kafka.compression must be one of [none, gzip, snappy, lz4, zstd]")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error]")
	}

	if err := validateHTTP(&c.HTTP); err != nil {
		return err
	}

	if c.Dispatcher.QueueCapacity <= 0 {
		return fmt.Errorf("dispatcher.queue_capacity must be > 0")
	}
	if c.Dispatcher.Workers <= 0 {
		return fmt.Errorf("dispatcher.workers must be > 0")
	}
	if c.Dispatcher.ProcessTimeout <= 0 {
		return fmt.Errorf("dispatcher.process_timeout must be > 0")
	}
	if len(c.Dispatcher.RequestTopics) == 0 {
		return fmt.Errorf("dispatcher.request_topics must contain at least one topic")
	}
	if len(c.Dispatcher.ResponseTopics) == 0 {
		return fmt.Errorf("dispatcher.response_topics must contain at least one topic")
	}

	return nil
}

func validateHTTP(h *HTTPConfig) error {
	if h.Port <= 0 || h.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535")
	}
	durations := map[string]time.Duration{
		"http.read_timeout": h.ReadTimeout, "http.write_timeout": h.WriteTimeout,
		"http.idle_timeout": h.IdleTimeout, "http.shutdown_timeout": h.ShutdownTimeout,
	}
	for k, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%s must be > 0", k)
		}
	}
	paths := map[string]string{
		"http.metrics_path": h.MetricsPath, "http.healthz_path": h.HealthzPath, "http.readyz_path": h.ReadyzPath,
	}
	for k, p := range paths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("%s must start with '/'", k)
		}
	}
	return nil
}

// Operation looks up an enabled operation by canonical name or by the
// filename of its configured binary schema, scoped to the given channel
// (spec §4.A, §4.D).
func (c *Config) Operation(channelID, nameOrSchema string) (Operation, bool) {
	ch, ok := c.Channels[channelID]
	if !ok {
		return Operation{}, false
	}
	for _, op := range ch.Operations {
		if !op.Enabled {
			continue
		}
		if op.Name == nameOrSchema || op.BinarySchema == nameOrSchema {
			return op, true
		}
	}
	return Operation{}, false
}

// AllOperations returns every enabled operation across every enabled
// channel.
func (c *Config) AllOperations() []Operation {
	var ops []Operation
	for _, ch := range c.Channels {
		if !ch.Enabled {
			continue
		}
		for _, op := range ch.Operations {
			if op.Enabled {
				ops = append(ops, op)
			}
		}
	}
	return ops
}

// Datacenter resolves the canonical datacenter code for a channel by
// substring-matching key against the channel's datacenter map keys
// (spec §4.D step 4).
func (c *Config) Datacenter(channelID, key string) (string, bool) {
	ch, ok := c.Channels[channelID]
	if !ok {
		return "", false
	}
	for substr, code := range ch.Datacenters {
		if strings.Contains(key, substr) {
			return code, true
		}
	}
	return "", false
}

// GroupIDForTopic resolves the consumer group id of the enabled operation
// whose inbound_topics lists topic, per spec §6's "consumer group id
// per-operation from config" (spec §4.A, §4.J).
func (c *Config) GroupIDForTopic(channelID, topic string) (string, bool) {
	ch, ok := c.Channels[channelID]
	if !ok {
		return "", false
	}
	for _, op := range ch.Operations {
		if !op.Enabled {
			continue
		}
		for _, t := range op.InboundTopics {
			if t == topic {
				return op.GroupID, true
			}
		}
	}
	return "", false
}

// DLQTopic resolves the DLQ topic for a channel and datacenter.
func (c *Config) DLQTopic(channelID, datacenter string) (string, bool) {
	ch, ok := c.Channels[channelID]
	if !ok || !ch.DLQ.Enabled {
		return "", false
	}
	return ch.DLQ.Topics.Resolve(datacenter)
}

// EnabledChannel returns the single enabled channel (spec §4.D step 1
// assumes exactly one is active at a time, e.g. "BNE").
func (c *Config) EnabledChannel() (string, Channel, bool) {
	for id, ch := range c.Channels {
		if ch.Enabled {
			return id, ch, true
		}
	}
	return "", Channel{}, false
}

// IsValid reports whether Validate would currently succeed.
func (c *Config) IsValid() bool { return c.Validate() == nil }

// Print renders the loaded configuration for debugging.
func (c *Config) Print() {
	b, _ := json.MarshalIndent(c, "", "  ")
	fmt.Println("loaded configuration:\n", string(b))
}
