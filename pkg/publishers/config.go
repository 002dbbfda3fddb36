package publishers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Publisher types accepted in the "type" field.
const (
	TypeSQS    = "sqs"
	TypeSNS    = "sns"
	TypePubSub = "gcp_pubsub"
	TypeHTTP   = "http"
)

const (
	defaultHTTPMethod  = "POST"
	defaultHTTPTimeout = 5
	maxRetries         = 10
)

// PublisherConfig is one entry of the publishers file.
type PublisherConfig struct {
	ID      string                 `yaml:"id"`
	Type    string                 `yaml:"type"`
	Enabled *bool                  `yaml:"enabled"`
	Retries int                    `yaml:"retries"`
	SQS     *SQSPublisherConfig    `yaml:"sqs"`
	SNS     *SNSPublisherConfig    `yaml:"sns"`
	PubSub  *PubSubPublisherConfig `yaml:"gcp_pubsub"`
	HTTP    *HTTPPublisherConfig   `yaml:"http"`
}

type SQSPublisherConfig struct {
	QueueURL string `yaml:"uri"`
	Region   string `yaml:"region"`
}

type SNSPublisherConfig struct {
	TopicARN string `yaml:"topic_arn"`
	Region   string `yaml:"region"`
}

type PubSubPublisherConfig struct {
	ProjectID       string `yaml:"project_id"`
	Topic           string `yaml:"topic"`
	CredentialsFile string `yaml:"credentials_file"`
}

type HTTPPublisherConfig struct {
	URL            string            `yaml:"url"`
	Method         string            `yaml:"method"`
	Headers        map[string]string `yaml:"headers"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
}

// settings is the type-specific block of a PublisherConfig.
type settings interface {
	normalize()
	check(id string) error
}

func (c *SQSPublisherConfig) normalize() {
	c.QueueURL = strings.TrimSpace(c.QueueURL)
	c.Region = strings.TrimSpace(c.Region)
}

func (c *SQSPublisherConfig) check(id string) error {
	return require(id, "sqs", map[string]string{"uri": c.QueueURL, "region": c.Region})
}

func (c *SNSPublisherConfig) normalize() {
	c.TopicARN = strings.TrimSpace(c.TopicARN)
	c.Region = strings.TrimSpace(c.Region)
}

func (c *SNSPublisherConfig) check(id string) error {
	return require(id, "sns", map[string]string{"topic_arn": c.TopicARN, "region": c.Region})
}

func (c *PubSubPublisherConfig) normalize() {
	c.ProjectID = strings.TrimSpace(c.ProjectID)
	c.Topic = strings.TrimSpace(c.Topic)
	c.CredentialsFile = strings.TrimSpace(c.CredentialsFile)
}

func (c *PubSubPublisherConfig) check(id string) error {
	return require(id, TypePubSub, map[string]string{"project_id": c.ProjectID, "topic": c.Topic})
}

func (c *HTTPPublisherConfig) normalize() {
	c.URL = strings.TrimSpace(c.URL)
	c.Method = strings.ToUpper(strings.TrimSpace(c.Method))
	if c.Method == "" {
		c.Method = defaultHTTPMethod
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = defaultHTTPTimeout
	}
	headers := make(map[string]string, len(c.Headers))
	for k, v := range c.Headers {
		if k, v = strings.TrimSpace(k), strings.TrimSpace(v); k != "" && v != "" {
			headers[k] = v
		}
	}
	c.Headers = nil
	if len(headers) > 0 {
		c.Headers = headers
	}
}

func (c *HTTPPublisherConfig) check(id string) error {
	return require(id, "http", map[string]string{"url": c.URL})
}

func require(id, block string, fields map[string]string) error {
	var missing []string
	for name, v := range fields {
		if v == "" {
			missing = append(missing, block+"."+name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return fmt.Errorf("publisher %q: missing %s", id, strings.Join(missing, ", "))
}

// block returns the settings matching cfg.Type, or nil if that block is absent.
func (cfg *PublisherConfig) block() (settings, error) {
	switch cfg.Type {
	case TypeSQS:
		if cfg.SQS != nil {
			return cfg.SQS, nil
		}
	case TypeSNS:
		if cfg.SNS != nil {
			return cfg.SNS, nil
		}
	case TypePubSub:
		if cfg.PubSub != nil {
			return cfg.PubSub, nil
		}
	case TypeHTTP:
		if cfg.HTTP != nil {
			return cfg.HTTP, nil
		}
	default:
		return nil, fmt.Errorf("publisher %q: unknown type %q", cfg.ID, cfg.Type)
	}
	return nil, fmt.Errorf("publisher %q: %s block is required", cfg.ID, cfg.Type)
}

// normalize trims every field and fills defaults. Blocks are copied so the
// caller's config is never mutated.
func (cfg PublisherConfig) normalize() PublisherConfig {
	cfg.ID = strings.TrimSpace(cfg.ID)
	cfg.Type = strings.ToLower(strings.TrimSpace(cfg.Type))
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Retries > maxRetries {
		cfg.Retries = maxRetries
	}
	if cfg.SQS != nil {
		c := *cfg.SQS
		cfg.SQS = &c
	}
	if cfg.SNS != nil {
		c := *cfg.SNS
		cfg.SNS = &c
	}
	if cfg.PubSub != nil {
		c := *cfg.PubSub
		cfg.PubSub = &c
	}
	if cfg.HTTP != nil {
		c := *cfg.HTTP
		cfg.HTTP = &c
	}
	if b, err := cfg.block(); err == nil {
		b.normalize()
	}
	return cfg
}

func (cfg PublisherConfig) validate() error {
	if cfg.ID == "" {
		return errors.New("publisher id is required")
	}
	if cfg.Type == "" {
		return fmt.Errorf("publisher %q: type is required", cfg.ID)
	}
	b, err := cfg.block()
	if err != nil {
		return err
	}
	return b.check(cfg.ID)
}

// IsEnabled reports whether the entry should be built. Entries are enabled
// unless they say otherwise.
func (cfg PublisherConfig) IsEnabled() bool {
	return cfg.Enabled == nil || *cfg.Enabled
}

// ConfigRegistry holds the validated entries of a publishers file in file order.
type ConfigRegistry struct {
	entries []PublisherConfig
}

// LoadRegistry reads a publishers file. YAML and JSON are both accepted since
// every JSON document is also valid YAML. Unknown keys are rejected.
func LoadRegistry(path string) (*ConfigRegistry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("publishers file path is empty")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read publishers file: %w", err)
	}
	return ParseRegistry(raw)
}

// ParseRegistry decodes and validates publisher entries from raw.
func ParseRegistry(raw []byte) (*ConfigRegistry, error) {
	var doc struct {
		Publishers []PublisherConfig `yaml:"publishers"`
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode publishers file: %w", err)
	}
	if len(doc.Publishers) == 0 {
		return nil, errors.New("publishers file declares no publishers")
	}

	reg := &ConfigRegistry{entries: make([]PublisherConfig, 0, len(doc.Publishers))}
	ids := make(map[string]struct{}, len(doc.Publishers))
	for i, entry := range doc.Publishers {
		cfg := entry.normalize()
		if err := cfg.validate(); err != nil {
			return nil, fmt.Errorf("publishers[%d]: %w", i, err)
		}
		if _, dup := ids[cfg.ID]; dup {
			return nil, fmt.Errorf("publishers[%d]: duplicate id %q", i, cfg.ID)
		}
		ids[cfg.ID] = struct{}{}
		reg.entries = append(reg.entries, cfg)
	}
	return reg, nil
}

// ByID looks an entry up by its id.
func (r *ConfigRegistry) ByID(id string) (PublisherConfig, bool) {
	if r == nil {
		return PublisherConfig{}, false
	}
	id = strings.TrimSpace(id)
	for _, cfg := range r.entries {
		if cfg.ID == id {
			return cfg, true
		}
	}
	return PublisherConfig{}, false
}

func (r *ConfigRegistry) All() []PublisherConfig {
	if r == nil {
		return nil
	}
	return append([]PublisherConfig(nil), r.entries...)
}

// Enabled returns the entries that should be built, in file order.
func (r *ConfigRegistry) Enabled() []PublisherConfig {
	var out []PublisherConfig
	for _, cfg := range r.All() {
		if cfg.IsEnabled() {
			out = append(out, cfg)
		}
	}
	return out
}
