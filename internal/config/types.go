package config

import "time"

// Config represents the complete farmgate configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	State    StateConfig    `yaml:"state"`
	Webhooks WebhooksConfig `yaml:"webhooks"`
	Projects ProjectsConfig `yaml:"projects,omitempty"`

	// Tokens maps secret references to their values. Usually loaded from a
	// separate tokens file kept out of version control.
	Tokens map[string]string `yaml:"tokens,omitempty"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// ProcessTimeout bounds a single delivery's trip through the pipeline so
	// a stalled store cannot hold the inbound connection open indefinitely.
	ProcessTimeout time.Duration `yaml:"process_timeout"`

	// StaleAfter is the age past which a delivery still in 'received' is
	// considered abandoned and reconciled to 'failed'.
	StaleAfter time.Duration `yaml:"stale_after"`

	// ReconcileInterval is how often the stale-delivery sweep runs.
	ReconcileInterval time.Duration `yaml:"reconcile_interval"`
}

// StateConfig defines state storage settings.
type StateConfig struct {
	Path string `yaml:"path"`
}

// WebhooksConfig defines the webhook listener and its integration sources.
type WebhooksConfig struct {
	Listen  string         `yaml:"listen"`
	Sources []SourceConfig `yaml:"sources"`
}

// SourceConfig defines a single integration source endpoint. Signature
// scheme and event-type casing vary per source; both are accommodated here
// rather than in pipeline code.
type SourceConfig struct {
	// Name is the source system identifier (e.g. "ghl", "xero").
	Name string `yaml:"name"`

	// Path is the URL path for this source (default "/webhook/<name>").
	Path string `yaml:"path,omitempty"`

	// Secret is the HMAC shared secret for signature verification.
	Secret string `yaml:"secret,omitempty"`

	// SecretRef references a secret in the tokens map (preferred over Secret).
	SecretRef string `yaml:"secret_ref,omitempty"`

	// SignatureHeader is the HTTP header carrying the base64 HMAC signature.
	// Examples: "X-Wh-Signature" (GHL), "X-Xero-Signature" (Xero).
	SignatureHeader string `yaml:"signature_header"`

	// MaxBodySize is the maximum allowed request body size in bytes.
	MaxBodySize int64 `yaml:"max_body_size,omitempty"`
}

// ProjectsConfig points at the active project-code vocabulary.
type ProjectsConfig struct {
	File string `yaml:"file,omitempty"`
}

// Default values
const (
	DefaultMaxBodySize = 1048576 // 1 MB
)

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:              "farmgate",
			LogLevel:          "info",
			LogFormat:         "json",
			ProcessTimeout:    30 * time.Second,
			StaleAfter:        15 * time.Minute,
			ReconcileInterval: 5 * time.Minute,
		},
		State: StateConfig{
			Path: "./data/farmgate.db",
		},
		Webhooks: WebhooksConfig{
			Listen: "127.0.0.1:8080",
		},
	}
}
