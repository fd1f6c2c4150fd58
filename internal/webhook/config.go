package webhook

import (
	"fmt"

	"github.com/act-ops/farmgate/internal/config"
)

// FromGlobalConfig converts the service configuration into webhook server
// configuration, resolving secret references.
func FromGlobalConfig(cfg *config.Config) (Config, error) {
	if cfg == nil {
		return Config{}, fmt.Errorf("config is nil")
	}

	out := Config{
		Listen:  cfg.Webhooks.Listen,
		Sources: make([]SourceEndpoint, len(cfg.Webhooks.Sources)),
	}

	for i, src := range cfg.Webhooks.Sources {
		secret, err := config.ResolveSecret(cfg, src)
		if err != nil {
			return Config{}, err
		}

		maxBody := src.MaxBodySize
		if maxBody <= 0 {
			maxBody = DefaultMaxBodySize
		}

		out.Sources[i] = SourceEndpoint{
			Name:            src.Name,
			Path:            src.Path,
			Secret:          secret,
			SignatureHeader: src.SignatureHeader,
			MaxBodySize:     maxBody,
		}
	}

	return out, nil
}
