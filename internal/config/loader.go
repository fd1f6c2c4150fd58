package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file, applies defaults,
// resolves ${ENV_VAR} references, verifies checksums when a .checksums file
// is present next to the config, and validates the result.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	expanded := expandEnvVars(string(data))

	cfg := Defaults()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", absPath, err)
	}

	applySourceDefaults(cfg)

	if err := VerifyChecksums(absPath); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// expandEnvVars substitutes ${VAR} references from the environment. Unset
// variables expand to the empty string; validation catches the fallout.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})
}

func applySourceDefaults(cfg *Config) {
	for i := range cfg.Webhooks.Sources {
		src := &cfg.Webhooks.Sources[i]
		if src.Path == "" {
			src.Path = "/webhook/" + src.Name
		}
		if src.MaxBodySize <= 0 {
			src.MaxBodySize = DefaultMaxBodySize
		}
	}
}

// Validate checks the configuration for problems that would surface later as
// confusing runtime failures. Errors name the offending field.
func Validate(cfg *Config) error {
	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is empty")
	}
	if cfg.Webhooks.Listen == "" {
		return fmt.Errorf("webhooks.listen is empty")
	}
	if len(cfg.Webhooks.Sources) == 0 {
		return fmt.Errorf("webhooks.sources is empty: at least one integration source is required")
	}

	seenNames := make(map[string]bool)
	seenPaths := make(map[string]bool)
	for _, src := range cfg.Webhooks.Sources {
		if src.Name == "" {
			return fmt.Errorf("webhooks.sources: source with empty name")
		}
		if seenNames[src.Name] {
			return fmt.Errorf("webhooks.sources: duplicate source name %q", src.Name)
		}
		seenNames[src.Name] = true

		if !strings.HasPrefix(src.Path, "/") {
			return fmt.Errorf("source %q: path %q must start with /", src.Name, src.Path)
		}
		if seenPaths[src.Path] {
			return fmt.Errorf("source %q: duplicate path %q", src.Name, src.Path)
		}
		seenPaths[src.Path] = true

		if src.SignatureHeader == "" {
			return fmt.Errorf("source %q: signature_header is empty", src.Name)
		}
		if _, err := ResolveSecret(cfg, src); err != nil {
			return err
		}
	}

	if cfg.Service.ProcessTimeout <= 0 {
		return fmt.Errorf("service.process_timeout must be positive")
	}
	if cfg.Service.StaleAfter <= 0 {
		return fmt.Errorf("service.stale_after must be positive")
	}
	return nil
}

// ResolveSecret returns the HMAC secret for a source, honoring SecretRef
// over the inline Secret.
func ResolveSecret(cfg *Config, src SourceConfig) (string, error) {
	secret := src.Secret
	if src.SecretRef != "" {
		resolved, ok := cfg.Tokens[src.SecretRef]
		if !ok {
			return "", fmt.Errorf("source %q: secret_ref %q not found in tokens", src.Name, src.SecretRef)
		}
		secret = resolved
	}
	if secret == "" {
		return "", fmt.Errorf("source %q: no secret or secret_ref configured", src.Name)
	}
	return secret, nil
}
