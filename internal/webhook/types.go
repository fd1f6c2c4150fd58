package webhook

import (
	"context"

	"github.com/act-ops/farmgate/internal/pipeline"
)

// EventProcessor is the pipeline boundary the HTTP layer dispatches into.
type EventProcessor interface {
	Process(ctx context.Context, source string, rawBody []byte, signature string) pipeline.Response
}

// Config holds webhook server configuration.
type Config struct {
	Listen  string
	Sources []SourceEndpoint
}

// SourceEndpoint defines one integration source's endpoint with its secret
// already resolved.
type SourceEndpoint struct {
	// Name is the source system identifier (e.g. "ghl", "xero").
	Name string

	// Path is the URL path for this source (e.g. "/webhook/ghl").
	Path string

	// Secret is the HMAC shared secret for signature verification.
	Secret string

	// SignatureHeader is the HTTP header carrying the base64 HMAC signature.
	SignatureHeader string

	// MaxBodySize is the maximum allowed request body size in bytes.
	MaxBodySize int64
}

// Default values
const DefaultMaxBodySize = 1048576 // 1 MB
