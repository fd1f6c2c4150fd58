// Package protocol enforces the cultural-protocol redaction policy.
//
// Certain custom fields carried by upstream CRM payloads hold culturally or
// ethically restricted data: consent records, sacred or traditional
// knowledge, detailed consent history, and OCAP (ownership, control, access,
// possession) markers tied to the data-sovereignty policy. These fields must
// never be persisted, echoed into audit logs, or re-emitted downstream,
// regardless of what the sender delivers.
//
// Redact is the single authoritative enforcement point. Every inbound
// custom-field bag passes through it before a canonical record is built.
package protocol

// DenylistVersion identifies the active restricted-field set. Bump when the
// set changes so stored records can be traced to the policy they were
// redacted under.
const DenylistVersion = "v2"

// denylist holds the restricted field keys. Fixed at compile time; adding a
// key is a policy change, not configuration.
var denylist = map[string]struct{}{
	"elder_consent":             {},
	"sacred_knowledge":          {},
	"story_content":             {},
	"cultural_protocols_detail": {},
	"consent_history":           {},
	"family_support_notes":      {},
	"ocap_ownership":            {},
	"ocap_control":              {},
	"ocap_access":               {},
	"ocap_possession":           {},
}

// Redact returns a copy of fields with every restricted key removed. The
// input map is never mutated. A nil input yields an empty, non-nil map so
// callers can embed the result directly.
func Redact(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if _, blocked := denylist[k]; blocked {
			continue
		}
		out[k] = v
	}
	return out
}

// Restricted reports whether key is on the denylist.
func Restricted(key string) bool {
	_, ok := denylist[key]
	return ok
}

// RestrictedKeys returns the denylist as a slice, for diagnostics and tests.
func RestrictedKeys() []string {
	keys := make([]string, 0, len(denylist))
	for k := range denylist {
		keys = append(keys, k)
	}
	return keys
}
