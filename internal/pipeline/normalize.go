package pipeline

import "strings"

// Per-source event-type tables. Keys are the flattened form of the raw type
// the source sends: lowercased, with every non-letter stripped, so
// "ContactCreate", "CONTACT.CREATE" and "contact_create" all land on the
// same key. Values are the canonical entity.action strings used everywhere
// inside the pipeline.
var eventTypeTables = map[string]map[string]string{
	// GoHighLevel-style CRM: CamelCase single-token types.
	"ghl": {
		"contactcreate":           "contact.create",
		"contactupdate":           "contact.update",
		"contactdelete":           "contact.delete",
		"contacttagupdate":        "contact.tag_update",
		"contactdndupdate":        "contact.dnd_update",
		"opportunitycreate":       "opportunity.create",
		"opportunityupdate":       "opportunity.update",
		"opportunitydelete":       "opportunity.delete",
		"opportunitystageupdate":  "opportunity.stage_update",
		"opportunitystatusupdate": "opportunity.status_update",
		"notecreate":              "note.create",
		"taskcreate":              "task.create",
	},
	// Xero-style accounting: SHOUTING category + verb pairs.
	"xero": {
		"contactcreate": "contact.create",
		"contactupdate": "contact.update",
		"invoicecreate": "invoice.create",
		"invoiceupdate": "invoice.update",
		"paymentcreate": "payment.create",
		"paymentupdate": "payment.update",
	},
}

// Normalize maps a source-specific raw event-type string to the canonical
// dotted form. Types that already contain a dot are lowercased and passed
// through. Unknown flattened keys fall back to the lowercased raw string so
// unrecognized future event types still flow through the pipeline instead of
// being dropped.
func Normalize(source, rawType string) string {
	if rawType == "" {
		return ""
	}
	if strings.Contains(rawType, ".") {
		return strings.ToLower(rawType)
	}

	table, ok := eventTypeTables[source]
	if !ok {
		return strings.ToLower(rawType)
	}
	if canonical, ok := table[flattenTypeKey(rawType)]; ok {
		return canonical
	}
	return strings.ToLower(rawType)
}

// EntityType extracts the entity segment of a canonical event type: the
// substring before the first dot, "unknown" when the type is empty.
func EntityType(eventType string) string {
	if eventType == "" {
		return "unknown"
	}
	if i := strings.IndexByte(eventType, '.'); i >= 0 {
		if i == 0 {
			return "unknown"
		}
		return eventType[:i]
	}
	return eventType
}

// flattenTypeKey lowercases and strips every non-letter from a raw type.
func flattenTypeKey(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.ToLower(raw) {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// rawEventType pulls the raw event-type string out of a decoded payload.
// CRM-style payloads carry a top-level "type"; some sources use snake_case
// or camelCase variants; accounting envelopes carry an events array whose
// first element has category and type fields.
func rawEventType(payload map[string]any) string {
	for _, key := range []string{"type", "event_type", "eventType"} {
		if v, ok := payload[key].(string); ok && v != "" {
			return v
		}
	}

	if events, ok := payload["events"].([]any); ok && len(events) > 0 {
		if first, ok := events[0].(map[string]any); ok {
			category, _ := first["eventCategory"].(string)
			verb, _ := first["eventType"].(string)
			if category != "" && verb != "" {
				return category + verb
			}
		}
	}
	return ""
}

// entityID pulls the source-system entity id out of a decoded payload.
// Empty when undeterminable; the pipeline still audits such events.
func entityID(payload map[string]any) string {
	for _, key := range []string{"id", "contactId", "contact_id", "opportunityId", "opportunity_id", "resourceId"} {
		if v, ok := payload[key].(string); ok && v != "" {
			return v
		}
	}

	if events, ok := payload["events"].([]any); ok && len(events) > 0 {
		if first, ok := events[0].(map[string]any); ok {
			if v, ok := first["resourceId"].(string); ok {
				return v
			}
		}
	}
	return ""
}
