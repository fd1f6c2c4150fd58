package webhook

import "encoding/json"

// intentProbe is the shape of an Intent-to-Receive registration probe: a
// transport-level handshake some sources send to prove the endpoint is
// reachable and authentic before real traffic flows.
type intentProbe struct {
	Events             []json.RawMessage `json:"events"`
	FirstEventSequence *int64            `json:"firstEventSequence"`
}

// isIntentToReceive reports whether body is a registration probe: a present,
// empty events array with a zero first-event sequence marker. Both fields
// must be present so ordinary business payloads (which carry neither) never
// match.
//
// Probes run after signature verification and before any business logic:
// they get a 200 with an empty body and leave no delivery or integration
// event rows.
func isIntentToReceive(body []byte) bool {
	var probe intentProbe
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	return probe.Events != nil && len(probe.Events) == 0 &&
		probe.FirstEventSequence != nil && *probe.FirstEventSequence == 0
}
