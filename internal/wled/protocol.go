package wled

import (
	"encoding/json"

	"github.com/coreman2200/pixelwall/internal/pixel"
)

// State is the WLED JSON state API envelope, shared by the HTTP and
// WebSocket paths.
type State struct {
	On  *bool     `json:"on,omitempty"`
	Seg []Segment `json:"seg,omitempty"`
	TT  *int      `json:"tt,omitempty"`
}

// Segment addresses one WLED segment. I alternates (index, "RRGGBB")
// pairs, or holds a single [start, stopExclusive, "RRGGBB"] triple for
// range fills.
type Segment struct {
	ID int   `json:"id"`
	I  []any `json:"i,omitempty"`
}

// Transport selects the delivery path for a batch.
type Transport int

const (
	TransportWS Transport = iota
	TransportHTTP
)

func (t Transport) String() string {
	if t == TransportHTTP {
		return "http"
	}
	return "ws"
}

// ParseTransport reads the config-file form.
func ParseTransport(s string) Transport {
	if s == "http" {
		return TransportHTTP
	}
	return TransportWS
}

// Serialized payload ceilings per transport, and the batch size above
// which HTTP is forced regardless of preference. Bulk fills over a
// socket amplify backpressure risk.
const (
	WSBudget       = 1400
	HTTPBudget     = 5000
	httpForceCount = 300
)

// Budget returns the serialized byte ceiling for t.
func (t Transport) Budget() int {
	if t == TransportHTTP {
		return HTTPBudget
	}
	return WSBudget
}

// SelectTransport applies the bulk-batch override to the configured
// preference.
func SelectTransport(pref Transport, n int) Transport {
	if n > httpForceCount {
		return TransportHTTP
	}
	return pref
}

// PairsMessage builds the on+seg envelope carrying (index, hex) pairs.
func PairsMessage(segID int, writes []pixel.Write) State {
	i := make([]any, 0, len(writes)*2)
	for _, w := range writes {
		i = append(i, w.Index, w.Color)
	}
	on := true
	return State{On: &on, Seg: []Segment{{ID: segID, I: i}}}
}

// RangeFillMessage builds a [start, stopExclusive, hex] fill envelope.
// tt is the transition time in 100ms units; negative omits it.
func RangeFillMessage(segID, start, stopExcl int, hex string, tt int) State {
	on := true
	st := State{On: &on, Seg: []Segment{{ID: segID, I: []any{start, stopExcl, hex}}}}
	if tt >= 0 {
		st.TT = &tt
	}
	return st
}

func envelopeSize(segID int, writes []pixel.Write) int {
	b, err := json.Marshal(PairsMessage(segID, writes))
	if err != nil {
		return 0
	}
	return len(b)
}
