package ws

import (
	"encoding/json"

	"github.com/coreman2200/pixelwall/internal/pixel"
)

// inbound is the tagged union of producer messages, discriminated by
// Type. Unknown types are ignored.
type inbound struct {
	Type      string          `json:"type"`
	X         int             `json:"x"`
	Y         int             `json:"y"`
	Color     json.RawMessage `json:"color"`
	Pixels    []inboundPixel  `json:"pixels"`
	UtilityID string          `json:"utilityId"`
}

type inboundPixel struct {
	X     int             `json:"x"`
	Y     int             `json:"y"`
	Color json.RawMessage `json:"color"`
}

// decodeColor reads a color field that may be a string or an {r,g,b}
// object. The bool is false when the value has neither shape; such
// writes are skipped individually.
func decodeColor(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, true
	}
	var rgb struct {
		R float64 `json:"r"`
		G float64 `json:"g"`
		B float64 `json:"b"`
	}
	if err := json.Unmarshal(raw, &rgb); err == nil {
		return pixel.NormalizeRGB(pixel.RGB{R: rgb.R, G: rgb.G, B: rgb.B}), true
	}
	return "", false
}

type fullStateMsg struct {
	Type  string    `json:"type"`
	State []*string `json:"state"`
}

type gridUpdateMsg struct {
	Type  string `json:"type"`
	Index int    `json:"index"`
	Color string `json:"color"`
}

type userCountMsg struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type utilityResultMsg struct {
	Type      string `json:"type"`
	UtilityID string `json:"utilityId"`
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
}

func newFullState(cells []pixel.Cell) fullStateMsg {
	state := make([]*string, len(cells))
	for i := range cells {
		if cells[i].Set {
			c := cells[i].Color
			state[i] = &c
		}
	}
	return fullStateMsg{Type: "fullState", State: state}
}
