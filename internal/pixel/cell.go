package pixel

import "encoding/json"

// Cell is one canvas position: either a canonical 6-hex color or unset.
type Cell struct {
	Color string
	Set   bool
}

// Write is a single accepted pixel mutation addressed by linear index.
type Write struct {
	Index int
	Color string
}

// NewCells allocates an all-unset cell array of length n.
func NewCells(n int) []Cell {
	return make([]Cell, n)
}

// MarshalCells serializes a cell array as a JSON array of nullable hex
// strings; unset cells become null. This is the persisted and broadcast form.
func MarshalCells(cells []Cell) ([]byte, error) {
	out := make([]*string, len(cells))
	for i := range cells {
		if cells[i].Set {
			c := cells[i].Color
			out[i] = &c
		}
	}
	return json.Marshal(out)
}

// UnmarshalCells decodes the nullable-hex form back into a cell array.
func UnmarshalCells(data []byte) ([]Cell, error) {
	var in []*string
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, err
	}
	cells := make([]Cell, len(in))
	for i, s := range in {
		if s != nil {
			cells[i] = Cell{Color: *s, Set: true}
		}
	}
	return cells, nil
}
