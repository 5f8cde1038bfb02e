package grid

import (
	"errors"
	"fmt"
)

// ErrOutOfRange is returned by Index for coordinates outside the grid.
var ErrOutOfRange = errors.New("coordinate out of range")

// Orientation names the corner of the physical matrix that holds logical (0,0).
type Orientation int

const (
	TopLeft Orientation = iota
	TopRight
	BottomLeft
	BottomRight
)

func (o Orientation) String() string {
	switch o {
	case TopLeft:
		return "top-left"
	case TopRight:
		return "top-right"
	case BottomLeft:
		return "bottom-left"
	case BottomRight:
		return "bottom-right"
	}
	return "unknown"
}

// ParseOrientation accepts the string forms used in config files.
func ParseOrientation(s string) (Orientation, error) {
	switch s {
	case "", "top-left":
		return TopLeft, nil
	case "top-right":
		return TopRight, nil
	case "bottom-left":
		return BottomLeft, nil
	case "bottom-right":
		return BottomRight, nil
	}
	return TopLeft, fmt.Errorf("unknown orientation %q", s)
}

// Mapper converts logical canvas coordinates to linear LED indices for a
// single 2D panel wired in row-major or serpentine order.
type Mapper struct {
	Width       int
	Height      int
	Serpentine  bool
	Orientation Orientation
}

// Size returns the LED count of the panel.
func (m Mapper) Size() int { return m.Width * m.Height }

// Index maps (x,y) -> linear LED index. The orientation reflection runs
// first, then the serpentine flip on odd rows of the reflected space.
func (m Mapper) Index(x, y int) (int, error) {
	if x < 0 || x >= m.Width || y < 0 || y >= m.Height {
		return 0, fmt.Errorf("%w: (%d,%d) on %dx%d", ErrOutOfRange, x, y, m.Width, m.Height)
	}
	xx, yy := x, y
	switch m.Orientation {
	case TopRight:
		xx = m.Width - 1 - x
	case BottomLeft:
		yy = m.Height - 1 - y
	case BottomRight:
		xx = m.Width - 1 - x
		yy = m.Height - 1 - y
	}
	if m.Serpentine && yy%2 == 1 {
		xx = m.Width - 1 - xx
	}
	return yy*m.Width + xx, nil
}
