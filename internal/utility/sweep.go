package utility

import (
	"context"
	"time"
)

// Sweep walks a single lit cell across the canvas in drawing order,
// blanking each cell behind it. Useful for verifying wiring,
// serpentine, and orientation settings against the physical matrix.
type Sweep struct {
	Color     string
	StepDelay time.Duration
}

func (s Sweep) ID() string       { return "sweep" }
func (s Sweep) Describe() string { return "walk one lit pixel across the canvas" }

func (s Sweep) Run(ctx context.Context, canvas Canvas) error {
	color := s.Color
	if color == "" {
		color = "FFFFFF"
	}
	delay := s.StepDelay
	if delay == 0 {
		delay = 50 * time.Millisecond
	}
	for y := 0; y < canvas.Height(); y++ {
		for x := 0; x < canvas.Width(); x++ {
			canvas.Draw(x, y, color)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			canvas.Draw(x, y, "000000")
		}
	}
	return nil
}
