package utility

import "context"

// Fill paints the whole canvas a single color. It is the builtin
// smoke-test utility; real content producers register alongside it.
type Fill struct {
	Color string
}

func (f Fill) ID() string       { return "fill" }
func (f Fill) Describe() string { return "fill the canvas with a solid color" }

func (f Fill) Run(ctx context.Context, canvas Canvas) error {
	color := f.Color
	if color == "" {
		color = "FFFFFF"
	}
	for y := 0; y < canvas.Height(); y++ {
		for x := 0; x < canvas.Width(); x++ {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			canvas.Draw(x, y, color)
		}
	}
	return nil
}
