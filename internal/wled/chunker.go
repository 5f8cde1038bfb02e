package wled

import "github.com/coreman2200/pixelwall/internal/pixel"

// Chunk splits writes into payloads whose serialized envelope fits
// budget. Growth is greedy: each added pair re-serializes the full
// candidate envelope and the largest fitting prefix is kept. A single
// pair that exceeds budget on its own is emitted alone so the batch
// always makes forward progress. Concatenating the chunks reproduces
// the input order exactly.
func Chunk(segID int, writes []pixel.Write, budget int) [][]pixel.Write {
	var chunks [][]pixel.Write
	var cur []pixel.Write
	for _, w := range writes {
		cur = append(cur, w)
		if envelopeSize(segID, cur) <= budget {
			continue
		}
		if len(cur) == 1 {
			chunks = append(chunks, cur)
			cur = nil
			continue
		}
		chunks = append(chunks, cur[:len(cur)-1])
		cur = []pixel.Write{w}
		if envelopeSize(segID, cur) > budget {
			chunks = append(chunks, cur)
			cur = nil
		}
	}
	if len(cur) > 0 {
		chunks = append(chunks, cur)
	}
	return chunks
}
