package wled

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/pixelwall/internal/pixel"
)

func makeWrites(n int) []pixel.Write {
	ws := make([]pixel.Write, n)
	for i := range ws {
		ws[i] = pixel.Write{Index: i, Color: fmt.Sprintf("%06X", i)}
	}
	return ws
}

func TestChunkConcatenationPreservesInput(t *testing.T) {
	in := makeWrites(500)
	chunks := Chunk(0, in, WSBudget)
	require.Greater(t, len(chunks), 1)

	var flat []pixel.Write
	for _, c := range chunks {
		flat = append(flat, c...)
	}
	assert.Equal(t, in, flat)
}

func TestChunkRespectsBudget(t *testing.T) {
	in := makeWrites(500)
	for _, budget := range []int{WSBudget, HTTPBudget} {
		for _, c := range Chunk(0, in, budget) {
			size := envelopeSize(0, c)
			assert.LessOrEqual(t, size, budget, "chunk of %d pixels", len(c))
		}
	}
}

func TestChunkSmallBatchSingleChunk(t *testing.T) {
	in := makeWrites(3)
	chunks := Chunk(0, in, WSBudget)
	require.Len(t, chunks, 1)
	assert.Equal(t, in, chunks[0])
}

func TestChunkEmptyInput(t *testing.T) {
	assert.Empty(t, Chunk(0, nil, WSBudget))
}

func TestChunkForcedSingleton(t *testing.T) {
	// A budget smaller than any one-pair envelope still emits every pair.
	in := makeWrites(4)
	chunks := Chunk(0, in, 10)
	require.Len(t, chunks, 4)
	for i, c := range chunks {
		require.Len(t, c, 1)
		assert.Equal(t, in[i], c[0])
	}
}

func TestSelectTransport(t *testing.T) {
	assert.Equal(t, TransportWS, SelectTransport(TransportWS, 300))
	assert.Equal(t, TransportHTTP, SelectTransport(TransportWS, 301))
	assert.Equal(t, TransportHTTP, SelectTransport(TransportHTTP, 5))
}

func TestBulkBatchForcesHTTPChunks(t *testing.T) {
	in := makeWrites(301)
	tr := SelectTransport(TransportWS, len(in))
	require.Equal(t, TransportHTTP, tr)

	chunks := Chunk(0, in, tr.Budget())
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, envelopeSize(0, c), HTTPBudget)
	}
}

func TestRangeFillMessage(t *testing.T) {
	st := RangeFillMessage(2, 0, 256, "000000", 0)
	require.Len(t, st.Seg, 1)
	assert.Equal(t, 2, st.Seg[0].ID)
	assert.Equal(t, []any{0, 256, "000000"}, st.Seg[0].I)
	require.NotNil(t, st.TT)
	assert.Equal(t, 0, *st.TT)
	require.NotNil(t, st.On)
	assert.True(t, *st.On)
}
