package wled

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu   sync.Mutex
	sent [][]byte
	err  error
}

func (f *fakeSender) Send(_ context.Context, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, append([]byte(nil), payload...))
	return nil
}

func newTestClient(t *testing.T, pref Transport) (*Client, *fakeSender, *[]State) {
	t.Helper()
	var mu sync.Mutex
	var got []State
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var st State
		require.NoError(t, json.Unmarshal(body, &st))
		mu.Lock()
		got = append(got, st)
		mu.Unlock()
	}))
	t.Cleanup(srv.Close)

	fs := &fakeSender{}
	c := NewClient(srv.URL, 0, 256, Options{Preference: pref}, zerolog.Nop())
	c.sess = fs
	c.sleep = func(d time.Duration) {}
	return c, fs, &got
}

func TestFlushPrefersWebSocket(t *testing.T) {
	c, fs, httpGot := newTestClient(t, TransportWS)
	require.NoError(t, c.Flush(context.Background(), makeWrites(10)))

	assert.Equal(t, TransportWS, c.Transport())
	assert.NotEmpty(t, fs.sent)
	assert.Empty(t, *httpGot)
}

func TestFlushBulkForcesHTTP(t *testing.T) {
	c, fs, httpGot := newTestClient(t, TransportWS)
	require.NoError(t, c.Flush(context.Background(), makeWrites(301)))

	assert.Equal(t, TransportHTTP, c.Transport())
	assert.Empty(t, fs.sent)
	require.NotEmpty(t, *httpGot)

	// Every delivered envelope re-serializes under the HTTP budget and
	// concatenation preserves the input.
	total := 0
	for _, st := range *httpGot {
		b, err := json.Marshal(st)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(b), HTTPBudget)
		require.Len(t, st.Seg, 1)
		total += len(st.Seg[0].I) / 2
	}
	assert.Equal(t, 301, total)
}

func TestFlushChunkFailureIsNonFatal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0, 256, Options{Preference: TransportHTTP}, zerolog.Nop())
	c.sleep = func(d time.Duration) {}
	err := c.Flush(context.Background(), makeWrites(5))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chunks failed")
}

func TestClearRangeFillsBlack(t *testing.T) {
	c, _, httpGot := newTestClient(t, TransportWS)
	require.NoError(t, c.Clear(context.Background()))

	require.Len(t, *httpGot, 1)
	seg := (*httpGot)[0].Seg
	require.Len(t, seg, 1)
	assert.Equal(t, []any{float64(0), float64(256), "000000"}, seg[0].I)
}

func TestFlushEmptyBatchNoTraffic(t *testing.T) {
	c, fs, httpGot := newTestClient(t, TransportWS)
	require.NoError(t, c.Flush(context.Background(), nil))
	assert.Empty(t, fs.sent)
	assert.Empty(t, *httpGot)
}
