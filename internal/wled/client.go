package wled

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/pixelwall/internal/pixel"
)

// doer matches *http.Client.
type doer interface {
	Do(*http.Request) (*http.Response, error)
}

// sender matches Session; tests substitute a fake.
type sender interface {
	Send(ctx context.Context, payload []byte) error
}

// Client delivers pixel batches to a WLED instance, choosing transport
// per batch and pacing chunks to stay under the firmware's limits.
type Client struct {
	baseURL   string
	segID     int
	ledCount  int
	pref      Transport
	sess      sender
	http      doer
	wsDelay   time.Duration
	httpDelay time.Duration
	sleep     func(time.Duration)
	log       zerolog.Logger

	// last transport actually used; read by the sync loop to pick its
	// retry delay. Only touched under the registry's hardware gate.
	active Transport
}

// Options tune a Client beyond its endpoint.
type Options struct {
	Preference Transport
	WSDelay    time.Duration // base inter-chunk delay on the socket path
	HTTPDelay  time.Duration // fixed inter-chunk delay on the HTTP path
}

// NewClient builds a client for the WLED instance at baseURL driving
// ledCount LEDs of segment segID.
func NewClient(baseURL string, segID, ledCount int, opts Options, log zerolog.Logger) *Client {
	if opts.WSDelay == 0 {
		opts.WSDelay = 50 * time.Millisecond
	}
	if opts.HTTPDelay == 0 {
		opts.HTTPDelay = 100 * time.Millisecond
	}
	return &Client{
		baseURL:   baseURL,
		segID:     segID,
		ledCount:  ledCount,
		pref:      opts.Preference,
		sess:      NewSession(wsURL(baseURL), log),
		http:      &http.Client{Timeout: 10 * time.Second},
		wsDelay:   opts.WSDelay,
		httpDelay: opts.HTTPDelay,
		sleep:     time.Sleep,
		log:       log,
	}
}

func wsURL(baseURL string) string {
	switch {
	case len(baseURL) > 8 && baseURL[:8] == "https://":
		return "wss://" + baseURL[8:] + "/ws"
	case len(baseURL) > 7 && baseURL[:7] == "http://":
		return "ws://" + baseURL[7:] + "/ws"
	}
	return baseURL + "/ws"
}

// Transport reports the transport of the most recent flush.
func (c *Client) Transport() Transport { return c.active }

// TransportIsHTTP reports whether the last flush took the slower HTTP
// path; the sync loop lengthens its retry delay accordingly.
func (c *Client) TransportIsHTTP() bool { return c.active == TransportHTTP }

// Flush sends one drained batch. Chunk failures are logged and skipped,
// not retried: the next sync tick re-derives updates from authoritative
// cell state, so hardware converges without per-write reliability.
func (c *Client) Flush(ctx context.Context, writes []pixel.Write) error {
	if len(writes) == 0 {
		return nil
	}
	tr := SelectTransport(c.pref, len(writes))
	c.active = tr
	chunks := Chunk(c.segID, writes, tr.Budget())

	var failed int
	for i, chunk := range chunks {
		if i > 0 {
			if tr == TransportWS {
				c.sleep(c.wsDelay * time.Duration(i))
			} else {
				c.sleep(c.httpDelay)
			}
		}
		payload, err := json.Marshal(PairsMessage(c.segID, chunk))
		if err != nil {
			c.log.Error().Err(err).Msg("marshal chunk")
			failed++
			continue
		}
		if err := c.send(ctx, tr, payload); err != nil {
			c.log.Warn().Err(err).Int("chunk", i).Int("pixels", len(chunk)).
				Str("transport", tr.String()).Msg("chunk send failed")
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d chunks failed", failed, len(chunks))
	}
	return nil
}

// Clear blanks the entire segment with a single range fill. It always
// uses HTTP so the caller gets a confirmed completion before any other
// room is allowed to paint.
func (c *Client) Clear(ctx context.Context) error {
	payload, err := json.Marshal(RangeFillMessage(c.segID, 0, c.ledCount, "000000", 0))
	if err != nil {
		return err
	}
	return c.postJSON(ctx, payload)
}

func (c *Client) send(ctx context.Context, tr Transport, payload []byte) error {
	if tr == TransportWS {
		return c.sess.Send(ctx, payload)
	}
	return c.postJSON(ctx, payload)
}

func (c *Client) postJSON(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/json/state", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("wled returned %s", resp.Status)
	}
	return nil
}
