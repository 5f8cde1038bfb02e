// Command wledsim is a stand-in WLED endpoint for bench testing: it
// accepts the JSON state API over HTTP and WebSocket, logs what it
// receives, and can inject failures.
package main

import (
	"encoding/json"
	"flag"
	"io"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/pixelwall/internal/wled"
)

func main() {
	var (
		addr     = flag.String("addr", ":8888", "listen address")
		failRate = flag.Float64("fail-rate", 0, "fraction of requests to fail (0..1)")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})

	logState := func(origin string, data []byte) bool {
		var st wled.State
		if err := json.Unmarshal(data, &st); err != nil {
			log.Warn().Err(err).Str("origin", origin).Msg("unparseable state payload")
			return false
		}
		pixels := 0
		for _, seg := range st.Seg {
			pixels += len(seg.I) / 2
		}
		log.Info().Str("origin", origin).Int("bytes", len(data)).
			Int("segments", len(st.Seg)).Int("pixels", pixels).Msg("state received")
		return true
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /json/state", func(w http.ResponseWriter, r *http.Request) {
		if rand.Float64() < *failRate {
			http.Error(w, "injected failure", http.StatusInternalServerError)
			return
		}
		data, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "read failed", http.StatusBadRequest)
			return
		}
		if !logState("http", data) {
			http.Error(w, "bad payload", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true}`))
	})
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if rand.Float64() < *failRate {
				log.Warn().Msg("dropping frame (injected failure)")
				_ = conn.Close()
				return
			}
			logState("ws", data)
		}
	})

	log.Info().Str("addr", *addr).Float64("fail_rate", *failRate).Msg("wledsim listening")
	if err := http.ListenAndServe(*addr, mux); err != nil {
		log.Fatal().Err(err).Msg("listen")
	}
}
