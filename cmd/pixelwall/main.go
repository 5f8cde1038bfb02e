package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/pixelwall/internal/config"
	"github.com/coreman2200/pixelwall/internal/grid"
	"github.com/coreman2200/pixelwall/internal/room"
	"github.com/coreman2200/pixelwall/internal/server"
	"github.com/coreman2200/pixelwall/internal/store"
	"github.com/coreman2200/pixelwall/internal/utility"
	"github.com/coreman2200/pixelwall/internal/wled"
	"github.com/coreman2200/pixelwall/internal/ws"
)

func main() {
	// ---- Flags (config.yaml can override most) ----
	var (
		addr        = flag.String("addr", ":8090", "HTTP listen address")
		configPath  = flag.String("config", "config.yaml", "path to config.yaml")
		wledURL     = flag.String("wled-url", "http://wled.local", "WLED base URL")
		segment     = flag.Int("segment", 0, "WLED segment id")
		width       = flag.Int("width", 16, "canvas width")
		height      = flag.Int("height", 16, "canvas height")
		serpentine  = flag.Bool("serpentine", true, "matrix wired in serpentine order")
		orientation = flag.String("orientation", "top-left", "corner holding logical (0,0)")
		transport   = flag.String("transport", "ws", "preferred hardware transport: ws | http")
		dbPath      = flag.String("db", "pixelwall.db", "path to the room-state database")
		adminSecret = flag.String("admin-secret", "", "shared secret for the admin surface")
		debug       = flag.Bool("debug", false, "verbose logging")
	)
	flag.Parse()

	// ---- Logging ----
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	// ---- Load config.yaml (optional) ----
	var cfg *config.Config
	if c, err := config.Load(*configPath); err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("config load failed; proceeding with flags")
	} else {
		cfg = c
	}

	// ---- Effective params (config overrides flags where set) ----
	eAddr, eWLED, eSecret, eDB := *addr, *wledURL, *adminSecret, *dbPath
	eSeg := *segment
	eW, eH := *width, *height
	eSerp, eOrient := *serpentine, *orientation
	eTransport := *transport
	var eSync config.SyncCfg
	var eWSDelay, eHTTPDelay int

	if cfg != nil {
		if cfg.Addr != "" {
			eAddr = cfg.Addr
		}
		if cfg.AdminSecret != "" {
			eSecret = cfg.AdminSecret
		}
		if cfg.DBPath != "" {
			eDB = cfg.DBPath
		}
		if cfg.Grid.Width > 0 {
			eW = cfg.Grid.Width
		}
		if cfg.Grid.Height > 0 {
			eH = cfg.Grid.Height
		}
		eSerp = cfg.Grid.Serpentine
		if cfg.Grid.Orientation != "" {
			eOrient = cfg.Grid.Orientation
		}
		if cfg.WLED.BaseURL != "" {
			eWLED = cfg.WLED.BaseURL
		}
		if cfg.WLED.SegmentID > 0 {
			eSeg = cfg.WLED.SegmentID
		}
		if cfg.WLED.Transport != "" {
			eTransport = cfg.WLED.Transport
		}
		eWSDelay = cfg.WLED.WSDelayMS
		eHTTPDelay = cfg.WLED.HTTPDelayMS
		eSync = cfg.Sync
	}

	orient, err := grid.ParseOrientation(eOrient)
	if err != nil {
		log.Fatal().Err(err).Msg("bad orientation")
	}
	mapper := grid.Mapper{Width: eW, Height: eH, Serpentine: eSerp, Orientation: orient}
	if eSecret == "" {
		log.Warn().Msg("admin surface has an empty secret; all admin requests will be rejected unless one is set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Storage ----
	st, err := store.Open(eDB, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Str("path", eDB).Msg("open store")
	}
	defer st.Close()
	if err := st.Init(ctx); err != nil {
		log.Fatal().Err(err).Msg("init store")
	}

	// ---- Hardware client ----
	hw := wled.NewClient(eWLED, eSeg, mapper.Size(), wled.Options{
		Preference: wled.ParseTransport(eTransport),
		WSDelay:    time.Duration(eWSDelay) * time.Millisecond,
		HTTPDelay:  time.Duration(eHTTPDelay) * time.Millisecond,
	}, log.Logger)

	// ---- Rooms, utilities, hub ----
	delays := room.Delays{
		Idle:      time.Duration(eSync.IdleMS) * time.Millisecond,
		WSRetry:   time.Duration(eSync.WSRetryMS) * time.Millisecond,
		HTTPRetry: time.Duration(eSync.HTTPRetryMS) * time.Millisecond,
	}
	reg := room.NewRegistry(ctx, hw, st, mapper.Size(), delays, log.Logger)
	util := utility.NewRegistry(log.Logger)
	util.Register(utility.Fill{})
	util.Register(utility.Sweep{})
	hub := ws.NewHub(reg, mapper, util, log.Logger)

	srv := &http.Server{
		Addr:    eAddr,
		Handler: server.New(reg, hub, util, eSecret, log.Logger).Routes(),
	}
	go func() {
		log.Info().Str("addr", eAddr).Str("wled", eWLED).
			Int("width", eW).Int("height", eH).Msg("pixelwall listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
