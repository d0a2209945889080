package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bingoboard.ai/internal/config"
	"bingoboard.ai/internal/transport/ws"
)

func main() {
	var (
		configPath = flag.String("config", "./configs/bingo.yaml", "bingo config path (missing file means defaults + BINGO_* env)")
		eventsPath = flag.String("events", "-", "JSONL event feed path (- for stdin, none for websocket only)")
		defsDir    = flag.String("definitions", "", "override definitions_dir")
		dataDir    = flag.String("data", "", "override data_dir")
	)
	flag.Parse()

	logger := log.New(os.Stderr, "[bingo] ", log.LstdFlags|log.Lmicroseconds)

	path := strings.TrimSpace(*configPath)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		logger.Printf("config %s not found; using defaults", path)
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if d := strings.TrimSpace(*defsDir); d != "" {
		cfg.DefinitionsDir = d
	}
	if d := strings.TrimSpace(*dataDir); d != "" {
		cfg.DataDir = d
		cfg.SQLitePath = ""
		cfg.Normalize()
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := run(ctx, cfg, *eventsPath, logger); err != nil {
		logger.Fatalf("%v", err)
	}
}

// run opens the feed, starts the host and serves until the feed ends or ctx
// is done. The host is always closed before run returns.
func run(ctx context.Context, cfg config.Config, eventsPath string, logger *log.Logger) error {
	feed, closeFeed, err := openFeed(eventsPath, cfg.ListenAddr != "")
	if err != nil {
		return err
	}
	defer closeFeed()

	h, err := newHost(ctx, cfg, os.Stdout, logger)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer h.Close()

	if cfg.ListenAddr != "" {
		srv := serveEvents(ctx, h, cfg.ListenAddr, logger)
		defer func() {
			ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel2()
			_ = srv.Shutdown(ctx2)
		}()
	}

	logger.Printf("running store=%s definitions=%s data=%s tick=%s flush=%s",
		cfg.Store, cfg.DefinitionsDir, cfg.DataDir, cfg.Tick(), cfg.FlushInterval())
	if err := h.Run(ctx, feed); err != nil && !errors.Is(err, context.Canceled) {
		logger.Printf("stopped: %v", err)
	}
	return nil
}

// openFeed resolves the -events flag: "-" or empty is stdin, "none" means
// websocket producers only.
func openFeed(p string, listening bool) (io.Reader, func(), error) {
	switch p = strings.TrimSpace(p); {
	case p == "none":
		if !listening {
			return nil, nil, errors.New("-events none needs listen_addr")
		}
		return nil, func() {}, nil
	case p == "" || p == "-":
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, nil, fmt.Errorf("open events: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

func serveEvents(ctx context.Context, h *host, addr string, logger *log.Logger) *http.Server {
	wsSrv := ws.NewServer(h.submit, logger)
	h.attach(wsSrv)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/v1/events", wsSrv.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	go func() {
		logger.Printf("listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("ListenAndServe: %v", err)
		}
	}()
	return srv
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
