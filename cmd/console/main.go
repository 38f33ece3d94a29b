// Command console runs the market microstructure monitoring console. It
// keeps a resilient stream of per-symbol telemetry snapshots and drives the
// remote simulation run through the control API.
//
// Usage:
//
//	console --config config.yaml
//	console --mode simulation --api-url http://host:8080 --stream-url ws://host:8080/ws
//	console setup
//
// Required environment variables:
//
//	METRICS_API_TOKEN - bearer credential attached to every outgoing call
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"mmconsole/config"
	"mmconsole/internal/clients"
	"mmconsole/internal/session"
	"mmconsole/internal/setup"
	"mmconsole/internal/stream"
	"mmconsole/internal/view"
)

const renderInterval = time.Second

func main() {
	if len(os.Args) > 1 && os.Args[1] == "setup" {
		if err := setup.RunTUI([]string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}); err != nil {
			log.Fatal(err)
		}
		return
	}

	cfg, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	api := clients.NewMetricsAPI(cfg.APIURL, cfg.Token)
	sess := session.New(api, cfg.Mode, logger)
	streamClient := stream.New(cfg.StreamURL, cfg.Token, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if len(cfg.Symbols) > 0 {
		sess.SetSelection(cfg.Symbols)
	} else {
		sess.SetSelection(sess.RefreshCatalog(ctx))
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sess.RunPolling(ctx)
	})
	g.Go(func() error {
		return renderLoop(ctx, sess, streamClient)
	})

	logger.Info("console started",
		zap.String("mode", string(cfg.Mode)),
		zap.String("api_url", cfg.APIURL))

	err = g.Wait()

	streamClient.Dispose()
	sess.Close()

	if err != nil && err != context.Canceled {
		logger.Error("console stopped", zap.Error(err))
	}
}

// renderLoop keeps the stream subscription aligned with the session's
// authoritative symbol set and redraws the terminal once a second.
func renderLoop(ctx context.Context, sess *session.Session, streamClient *stream.Client) error {
	ticker := time.NewTicker(renderInterval)
	defer ticker.Stop()

	var subscribed []string
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			active := sess.ActiveSymbols()
			if !sameSet(active, subscribed) {
				streamClient.Configure(active)
				subscribed = active
			}

			frame := view.Frame{
				Conn:      streamClient.State(),
				Status:    sess.Status(),
				Pending:   sess.Pending(),
				LastError: sess.LastError(),
				Snapshots: streamClient.Observe(),
				Symbols:   active,
				Now:       time.Now(),
			}
			os.Stdout.WriteString("\033[H\033[2J" + view.Render(frame))
		}
	}
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, sym := range a {
		set[sym] = struct{}{}
	}
	for _, sym := range b {
		if _, ok := set[sym]; !ok {
			return false
		}
	}
	return true
}
