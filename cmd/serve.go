package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/pktstream/internal/log"
	"firestige.xyz/pktstream/internal/metrics"
	"firestige.xyz/pktstream/internal/server"
	"firestige.xyz/pktstream/internal/source"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve capture sessions over websocket",
	Long: `
Listen for websocket consumers. Each connection starts its own capture session
and receives {"protocol_counts": {...}, "log": "..."} messages until it
disconnects, or a single {"error": "..."} message if capture fails.

Examples:
  pktstream serve                                  # 127.0.0.1:8000/ws, every interface
  pktstream serve -c config.yml
  PKTSTREAM_CAPTURE_SOURCE=afpacket PKTSTREAM_CAPTURE_INTERFACES=eth0 pktstream serve
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func runServe(ctx context.Context) error {
	if cfg.Metrics.Enabled {
		ms := metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
		if err := ms.Start(ctx); err != nil {
			return err
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := ms.Stop(stopCtx); err != nil {
				log.GetLogger().WithError(err).Warn("metrics server stop failed")
			}
		}()
	}

	capture := cfg.Capture
	srv := server.New(cfg.Server, cfg.Session, func() (source.Source, error) {
		return source.New(capture)
	})
	log.GetLogger().WithField("source", capture.Source).Info("pktstream serving")
	return srv.Run(ctx)
}
