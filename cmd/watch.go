package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"firestige.xyz/pktstream/internal/config"
	"firestige.xyz/pktstream/internal/log"
	"firestige.xyz/pktstream/internal/session"
	"firestige.xyz/pktstream/internal/sink"
	"firestige.xyz/pktstream/internal/sink/console"
	"firestige.xyz/pktstream/internal/sink/kafka"
	"firestige.xyz/pktstream/internal/source"
	filesource "firestige.xyz/pktstream/internal/source/file"
)

var (
	readFile   string
	sinkName   string
	sinkFormat string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run one capture session locally",
	Long: `
Run a single capture session and print its messages, or publish them to Kafka.

Examples:
  pktstream watch                                  # live capture, text to stdout
  pktstream watch --read trace.pcap --format json  # replay a capture file
  pktstream watch --sink kafka -c config.yml       # publish to kafka.topic
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		capture := cfg.Capture
		if readFile != "" {
			capture.Source = filesource.Name
			capture.File = readFile
		}
		src, err := source.New(capture)
		if err != nil {
			return err
		}
		if sinkName == console.Name {
			// keep stdout for messages only
			logCfg := cfg.Log
			logCfg.Output = log.OutputStderr
			if err := log.Init(&logCfg); err != nil {
				return err
			}
		}
		snk, err := newSink(sinkName, sinkFormat, cfg.Kafka, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer snk.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runWatch(ctx, src, snk, cfg.Session)
	},
}

func init() {
	watchCmd.Flags().StringVarP(&readFile, "read", "r", "", "replay a pcap file instead of capturing live")
	watchCmd.Flags().StringVar(&sinkName, "sink", console.Name, "where messages go: console|kafka")
	watchCmd.Flags().StringVar(&sinkFormat, "format", console.FormatText, "console format: text|json")
}

func newSink(name, format string, kcfg config.KafkaConfig, w io.Writer) (sink.Sink, error) {
	switch name {
	case console.Name:
		return console.NewSink(w, format), nil
	case kafka.Name:
		return kafka.NewSink(kcfg)
	default:
		return nil, fmt.Errorf("unknown sink %q (must be %s or %s)", name, console.Name, kafka.Name)
	}
}

func runWatch(ctx context.Context, src source.Source, snk sink.Sink, scfg config.SessionConfig) error {
	ctrl := session.NewController(src, snk, session.Options{
		QueueCapacity: scfg.QueueCapacity,
		PollInterval:  scfg.PollInterval,
	})
	err := ctrl.Run(ctx)

	stats := ctrl.Stats()
	log.GetLogger().
		WithField("counts", stats.Counts.String()).
		WithField("delivered", stats.Delivered).
		WithField("dropped", stats.Dropped).
		WithField("filtered", stats.Filtered).
		Info("watch finished")

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
