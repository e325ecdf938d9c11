package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/spindle/internal/config"
	"firestige.xyz/spindle/internal/core"
	"firestige.xyz/spindle/internal/dstmap"
	"firestige.xyz/spindle/internal/engine"
	"firestige.xyz/spindle/internal/log"
	"firestige.xyz/spindle/internal/metrics"
	"firestige.xyz/spindle/internal/pipeline"
	"firestige.xyz/spindle/internal/source"
	"firestige.xyz/spindle/internal/trace"

	// Packet source registrations.
	_ "firestige.xyz/spindle/internal/source/afpacket"
	_ "firestige.xyz/spindle/internal/source/file"
)

var outputFile string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the measurement engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if err := log.Init(cfg.Log); err != nil {
			return err
		}
		logger := log.GetLogger()

		dst, err := dstmap.Load(cfg.BackendsFile)
		if err != nil {
			return err
		}

		src, err := source.New(cfg.Source)
		if err != nil {
			return err
		}
		defer src.Close()

		var fwd core.Forwarder
		if outputFile != "" {
			pw, err := engine.NewPcapForwarder(outputFile)
			if err != nil {
				return err
			}
			defer pw.Close()
			fwd = pw
		} else {
			fwd = &engine.CountForwarder{}
		}

		pipe := pipeline.New(pipeline.Options{
			QUICPort:     cfg.QUICPort,
			Tick:         cfg.Tick.Seconds(),
			TimeoutTicks: cfg.TimeoutTicks,
			WheelSize:    cfg.WheelSize,
			MaxSessions:  cfg.MaxSessions,
			Dst:          dst,
			Clock:        engine.NewClock(),
			Tracer:       trace.LogSink{},
			TraceAll:     cfg.TraceAll,
		})

		if cfg.Metrics.Enabled {
			ms := metrics.NewServer(cfg.Metrics.Listen)
			ms.Start()
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				ms.Stop(ctx)
			}()
			logger.WithField("listen", cfg.Metrics.Listen).Info("metrics server started")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.WithFields(map[string]interface{}{
			"source":    cfg.Source.Type,
			"quic_port": cfg.QUICPort,
			"timeout":   cfg.TimeoutTicks,
		}).Info("engine starting")

		return engine.New(src, pipe, fwd, 0).Run(ctx)
	},
}

func init() {
	runCmd.Flags().StringVarP(&outputFile, "output", "o", "",
		"write processed packets to a pcap file instead of discarding")
}
