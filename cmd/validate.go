package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/spindle/internal/config"
	"firestige.xyz/spindle/internal/dstmap"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration and backends file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if _, err := dstmap.Load(cfg.BackendsFile); err != nil {
			return err
		}
		fmt.Printf("%s: OK (source=%s quic_port=%d timeout=%d ticks)\n",
			configFile, cfg.Source.Type, cfg.QUICPort, cfg.TimeoutTicks)
		return nil
	},
}
