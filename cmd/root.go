// Package cmd implements CLI commands using cobra framework.
package cmd

import "github.com/spf13/cobra"

var configFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "spindle",
	Short: "Spindle - In-path passive RTT measurement middlebox",
	Long: `Spindle sits in the forwarding path and passively estimates round-trip
time on transit flows from protocol latency signals: TCP reserved-bit VEC
and timestamp echo, the QUIC spin bit, and PLUS PSN/PSE. Flows whose
destination port maps to a configured backend are steered there with a
NAT-like rewrite; everything else is forwarded untouched.`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/spindle/config.yml",
		"config file path")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}
