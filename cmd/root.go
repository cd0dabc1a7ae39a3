// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"github.com/spf13/cobra"

	"firestige.xyz/pktstream/internal/config"
	"firestige.xyz/pktstream/internal/log"

	// capture sources register themselves
	_ "firestige.xyz/pktstream/internal/source/afpacket"
	_ "firestige.xyz/pktstream/internal/source/file"
	_ "firestige.xyz/pktstream/internal/source/pcap"
)

var (
	// Global flags
	configFile string

	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pktstream",
	Short: "pktstream - live packet classification streamed over websocket",
	Long: `pktstream captures live traffic on the host's interfaces, classifies every
frame as TCP, UDP, ICMP or Other, keeps running per-protocol counts and streams a
one-line summary of each frame together with the updated counts to a connected
consumer.

Capturing needs libpcap (Npcap on Windows) and capture privileges
(root, or CAP_NET_RAW + CAP_NET_ADMIN on Linux).`,
	Version:           "0.1.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults and PKTSTREAM_* environment when empty)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(interfacesCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	loaded, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if err := log.Init(&loaded.Log); err != nil {
		return err
	}
	cfg = loaded
	return nil
}
