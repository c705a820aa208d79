// Package configcmd provides configuration management subcommands.
package configcmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarpel/micrelay/internal/conf"
)

// Command returns the "config" command group.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or scaffold node configuration",
	}

	cmd.AddCommand(initCommand(), showCommand(settings))
	return cmd
}

func initCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := conf.WriteDefault(out); err != nil {
				return err
			}
			fmt.Printf("wrote default configuration to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "micrelay.yaml", "Path to write the default configuration")
	return cmd
}

func showCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the currently loaded configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := conf.ValidateAll(settings); err != nil {
				fmt.Printf("warning: configuration invalid: %v\n", err)
			}
			fmt.Printf("wifi.ssid=%s server=%s:%d tcp.chunk_bytes=%d i2s.sample_rate=%d\n",
				settings.Wifi.SSID, settings.Server.Host, settings.Server.Port,
				settings.TCP.ChunkBytes, settings.I2S.SampleRate)
			return nil
		},
	}
}
