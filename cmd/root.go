// Package cmd wires the node's cobra command tree, grounded on the teacher
// module's own cmd/root.go: a RootCommand constructor that binds persistent
// flags to viper-backed settings and attaches one subcommand per mode of
// operation.
package cmd

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sarpel/micrelay/cmd/configcmd"
	"github.com/sarpel/micrelay/cmd/stream"
	"github.com/sarpel/micrelay/internal/conf"
)

// RootCommand creates and returns the root command.
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "micrelay",
		Short: "micrelay audio relay node",
	}

	if err := setupFlags(rootCmd, settings); err != nil {
		log.Printf("error setting up flags: %v\n", err)
	}

	streamCmd := stream.Command(settings)
	configCmd := configcmd.Command(settings)

	rootCmd.AddCommand(streamCmd, configCmd)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() != "init" {
			if err := initialize(); err != nil {
				return fmt.Errorf("error initializing: %w", err)
			}
		}
		return nil
	}

	return rootCmd
}

// initialize runs before any subcommand except config init, which must work
// without a pre-existing config file.
func initialize() error {
	return nil
}

// setupFlags defines flags global to the command line interface.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().StringVar(&settings.Wifi.SSID, "ssid", viper.GetString("wifi.ssid"), "WiFi SSID to associate with")
	rootCmd.PersistentFlags().StringVar(&settings.Server.Host, "host", viper.GetString("server.host"), "Receiver host to relay audio to")
	rootCmd.PersistentFlags().IntVar(&settings.Server.Port, "port", viper.GetInt("server.port"), "Receiver TCP port")
	rootCmd.PersistentFlags().Uint32Var(&settings.I2S.SampleRate, "sample-rate", uint32(viper.GetInt("i2s.sample_rate")), "I2S capture sample rate in Hz")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
