// Package cli defines the huddle client commands.
package cli

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/MentalFish/huddle/internal/ui"
	"github.com/MentalFish/huddle/internal/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "huddle",
	Short:   "Multi-party video room client using WebRTC",
	Long:    `Huddle is a command-line client for multi-party video rooms. It connects to a signaling server, negotiates a direct WebRTC connection with every other participant, and shares a live avatar board and drawing canvas with the room.`,
	Version: version.Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	go func() {
		<-sig
		os.Exit(0)
	}()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}
