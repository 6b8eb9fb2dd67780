package main

import (
	"log/slog"

	"github.com/MentalFish/huddle/internal/cli"
	"github.com/MentalFish/huddle/internal/logging"
)

func main() {
	// Keep transport noise out of the TUI unless asked for.
	logging.Init(slog.LevelWarn)
	cli.Execute()
}
