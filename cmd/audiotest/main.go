package main

import (
	"os"

	"github.com/melophonic/audiotest/cmd/audiotest/cmd"
	"github.com/melophonic/audiotest/pkg/logger"
)

func main() {
	if err := cmd.Execute(); err != nil {
		logger.Error().Err(err).Msg("Application execution failed")
		os.Exit(1)
	}
}
