package main

import (
	"fmt"
	"os"

	"github.com/lxt/lxt/pkg/cli"
	"github.com/lxt/lxt/pkg/config"
	"github.com/lxt/lxt/pkg/logging"
	"github.com/lxt/lxt/pkg/report"
)

func main() {
	initLogging()

	factory, err := cli.NewCommandFactory()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintf(os.Stderr, "\nCheck %s or the LXT_* environment variables.\n", config.GetConfigPath())
		os.Exit(report.ExitFailure)
	}

	if err := factory.RootCmd().Execute(); err != nil {
		if !cli.IsReported(err) {
			report.PrintError(os.Stderr, err)
		}
		os.Exit(report.ExitCode(err))
	}
}

func initLogging() {
	logger, err := logging.NewLogger(logging.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v, using default logger\n", err)
		return
	}
	logging.SetDefault(logger)
}
