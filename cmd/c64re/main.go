// Package main implements the main entry point for the C64 program graph tool
package main

import (
	"context"
	"errors"
	"os"

	"github.com/retroenv/c64re/internal/cli"
	"github.com/retroenv/c64re/internal/config"
	"github.com/retroenv/retrogolib/app"
	"github.com/retroenv/retrogolib/log"
)

var (
	version = "dev"
	commit  = ""
	date    = ""
)

func main() {
	ctx := app.Context()

	c := cli.New(version, commit, date)
	if err := c.Execute(ctx, os.Args[1:], os.Stdout); err != nil {
		logger := config.CreateLogger(false, false)
		// Handle context cancellation (Ctrl+C) gracefully
		if errors.Is(err, context.Canceled) {
			logger.Info("Operation cancelled")
			return
		}
		logger.Fatal("Command failed", log.Err(err))
	}
}
