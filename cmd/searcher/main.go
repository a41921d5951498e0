package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	// A local .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	app := &cli.App{
		Name:  "searcher",
		Usage: "Search backrun opportunities on partial-block updates",
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Run the searcher",
				Flags:  runFlags(),
				Action: run,
			},
			{
				Name:   "check-config",
				Usage:  "Parse the trigger config file and print the configured triggers",
				Flags:  checkConfigFlags(),
				Action: checkConfig,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
