package main

import (
	"fmt"
	"os"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"xray/internal/app"
	"xray/internal/app/cli"
	"xray/internal/app/feed"
	"xray/internal/app/generator"
	"xray/internal/config"
	"xray/internal/config/logger"
)

// main is the entry point for the application
func main() {
	os.Exit(runApp(os.Args[1:]))
}

// runApp parses the command line and dispatches to the requested mode
func runApp(args []string) int {
	opts, err := cli.Parse(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	switch opts.Type {
	case cli.CommandVersion:
		fmt.Printf("%s %s\n", config.AppName, config.Version)
		return 0
	case cli.CommandHelp:
		return 0
	case cli.CommandInit:
		return runInit(opts)
	case cli.CommandTail:
		return runTail(opts)
	default:
		return runServe(opts)
	}
}

// runInit generates the xray.yaml template
func runInit(opts *cli.Options) int {
	log := logger.NewLogger(config.DefaultConfig())

	if err := generator.NewGenerator(log).Generate(opts.Force, opts.DryRun); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	return 0
}

// runTail streams the feed of a running instance to stdout
func runTail(opts *cli.Options) int {
	args := make([]string, 0, len(opts.Topics)+1)
	if opts.FeedName != "" {
		args = append(args, "--feed="+opts.FeedName)
	}

	args = append(args, opts.Topics...)

	return feed.NewRunner(feed.NewClient()).Run(args)
}

// runServe loads the configuration and runs the long-lived fx application
func runServe(opts *cli.Options) int {
	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	application := createApp(cfg)
	application.Run()

	if err := application.Err(); err != nil {
		return 1
	}

	return 0
}

// loadConfig loads the configuration file and applies command-line overrides
func loadConfig(opts *cli.Options) (*config.Config, error) {
	cfg, err := config.LoadFile(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	if opts.StorePath != "" {
		cfg.Store.Path = opts.StorePath
	}

	if opts.Port != 0 {
		cfg.Server.Port = opts.Port
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// createApp creates the FX application with the given config
func createApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.WithLogger(createFxLogger(cfg)),
		fx.Supply(cfg),
		fx.Provide(func() logger.Logger {
			return logger.NewLogger(cfg)
		}),
		app.Module,
	)
}

// createFxLogger returns an FX logger based on the config
func createFxLogger(cfg *config.Config) func() fxevent.Logger {
	return func() fxevent.Logger {
		if cfg.Logging.Level == logger.DebugLevel {
			return &fxevent.ConsoleLogger{W: os.Stdout}
		}

		return fxevent.NopLogger
	}
}
