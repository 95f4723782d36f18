/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// lrureplay executes LRU cache scenarios (builtin reference ones, ones declared in the configuration
// and ones from YAML files) and exits with non-zero code if any expectation isn't met.
//
// Usage:
//
//	lrureplay [--config path|-] [--filter pattern]... [--no-builtin] [--version] [scenario files...]
//
// With "--config -" the YAML configuration is read from the standard input.
// All configuration parameters may also be set with environment variables
// prefixed with "LRUREPLAY_" (e.g. LRUREPLAY_REPLAY_CONCURRENCY=8, LRUREPLAY_LOG_LEVEL=debug).
package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/acronis/go-appkit/config"
	"github.com/acronis/go-appkit/log"

	"github.com/acronis/go-lrucache/internal/replay"
)

const envVarsPrefix = "lrureplay"

const stdinConfigPath = "-"

const (
	exitCodeOK          = 0
	exitCodeFailed      = 1
	exitCodeConfigError = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	flags := pflag.NewFlagSet("lrureplay", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	cfgPath := flags.StringP("config", "c", "", `path to the YAML configuration file ("-" for stdin)`)
	filters := flags.StringSliceP("filter", "f", nil, "glob pattern for scenario names (may be repeated)")
	noBuiltin := flags.Bool("no-builtin", false, "don't execute builtin reference scenarios")
	showVersion := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitCodeOK
		}
		return exitCodeConfigError
	}
	if *showVersion {
		_, _ = fmt.Fprintln(stdout, "lrureplay", buildVersion())
		return exitCodeOK
	}

	cfg := NewAppConfig()
	loader := config.NewDefaultLoader(envVarsPrefix)
	// Flags take precedence over the file and environment variables.
	if flags.Changed("filter") {
		loader.DataProvider.Set("replay.filters", *filters)
	}
	if *noBuiltin {
		loader.DataProvider.Set("replay.builtin", false)
	}
	if err := loadAppConfig(loader, *cfgPath, stdin, cfg); err != nil {
		_, _ = fmt.Fprintf(stderr, "load configuration: %v\n", err)
		return exitCodeConfigError
	}
	cfg.Replay.Files = append(cfg.Replay.Files, flags.Args()...)

	logger, closeLog := log.NewLogger(cfg.Log)
	defer closeLog()

	scenarios, err := cfg.Replay.LoadScenarios()
	if err != nil {
		logger.Error("failed to load scenarios", log.Error(err))
		_, _ = fmt.Fprintf(stderr, "load scenarios: %v\n", err)
		return exitCodeConfigError
	}
	logger.Info("scenarios loaded", log.Int("count", len(scenarios)), log.Strings("files", cfg.Replay.Files),
		log.String("version", buildVersion()))

	runner := replay.NewRunner(logger, replay.RunnerOpts{
		Concurrency: cfg.Replay.Concurrency,
		Filters:     cfg.Replay.Filters,
	})
	report, err := runner.Run(ctx, scenarios)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "run scenarios: %v\n", err)
		if errors.Is(err, replay.ErrInvalidScenario) {
			return exitCodeConfigError
		}
		return exitCodeFailed
	}

	for _, f := range report.Failures {
		_, _ = fmt.Fprintln(stdout, "FAIL", f.String())
	}
	_, _ = fmt.Fprintf(stdout, "run %s: %d passed, %d failed, %d skipped\n",
		report.RunID, report.Passed, report.Failed, report.Skipped)
	if !report.OK() {
		return exitCodeFailed
	}
	return exitCodeOK
}

func loadAppConfig(loader *config.Loader, path string, stdin io.Reader, cfg *AppConfig) error {
	switch path {
	case "":
		// Defaults and environment variables only.
		return loader.LoadFromReader(bytes.NewReader(nil), config.DataTypeYAML, cfg)
	case stdinConfigPath:
		return loader.LoadFromReader(stdin, config.DataTypeYAML, cfg)
	default:
		return loader.LoadFromFile(path, config.DataTypeYAML, cfg)
	}
}

// AppConfig is the configuration of lrureplay.
type AppConfig struct {
	Replay *replay.Config
	Log    *log.Config
}

// NewAppConfig creates a new AppConfig.
func NewAppConfig() *AppConfig {
	return &AppConfig{
		Replay: replay.NewConfig(),
		Log:    log.NewConfig(),
	}
}

// SetProviderDefaults sets default configuration values for all sections.
func (c *AppConfig) SetProviderDefaults(dp config.DataProvider) {
	config.CallSetProviderDefaultsForFields(c, dp)
}

// Set sets configuration values for all sections.
func (c *AppConfig) Set(dp config.DataProvider) error {
	return config.CallSetForFields(c, dp)
}

func buildVersion() string {
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		return bi.Main.Version
	}
	return "v0.0.0"
}
