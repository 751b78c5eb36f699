package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"nodepilot/admin"
	"nodepilot/config"
	"nodepilot/journal"
	"nodepilot/node/devnode"
	"nodepilot/observability/logging"
	telemetry "nodepilot/observability/otel"
	"nodepilot/pilot"
)

func main() {
	os.Exit(run(os.Args, os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	program := "nodepilot"
	if len(args) > 0 {
		program = args[0]
	}
	fs := flag.NewFlagSet(program, flag.ContinueOnError)
	fs.SetOutput(stderr)
	settingsPath := fs.String("settings", strings.TrimSpace(os.Getenv("NODEPILOT_SETTINGS")), "path to YAML settings")
	strategy := fs.String("strategy", "", "event loop strategy: blocking or cooperative")
	keypress := fs.Bool("keypress", true, "stop the node when a key is pressed")
	if len(args) > 1 {
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
	}

	cfg, err := config.Assemble(append([]string{program}, fs.Args()...))
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	settings, err := loadSettings(*settingsPath, *strategy)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	if err := serve(cfg, settings, *keypress, stdin, stdout); err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", program, err)
		return 1
	}
	return 0
}

func loadSettings(path, strategy string) (config.Settings, error) {
	settings := config.DefaultSettings()
	if path != "" {
		loaded, err := config.LoadSettings(path)
		if err != nil {
			return settings, fmt.Errorf("load settings: %w", err)
		}
		settings = loaded
	}
	if strategy = strings.ToLower(strings.TrimSpace(strategy)); strategy != "" {
		settings.Strategy = config.Strategy(strategy)
		if err := settings.Validate(); err != nil {
			return settings, err
		}
	}
	return settings, nil
}

func serve(cfg config.Config, settings config.Settings, keypress bool, stdin io.Reader, stdout io.Writer) error {
	env := strings.TrimSpace(os.Getenv("NODEPILOT_ENV"))
	reporter := pilot.NewReporter(stdout)
	logOpts := []logging.Option{logging.WithOutput(reporter.TerminalWriter(os.Stderr))}
	if settings.Log.File != "" {
		file := logging.NewRotatingFile(settings.Log.File, settings.Log.MaxSizeMB, settings.Log.MaxBackups)
		defer file.Close()
		logOpts = []logging.Option{logging.WithOutput(file)}
	}
	logger := logging.Setup("nodepilot", env, logOpts...)

	telemetryCfg := telemetry.ConfigFromEnv("nodepilot", env)
	telemetryCfg.Network = cfg.Network.String()
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetryCfg)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	opts := []pilot.Option{pilot.WithLogger(logger)}
	var entries admin.EntrySource
	if settings.Journal.DSN != "" {
		j, err := journal.Open(settings.Journal.DSN)
		if err != nil {
			return err
		}
		defer j.Close()
		logger.Info("event journal enabled", logging.DSNField("dsn", settings.Journal.DSN))
		opts = append(opts, pilot.WithJournal(j))
		entries = j
	}

	handle, err := devnode.New(cfg,
		devnode.WithSyncInterval(settings.Devnode.SyncInterval.Duration),
		devnode.WithSyncRate(settings.Devnode.SyncRate),
		devnode.WithLogRotation(settings.Log.MaxSizeMB, settings.Log.MaxBackups),
	)
	if err != nil {
		return fmt.Errorf("build node: %w", err)
	}
	defer func() {
		if err := handle.Close(); err != nil {
			logger.Warn("close node", slog.Any("error", err))
		}
	}()

	triggers := []pilot.Trigger{pilot.InterruptTrigger(), pilot.TerminateTrigger()}
	if keypress {
		triggers = append([]pilot.Trigger{pilot.KeypressTrigger{In: stdin, Reporter: reporter}}, triggers...)
	}
	opts = append(opts, pilot.WithReporter(reporter), pilot.WithTriggers(triggers...))

	controller, err := pilot.New(handle, cfg, settings, opts...)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	adminErr := make(chan error, 1)
	if settings.Admin.Listen != "" {
		server := admin.New(controller, entries, logger)
		go func() { adminErr <- server.Serve(ctx, settings.Admin.Listen) }()
	} else {
		adminErr <- nil
	}

	runErr := controller.Run(ctx)
	cancel()
	if err := <-adminErr; err != nil {
		logger.Warn("admin server stopped", slog.Any("error", err))
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}
