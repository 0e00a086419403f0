// Command sureflap-sync mirrors a Sure Petcare account into an MQTT
// topic hierarchy and pushes control changes back to the vendor cloud.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/petsync/sureflap-sync/internal/core"
	"github.com/petsync/sureflap-sync/internal/sinks/influx"
	"github.com/petsync/sureflap-sync/internal/store"
	"github.com/petsync/sureflap-sync/internal/surepet"
	"github.com/petsync/sureflap-sync/pkg/config"
	"github.com/petsync/sureflap-sync/pkg/model"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	var (
		configPath   = flag.String("config", "config.yaml", "path to configuration file")
		showVersion  = flag.Bool("version", false, "print version and exit")
		testLogin    = flag.Bool("test-login", false, "check the configured credentials and exit")
		writeExample = flag.String("write-example-config", "", "write an example config to the given path and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		return
	}
	if *writeExample != "" {
		if err := config.WriteExample(*writeExample); err != nil {
			fmt.Fprintf(os.Stderr, "writing example config: %v\n", err)
			os.Exit(1)
		}
		return
	}
	if *testLogin {
		if err := runTestLogin(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "login failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("login ok")
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "sureflap-sync: %v\n", err)
		os.Exit(1)
	}
}

// runTestLogin performs one throwaway credential check against the
// configured account.
func runTestLogin(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	resp := surepet.TestLogin(context.Background(), model.TestLoginRequest{
		Host:     cfg.API.Host,
		Username: cfg.API.Username,
		Password: cfg.API.Password,
	}, setupLogger(cfg.Log))
	if !resp.Success {
		return errors.New(resp.Error)
	}
	return nil
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log)
	slog.SetDefault(logger)
	logger.Info("starting", "version", version)

	loc, err := cfg.Location()
	if err != nil {
		return fmt.Errorf("resolving timezone: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Connect(cfg.MQTT, logger.With("component", "store"))
	if err != nil {
		return err
	}
	defer st.Close()

	replay, err := core.OpenSQLiteReplayStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer replay.Close()

	api := surepet.New(cfg.API, logger.With("component", "api"))
	warnings := core.NewSuppressionTable(logger)
	norm := core.NewNormalizer(loc, cfg.Battery, warnings, logger.With("component", "normalizer"))
	proj := core.NewProjector(st, warnings, loc, version, logger.With("component", "projector"))

	var sink core.MetricsSink
	if cfg.Influx.Enabled {
		is := influx.New(cfg.Influx, logger.With("component", "influx"))
		defer is.Close()
		sink = is
	}

	orch := core.NewOrchestrator(api, norm, proj, replay, warnings, sink, cfg.Poll, logger.With("component", "orchestrator"))
	disp := core.NewDispatcher(api, st, st, orch, norm, replay, logger.With("component", "dispatcher"))

	st.OnTestLogin(func(req model.TestLoginRequest) model.TestLoginResponse {
		return surepet.TestLogin(ctx, req, logger.With("component", "test_login"))
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return orch.Run(gctx) })
	g.Go(func() error { return disp.Run(gctx) })

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		logger.Info("shutting down")
		return nil
	}
	return err
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
