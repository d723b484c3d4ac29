package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/decay-simulator/internal/api"
	"github.com/signalsfoundry/decay-simulator/internal/fleet"
	"github.com/signalsfoundry/decay-simulator/internal/logging"
	"github.com/signalsfoundry/decay-simulator/internal/observability"
	"github.com/signalsfoundry/decay-simulator/internal/oracle"
	"github.com/signalsfoundry/decay-simulator/kb"
	"github.com/signalsfoundry/decay-simulator/model"
	"github.com/signalsfoundry/decay-simulator/timectrl"
)

// Config holds the daemon settings gathered from flags.
type Config struct {
	HTTPAddress    string
	GRPCAddress    string
	ScenarioPath   string
	CheckpointPath string
	OracleURL      string
	OracleTimeout  time.Duration
	TickInterval   time.Duration
	Duration       time.Duration
	Accelerated    bool
	Workers        int
	Capacity       int

	// Registerer receives the Prometheus collectors. Nil means the global
	// registry.
	Registerer prometheus.Registerer
}

func main() {
	var cfg Config
	flag.StringVar(&cfg.HTTPAddress, "http-addr", ":8080", "HTTP address for the REST API and /metrics")
	flag.StringVar(&cfg.GRPCAddress, "grpc-addr", ":50051", "TCP address of the gRPC health server")
	flag.StringVar(&cfg.ScenarioPath, "scenario", "", "Path to a JSON scenario applied at startup")
	flag.StringVar(&cfg.CheckpointPath, "checkpoint", "", "Checkpoint file restored at startup and written on shutdown")
	flag.StringVar(&cfg.OracleURL, "oracle-url", "http://localhost:8000", "Base URL of the density oracle; empty uses the fallback model only")
	flag.DurationVar(&cfg.OracleTimeout, "oracle-timeout", oracle.DefaultTimeout, "Per-request density oracle timeout")
	flag.DurationVar(&cfg.TickInterval, "tick", 100*time.Millisecond, "Frame interval")
	flag.DurationVar(&cfg.Duration, "duration", 0, "Stop after this much frame time (0 runs until interrupted)")
	flag.BoolVar(&cfg.Accelerated, "accelerated", false, "Use a fixed frame delta instead of measured wall time")
	flag.IntVar(&cfg.Workers, "workers", 0, "Satellites stepped concurrently (0 = GOMAXPROCS)")
	flag.IntVar(&cfg.Capacity, "capacity", 0, "Fleet capacity (0 = scenario value or default)")
	flag.Parse()

	log := logging.NewFromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpLis, err := net.Listen("tcp", cfg.HTTPAddress)
	if err != nil {
		log.Error(ctx, "failed to listen for HTTP", logging.String("addr", cfg.HTTPAddress), logging.Err(err))
		os.Exit(1)
	}
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddress)
	if err != nil {
		log.Error(ctx, "failed to listen for gRPC", logging.String("addr", cfg.GRPCAddress), logging.Err(err))
		os.Exit(1)
	}

	if err := run(ctx, cfg, log, httpLis, grpcLis); err != nil {
		log.Error(ctx, "decaysim exited", logging.Err(err))
		os.Exit(1)
	}
}

// run wires the simulation and serves until ctx is cancelled or the
// configured duration of frame time has elapsed.
func run(ctx context.Context, cfg Config, log logging.Logger, httpLis, grpcLis net.Listener) error {
	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	collector, err := observability.NewDecayCollector(cfg.Registerer)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	var sc fleet.Scenario
	if cfg.ScenarioPath != "" {
		if sc, err = readScenario(cfg.ScenarioPath); err != nil {
			return err
		}
	}
	capacity := sc.Capacity
	if cfg.Capacity > 0 {
		capacity = cfg.Capacity
	}

	mode := timectrl.RealTime
	if cfg.Accelerated {
		mode = timectrl.Accelerated
	}
	tc := timectrl.NewTimeController(time.Now().UTC(), cfg.TickInterval, mode)

	opts := []fleet.Option{
		fleet.WithCapacity(capacity),
		fleet.WithStartTime(tc.Now()),
		fleet.WithWorkers(cfg.Workers),
		fleet.WithLogger(log),
		fleet.WithMetricsRecorder(collector),
	}
	var client *oracle.Client
	if cfg.OracleURL != "" {
		client = oracle.NewClient(cfg.OracleURL,
			oracle.WithTimeout(cfg.OracleTimeout),
			oracle.WithMetricsRecorder(collector),
			oracle.WithLogger(log),
		)
		opts = append(opts, fleet.WithOracle(client))
	} else {
		log.Warn(ctx, "no density oracle configured; using the fallback model for every satellite")
	}

	catalog := kb.NewKnowledgeBase()
	reg, err := fleet.NewRegistry(catalog.Selected(), opts...)
	if err != nil {
		return fmt.Errorf("create fleet: %w", err)
	}

	restored, err := restoreCheckpoint(ctx, cfg.CheckpointPath, reg, catalog, log)
	if err != nil {
		return err
	}
	stopFollowing, err := reg.Follow(catalog)
	if err != nil {
		return fmt.Errorf("follow catalog: %w", err)
	}
	defer stopFollowing()

	if !restored && cfg.ScenarioPath != "" {
		ids, err := reg.ApplyScenario(catalog, sc)
		if err != nil {
			return fmt.Errorf("apply scenario %q: %w", cfg.ScenarioPath, err)
		}
		log.Info(ctx, "applied scenario",
			logging.String("path", cfg.ScenarioPath),
			logging.String("body", reg.Body().Name),
			logging.Int("satellites", len(ids)),
		)
	}

	unsubscribe := reg.Subscribe(func(ev model.DeorbitEvent) {
		log.Info(ctx, "satellite deorbited",
			logging.SatelliteID(ev.SatelliteID),
			logging.Float("perigee_alt_km", ev.PerigeeAltKm),
			logging.String("at", ev.At.Format(time.RFC3339)),
		)
	})
	defer unsubscribe()

	apiSrv := api.NewServer(cfg.HTTPAddress, api.Config{
		Fleet:   reg,
		Catalog: catalog,
		Metrics: collector.Handler(),
		Logger:  log,
	})
	health := observability.NewHealthServer(collector, log)

	g, gctx := errgroup.WithContext(ctx)
	tc.AddListener(func(_ time.Time, dt time.Duration) {
		if err := reg.Tick(gctx, dt); err != nil && gctx.Err() == nil {
			log.Warn(gctx, "tick failed", logging.Err(err))
		}
	})

	g.Go(func() error {
		log.Info(ctx, "starting HTTP API", logging.String("addr", httpLis.Addr().String()))
		if err := apiSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := health.Serve(grpcLis); err != nil {
			return fmt.Errorf("grpc server: %w", err)
		}
		return nil
	})

	health.SetServing(true)
	log.Info(ctx, "starting simulation loop",
		logging.String("tick", cfg.TickInterval.String()),
		logging.String("mode", mode.String()),
		logging.String("duration", cfg.Duration.String()),
	)
	done := tc.Run(gctx, cfg.Duration)

	g.Go(func() error {
		<-done
		log.Info(ctx, "shutting down decaysim")
		health.SetServing(false)
		if client != nil {
			client.Wait()
		}

		var errs []error
		if err := saveCheckpoint(cfg.CheckpointPath, reg); err != nil {
			errs = append(errs, err)
		} else if cfg.CheckpointPath != "" {
			log.Info(ctx, "checkpoint written", logging.String("path", cfg.CheckpointPath))
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := apiSrv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		health.GracefulStop()
		return errors.Join(errs...)
	})

	return g.Wait()
}

func readScenario(path string) (fleet.Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return fleet.Scenario{}, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()

	sc, err := fleet.LoadScenario(f)
	if err != nil {
		return fleet.Scenario{}, fmt.Errorf("load scenario %q: %w", path, err)
	}
	return sc, nil
}

// restoreCheckpoint loads path into reg when it exists and points the
// catalog at the restored body. It must run before the registry follows the
// catalog, otherwise the selection would clear the restored fleet.
func restoreCheckpoint(ctx context.Context, path string, reg *fleet.Registry, catalog *kb.KnowledgeBase, log logging.Logger) (bool, error) {
	if path == "" {
		return false, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()

	if err := reg.LoadCheckpoint(f); err != nil {
		return false, fmt.Errorf("load checkpoint %q: %w", path, err)
	}

	body := reg.Body()
	if _, err := catalog.GetBody(body.Name); errors.Is(err, kb.ErrBodyNotFound) {
		if err := catalog.AddBody(body); err != nil {
			return false, fmt.Errorf("register checkpoint body: %w", err)
		}
	}
	if _, err := catalog.Select(body.Name); err != nil {
		return false, fmt.Errorf("select checkpoint body: %w", err)
	}

	log.Info(ctx, "restored checkpoint",
		logging.String("path", path),
		logging.String("body", body.Name),
		logging.Int("satellites", reg.Len()),
	)
	return true, nil
}

// saveCheckpoint writes to a temporary sibling and renames it over path.
func saveCheckpoint(path string, reg *fleet.Registry) error {
	if path == "" {
		return nil
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create checkpoint: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := reg.SaveCheckpoint(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}
