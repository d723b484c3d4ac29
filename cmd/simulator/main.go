package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"text/tabwriter"
	"time"

	"github.com/signalsfoundry/decay-simulator/internal/fleet"
	"github.com/signalsfoundry/decay-simulator/internal/logging"
	"github.com/signalsfoundry/decay-simulator/internal/oracle"
	"github.com/signalsfoundry/decay-simulator/kb"
	"github.com/signalsfoundry/decay-simulator/model"
	"github.com/signalsfoundry/decay-simulator/timectrl"
)

// Options configure a batch run.
type Options struct {
	Scenario   fleet.Scenario
	OracleURL  string
	Tick       time.Duration
	Duration   time.Duration
	// UntilEmpty stops the run early once no satellite is ACTIVE.
	UntilEmpty bool
	Start      time.Time
	Seed       int64
	Log        logging.Logger
}

// Report summarises a finished run.
type Report struct {
	Body       string            `json:"body"`
	Frames     int               `json:"frames"`
	Elapsed    time.Duration     `json:"elapsed_ns"`
	Deorbits   []DeorbitRecord   `json:"deorbits"`
	Satellites []fleet.Satellite `json:"satellites"`
}

// DeorbitRecord is one deorbit event annotated with its frame number.
type DeorbitRecord struct {
	model.DeorbitEvent
	Name  string `json:"name"`
	Frame int    `json:"frame"`
}

func main() {
	scenarioPath := flag.String("scenario", "configs/scenario.example.json", "JSON scenario to run")
	oracleURL := flag.String("oracle-url", "", "Density oracle base URL; empty uses the fallback model only")
	tick := flag.Duration("tick", 100*time.Millisecond, "Frame delta")
	duration := flag.Duration("duration", 10*time.Minute, "Total frame time to simulate")
	untilEmpty := flag.Bool("until-empty", true, "Stop once every satellite has deorbited")
	seed := flag.Int64("seed", 1, "Seed for unset orbit orientation angles")
	asJSON := flag.Bool("json", false, "Print the report as JSON")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	f, err := os.Open(*scenarioPath)
	if err != nil {
		log.Error(ctx, "failed to open scenario", logging.String("path", *scenarioPath), logging.Err(err))
		os.Exit(1)
	}
	sc, err := fleet.LoadScenario(f)
	f.Close()
	if err != nil {
		log.Error(ctx, "failed to load scenario", logging.String("path", *scenarioPath), logging.Err(err))
		os.Exit(1)
	}

	report, err := Run(ctx, Options{
		Scenario:   sc,
		OracleURL:  *oracleURL,
		Tick:       *tick,
		Duration:   *duration,
		UntilEmpty: *untilEmpty,
		Seed:       *seed,
		Log:        log,
	})
	if err != nil {
		log.Error(ctx, "simulation failed", logging.Err(err))
		os.Exit(1)
	}

	if *asJSON {
		err = writeJSON(os.Stdout, report)
	} else {
		err = writeText(os.Stdout, report)
	}
	if err != nil {
		log.Error(ctx, "failed to write report", logging.Err(err))
		os.Exit(1)
	}
}

// Run steps the scenario frame by frame without waiting for the wall clock.
// Oracle calls are made inline so results are reproducible for a fixed seed.
func Run(ctx context.Context, opts Options) (Report, error) {
	if opts.Tick <= 0 {
		return Report{}, fmt.Errorf("%w: tick must be positive", model.ErrInvalidConfiguration)
	}
	if opts.Log == nil {
		opts.Log = logging.Noop()
	}
	if opts.Start.IsZero() {
		opts.Start = time.Now().UTC()
	}

	regOpts := []fleet.Option{
		fleet.WithCapacity(opts.Scenario.Capacity),
		fleet.WithStartTime(opts.Start),
		fleet.WithRand(rand.New(rand.NewSource(opts.Seed))),
		fleet.WithLogger(opts.Log),
	}
	if opts.OracleURL != "" {
		regOpts = append(regOpts, fleet.WithOracle(oracle.NewClient(opts.OracleURL,
			oracle.WithExecutor(oracle.Inline),
			oracle.WithLogger(opts.Log),
		)))
	}

	catalog := kb.NewKnowledgeBase()
	reg, err := fleet.NewRegistry(catalog.Selected(), regOpts...)
	if err != nil {
		return Report{}, err
	}
	stop, err := reg.Follow(catalog)
	if err != nil {
		return Report{}, err
	}
	defer stop()

	ids, err := reg.ApplyScenario(catalog, opts.Scenario)
	if err != nil {
		return Report{}, err
	}
	names := make(map[string]string, len(ids))
	for _, sat := range reg.List() {
		names[sat.ID] = sat.Name
	}

	tc := timectrl.NewTimeController(opts.Start, opts.Tick, timectrl.Accelerated)
	var (
		report  = Report{Body: reg.Body().Name}
		tickErr error
	)
	reg.Subscribe(func(ev model.DeorbitEvent) {
		report.Deorbits = append(report.Deorbits, DeorbitRecord{
			DeorbitEvent: ev,
			Name:         names[ev.SatelliteID],
			Frame:        report.Frames,
		})
	})
	tc.AddListener(func(_ time.Time, dt time.Duration) {
		report.Frames++
		tickErr = reg.Tick(ctx, dt)
	})

	for tc.Clock().Elapsed() < opts.Duration {
		tc.Step()
		if tickErr != nil {
			return Report{}, fmt.Errorf("frame %d: %w", report.Frames, tickErr)
		}
		if opts.UntilEmpty {
			if active, _ := reg.Counts(); active == 0 {
				break
			}
		}
	}

	report.Elapsed = tc.Clock().Elapsed()
	report.Satellites = reg.List()
	opts.Log.Info(ctx, "simulation complete",
		logging.Int("frames", report.Frames),
		logging.Int("deorbits", len(report.Deorbits)),
	)
	return report, nil
}

func writeJSON(w io.Writer, report Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func writeText(w io.Writer, report Report) error {
	fmt.Fprintf(w, "Body %s: %d frames, %s simulated, %d deorbits\n",
		report.Body, report.Frames, report.Elapsed, len(report.Deorbits))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tPERIGEE_KM\tDENSITY\tDEORBIT_FRAME")
	frames := make(map[string]int, len(report.Deorbits))
	for _, d := range report.Deorbits {
		frames[d.SatelliteID] = d.Frame
	}
	for _, sat := range report.Satellites {
		frame := "-"
		if n, ok := frames[sat.ID]; ok {
			frame = fmt.Sprint(n)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1f\t%.3g\t%s\n",
			sat.ID, sat.Name, sat.Status, sat.PerigeeAltKm, sat.DensityKgM3, frame)
	}
	return tw.Flush()
}
