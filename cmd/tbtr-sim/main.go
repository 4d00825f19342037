// Command tbtr-sim loads a scenario, sends every grouped train through depot arrival
// and reports what template-based replacement did to it.
//
// Template state lives in memory unless TBTR_STORAGE_DRIVER selects a persistent
// store. Savegames go to the blob store chosen by TBTR_BLOB_DRIVER.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/pflag"

	"tbtr/internal/blob"
	"tbtr/internal/core"
	"tbtr/internal/savegame"
	"tbtr/internal/scenario"
	"tbtr/internal/world"
	"tbtr/pkg/domain"
)

var exitFunc = os.Exit

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		exitFunc(1)
	}
}

type options struct {
	scenario    string
	dryRun      bool
	stayInDepot bool
	save        string
	load        string
	logLevel    string
	traceFile   string
	metrics     bool
	format      string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("tbtr-sim", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVarP(&opts.scenario, "scenario", "s", "", "scenario YAML file (required)")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "only estimate the replacement cost of each train")
	fs.BoolVar(&opts.stayInDepot, "stay-in-depot", false, "keep replaced trains stopped in the depot")
	fs.StringVar(&opts.save, "save", "", "write the template state to the savegame `name` afterwards")
	fs.StringVar(&opts.load, "load", "", "replace the scenario's templates with the newest savegame `name`")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	fs.StringVar(&opts.traceFile, "trace-file", "", "append JSON trace lines to this file")
	fs.BoolVar(&opts.metrics, "metrics", false, "print per-operation metrics at the end")
	fs.StringVar(&opts.format, "metrics-format", "text", "metrics output: text or prometheus")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}
	if opts.scenario == "" {
		return opts, errors.New("--scenario is required")
	}
	if opts.format != "text" && opts.format != "prometheus" {
		return opts, fmt.Errorf("invalid --metrics-format %q", opts.format)
	}
	return opts, nil
}

func newLogger(level string, w io.Writer) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", level)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

func openStore() (core.PersistentStore, error) {
	if os.Getenv("TBTR_STORAGE_DRIVER") == "" {
		return nil, nil
	}
	return core.OpenPersistentStore(core.NewDefaultRulesEngine())
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	logger, err := newLogger(opts.logLevel, stderr)
	if err != nil {
		return err
	}
	sc, err := scenario.Load(opts.scenario)
	if err != nil {
		return err
	}

	metrics, err := newMetrics(opts.format)
	if err != nil {
		return err
	}
	svcOpts := []core.Option{core.WithLogger(logger), core.WithMetricsRecorder(metrics.recorder)}
	if opts.traceFile != "" {
		f, err := os.OpenFile(opts.traceFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open trace file: %w", err)
		}
		defer func() { _ = f.Close() }()
		svcOpts = append(svcOpts, core.WithTracer(core.NewJSONTracer(f)))
	}

	w := world.New()
	store, err := openStore()
	if err != nil {
		return err
	}
	var svc *core.Service
	if store == nil {
		svc = core.NewInMemoryService(w, svcOpts...)
	} else {
		svc = core.NewService(store, w, svcOpts...)
	}
	if closer, ok := store.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	setup, err := sc.Apply(ctx, w, svc)
	if err != nil {
		return fmt.Errorf("apply scenario: %w", err)
	}
	logger.Info("scenario applied", "scenario", sc.Name, "templates", len(setup.Templates), "trains", len(setup.Trains))

	var archive *savegame.Archive
	if opts.save != "" || opts.load != "" {
		blobs, err := blob.Open(ctx)
		if err != nil {
			return fmt.Errorf("open blob store: %w", err)
		}
		archive = savegame.New(blobs)
	}
	if opts.load != "" {
		if err := loadSave(ctx, archive, svc, opts.load, stdout); err != nil {
			return err
		}
	}

	sim := simulation{svc: svc, world: w, out: stdout}
	var total domain.Money
	for i, id := range setup.Trains {
		total += sim.train(ctx, sc.Trains[i], id, opts)
	}
	verb := "spent"
	if opts.dryRun {
		verb = "estimated"
	}
	fmt.Fprintf(stdout, "total %s: %d\n", verb, total)
	for _, c := range sc.Companies {
		fmt.Fprintf(stdout, "company %d money: %d\n", c.Owner, w.Money(c.Owner))
	}

	if opts.save != "" {
		state, ok := svc.Store().(savegame.State)
		if !ok {
			return fmt.Errorf("store %T cannot be saved", svc.Store())
		}
		info, err := archive.Save(ctx, state, opts.save)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "saved %s (%d bytes)\n", info.Key, info.Size)
	}
	if opts.metrics {
		return metrics.print(stdout)
	}
	return nil
}

func loadSave(ctx context.Context, archive *savegame.Archive, svc *core.Service, name string, out io.Writer) error {
	state, ok := svc.Store().(savegame.State)
	if !ok {
		return fmt.Errorf("store %T cannot load saves", svc.Store())
	}
	doc, err := archive.Load(ctx, state, name)
	if err != nil {
		return err
	}
	if err := svc.ResetWorld(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "loaded %s saved at %s\n", doc.Name, doc.SavedAt.Format("2006-01-02 15:04:05"))
	return nil
}

type simulation struct {
	svc   *core.Service
	world *world.World
	out   io.Writer
}

// train sends one train through depot arrival, or prices it on a dry run, and
// returns the money it cost.
func (s simulation) train(ctx context.Context, tr scenario.Train, id domain.VehicleID, opts options) domain.Money {
	label := tr.Name
	if label == "" {
		label = "train " + id.String()
	}
	v, ok := s.world.Vehicle(id)
	if !ok {
		fmt.Fprintf(s.out, "%s: vanished\n", label)
		return 0
	}
	assoc, ok, err := s.svc.GroupTemplate(ctx, v.GroupID)
	if err != nil || !ok || !assoc.HasTemplate() {
		fmt.Fprintf(s.out, "%s: no template\n", label)
		return 0
	}

	if opts.dryRun {
		cost, err := s.svc.EstimateReplacement(ctx, v.Owner, id)
		if err != nil {
			fmt.Fprintf(s.out, "%s: cannot replace: %v\n", label, err)
			return 0
		}
		fmt.Fprintf(s.out, "%s: would cost %d\n", label, cost)
		return cost
	}

	out, replaced, err := s.svc.HandleDepotArrival(ctx, id, opts.stayInDepot)
	switch {
	case err != nil:
		fmt.Fprintf(s.out, "%s: replacement failed: %v\n", label, err)
		return 0
	case !replaced:
		fmt.Fprintf(s.out, "%s: unchanged\n", label)
		return 0
	}
	fmt.Fprintf(s.out, "%s: replaced for %d -> %s\n", label, out.Cost, s.describe(out.NewHead))
	return out.Cost
}

// describe names the real units of the train headed by head.
func (s simulation) describe(head domain.VehicleID) string {
	chain, err := s.world.Chain(head)
	if err != nil {
		return "?"
	}
	names := make([]string, 0, len(chain))
	for _, v := range chain {
		if v.Subtype.IsMarker() {
			continue
		}
		name := v.EngineType.String()
		if e, ok := s.world.Engine(v.EngineType); ok {
			name = e.Name
		}
		names = append(names, name)
	}
	return strings.Join(names, " + ")
}

// metricsOutput collects service metrics either as expvar counters printed as text lines or
// on a private Prometheus registry written in the exposition format.
type metricsOutput struct {
	recorder core.MetricsRecorder
	expvar   *core.ExpvarMetricsRecorder
	registry *prometheus.Registry
}

func newMetrics(format string) (metricsOutput, error) {
	if format != "prometheus" {
		r := core.NewExpvarMetricsRecorder("")
		return metricsOutput{recorder: r, expvar: r}, nil
	}
	reg := prometheus.NewRegistry()
	r, err := core.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		return metricsOutput{}, fmt.Errorf("register metrics: %w", err)
	}
	return metricsOutput{recorder: r, registry: reg}, nil
}

func (m metricsOutput) print(w io.Writer) error {
	if m.registry == nil {
		printMetrics(w, m.expvar.Snapshot())
		return nil
	}
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

func printMetrics(w io.Writer, snap core.ExpvarMetricsSnapshot) {
	ops := make([]string, 0, len(snap.Operations))
	for op := range snap.Operations {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		st := snap.Operations[op]
		fmt.Fprintf(w, "metric %s success=%d errors=%d total_ms=%.3f\n", op, st.Success, st.Errors, st.TotalMS)
	}
}
