// Command resolution-scan evaluates the track resolution of a beam
// telescope over a range of beam energies.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/telescope/internal/api"
	"github.com/banshee-data/telescope/internal/config"
	"github.com/banshee-data/telescope/internal/db"
	"github.com/banshee-data/telescope/internal/monitoring"
	"github.com/banshee-data/telescope/internal/report"
	"github.com/banshee-data/telescope/internal/scan"
	"github.com/banshee-data/telescope/internal/version"
)

type options struct {
	verbosity   string
	configPath  string
	energies    string
	csvPath     string
	profilePath string
	pngPath     string
	htmlPath    string
	dbPath      string
	label       string
	listen      string
	workers     int
	showVersion bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("resolution-scan", flag.ContinueOnError)
	fs.SetOutput(stderr)

	o := &options{}
	fs.StringVar(&o.verbosity, "v", "", "Log level: QUIET, ERROR, WARNING, RESULT, INFO or DEBUG (overrides config)")
	fs.StringVar(&o.configPath, "config", "", "Scan config JSON file (default: built-in DATURA geometry)")
	fs.StringVar(&o.energies, "energies", "", "Beam energies in GeV, \"min:max:step\" or a comma list (overrides config)")
	fs.StringVar(&o.csvPath, "csv", "", "Write per-energy results as CSV to this file, - for stdout")
	fs.StringVar(&o.profilePath, "profile-csv", "", "Write the binned resolution profile as CSV to this file")
	fs.StringVar(&o.pngPath, "png", "", "Write a resolution plot to this PNG file")
	fs.StringVar(&o.htmlPath, "html", "", "Write an interactive resolution chart to this HTML file")
	fs.StringVar(&o.dbPath, "db", "", "Record the run in this SQLite database")
	fs.StringVar(&o.label, "label", "", "Label stored with the run")
	fs.StringVar(&o.listen, "listen", "", "Serve the chart and debug pages on this address after the scan")
	fs.IntVar(&o.workers, "workers", -1, "Concurrent evaluations, 0 for one per CPU (overrides config)")
	fs.BoolVar(&o.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return o, nil
}

func loadConfig(o *options) (*config.ScanConfig, error) {
	cfg := config.EmptyScanConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = config.LoadScanConfig(o.configPath); err != nil {
			return nil, err
		}
	}
	if o.energies != "" {
		cfg.Energies = &o.energies
	}
	if o.workers >= 0 {
		cfg.Workers = &o.workers
	}
	if o.verbosity != "" {
		cfg.Verbosity = &o.verbosity
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func plotTitle(r *scan.Runner) string {
	g := r.Geometry
	return fmt.Sprintf("%d+%d planes, %g mm pitch, DUT at %g mm",
		g.UpstreamPlanes, g.DownstreamPlanes, g.Spacing, g.DUTPosition())
}

// scanResult is everything a run produced, for the output stages.
type scanResult struct {
	cfg     *config.ScanConfig
	runner  *scan.Runner
	results []scan.Result
	profile *scan.Profile
	started time.Time
}

func runScan(ctx context.Context, cfg *config.ScanConfig) (*scanResult, error) {
	energies, err := scan.ParseEnergies(cfg.GetEnergies())
	if err != nil {
		return nil, fmt.Errorf("energies: %w", err)
	}
	runner, err := scan.NewRunnerFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	out := &scanResult{cfg: cfg, runner: runner, started: time.Now()}
	monitoring.Infof("Scanning %d energies from %g to %g GeV", len(energies), energies[0], energies[len(energies)-1])
	if out.results, err = runner.Run(ctx, energies); err != nil {
		return nil, err
	}

	where := "DUT"
	if runner.QueryPlane != scan.DUTPlane {
		where = fmt.Sprintf("plane %d", runner.QueryPlane)
	}
	for _, r := range out.results {
		monitoring.Resultf("Track resolution at %s with a beam energy of %g GeV: %.4g um", where, r.Energy, r.Resolution*1e3)
		if r.Unbiased != r.Resolution {
			monitoring.Infof("  unbiased: %.4g um", r.Unbiased*1e3)
		}
	}

	if out.profile, err = scan.NewProfile(cfg.GetProfileBins(), cfg.GetProfileMin(), cfg.GetProfileMax()); err != nil {
		return nil, err
	}
	out.profile.FillResults(out.results)
	if n := out.profile.Underflow() + out.profile.Overflow(); n > 0 {
		monitoring.Warnf("%d energies outside the profile range [%g, %g] GeV", n, cfg.GetProfileMin(), cfg.GetProfileMax())
	}
	return out, nil
}

func createOutput(path string, stdout io.Writer) (io.Writer, func() error, error) {
	if path == "-" {
		return stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

func writeCSV(path string, stdout io.Writer, write func(*report.CSVWriter) error) (err error) {
	w, closeFn, err := createOutput(path, stdout)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeFn(); err == nil {
			err = cerr
		}
	}()
	cw := report.NewCSVWriter(w)
	if err := write(cw); err != nil {
		return err
	}
	return cw.Flush()
}

func writeOutputs(o *options, res *scanResult, stdout io.Writer) error {
	title := plotTitle(res.runner)
	if o.csvPath != "" {
		if err := writeCSV(o.csvPath, stdout, func(cw *report.CSVWriter) error {
			return cw.WriteResults(res.results)
		}); err != nil {
			return fmt.Errorf("csv: %w", err)
		}
	}
	if o.profilePath != "" {
		if err := writeCSV(o.profilePath, stdout, func(cw *report.CSVWriter) error {
			return cw.WriteProfile(res.profile.Filled())
		}); err != nil {
			return fmt.Errorf("profile csv: %w", err)
		}
	}
	if o.pngPath != "" {
		if err := report.WritePNG(o.pngPath, res.results, title); err != nil {
			return fmt.Errorf("png: %w", err)
		}
		monitoring.Infof("Wrote %s", o.pngPath)
	}
	if o.htmlPath != "" {
		f, err := os.Create(o.htmlPath)
		if err != nil {
			return fmt.Errorf("html: %w", err)
		}
		if err := report.RenderHTML(f, res.results, title); err != nil {
			f.Close()
			return fmt.Errorf("html: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("html: %w", err)
		}
		monitoring.Infof("Wrote %s", o.htmlPath)
	}
	return nil
}

func recordRun(store *db.DB, o *options, res *scanResult) (string, error) {
	cfgJSON, err := json.Marshal(res.cfg)
	if err != nil {
		return "", err
	}
	run := &db.Run{
		Label:      o.label,
		QueryPlane: res.runner.QueryPlane,
		ConfigJSON: string(cfgJSON),
		StartedAt:  res.started,
	}
	if err := store.RecordRun(run); err != nil {
		return "", err
	}
	if err := store.RecordResults(run.ID, res.results); err != nil {
		return "", err
	}
	monitoring.Infof("Recorded run %s with %d results", run.ID, len(res.results))
	return run.ID, nil
}

func newMux(store *db.DB, res *scanResult) (*http.ServeMux, error) {
	mux := api.NewServer(res.runner, res.cfg, res.results, plotTitle(res.runner), store).ServeMux()
	if store != nil {
		if err := store.AttachAdminRoutes(mux); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

func serve(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{Addr: addr, Handler: handler}
	errc := make(chan error, 1)
	go func() {
		monitoring.Infof("Serving results on %s", addr)
		errc <- server.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if o.showVersion {
		fmt.Fprintln(stdout, version.String("resolution-scan"))
		return nil
	}

	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}
	monitoring.SetLevel(cfg.GetVerbosity())

	res, err := runScan(ctx, cfg)
	if err != nil {
		return err
	}
	if err := writeOutputs(o, res, stdout); err != nil {
		return err
	}

	var store *db.DB
	if o.dbPath != "" {
		if store, err = db.NewDB(o.dbPath); err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer store.Close()
		if _, err := recordRun(store, o, res); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}

	if o.listen != "" {
		mux, err := newMux(store, res)
		if err != nil {
			return err
		}
		return serve(ctx, o.listen, api.LoggingMiddleware(mux))
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatalf("resolution-scan: %v", err)
	}
}
