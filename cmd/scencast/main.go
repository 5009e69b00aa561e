package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	_ "modernc.org/sqlite"

	"github.com/scencast/scencast/internal/copula"
	"github.com/scencast/scencast/internal/models"
	"github.com/scencast/scencast/internal/quantile"
	"github.com/scencast/scencast/internal/store"
)

type cli struct {
	DB      string `help:"Path to SQLite database." default:"data/scencast.db"`
	Verbose bool   `short:"v" help:"Enable debug logging."`

	Ingest   ingestCmd   `cmd:"" help:"Load forecast and actuals CSV files for a location."`
	Generate generateCmd `cmd:"" help:"Generate coherent scenarios from a job file."`
	Score    scoreCmd    `cmd:"" help:"Pinball-score a stored forecast against stored actuals."`
}

type appContext struct {
	ctx   context.Context
	log   zerolog.Logger
	store *store.Store
}

type ingestCmd struct {
	Location string `arg:"" help:"Location name the data belongs to."`
	Forecast string `help:"Quantile-forecast CSV (fold,issue_time,lead_hours,q...)." type:"existingfile"`
	Actuals  string `help:"Observations CSV (issue_time,lead_hours,value)." type:"existingfile"`
}

func (c *ingestCmd) Run(app *appContext) error {
	if c.Forecast == "" && c.Actuals == "" {
		return fmt.Errorf("nothing to ingest: pass --forecast and/or --actuals")
	}

	if c.Forecast != "" {
		f, err := os.Open(c.Forecast)
		if err != nil {
			return err
		}
		defer f.Close()

		table, ctrl, err := store.ReadForecastCSV(f)
		if err != nil {
			return fmt.Errorf("read forecast %s: %w", c.Forecast, err)
		}
		if err := app.store.SaveForecast(c.Location, table, ctrl); err != nil {
			return err
		}
		app.log.Info().Str("location", c.Location).Int("rows", table.Rows()).
			Int("levels", len(table.Levels)).Msg("forecast ingested")
	}

	if c.Actuals != "" {
		f, err := os.Open(c.Actuals)
		if err != nil {
			return err
		}
		defer f.Close()

		actuals, err := store.ReadActualsCSV(f)
		if err != nil {
			return fmt.Errorf("read actuals %s: %w", c.Actuals, err)
		}
		for _, a := range actuals {
			if err := app.store.UpsertActual(c.Location, a.Issue, a.Lead, a.Value); err != nil {
				return err
			}
		}
		app.log.Info().Str("location", c.Location).Int("rows", len(actuals)).Msg("actuals ingested")
	}
	return nil
}

type generateCmd struct {
	Job    string `arg:"" help:"JSON job file describing the scenario run." type:"existingfile"`
	OutDir string `help:"Also write per-location scenario CSVs to this directory."`
}

// jobFile is the on-disk description of one scenario run. Marginal forecasts
// are pulled from the database by location name; the job carries everything
// the database does not: copula settings and per-fold covariances.
type jobFile struct {
	Copula      string        `json:"copula"`
	SampleCount int           `json:"sample_count"`
	Seed        uint64        `json:"seed"`
	Parallelism int           `json:"parallelism"`
	Locations   []jobLocation `json:"locations"`
	Covariance  []jobFold     `json:"covariance"`
}

type jobLocation struct {
	Name      string  `json:"name"`
	PITMethod string  `json:"pit_method"`
	TailL     float64 `json:"tail_lower"`
	TailU     float64 `json:"tail_upper"`
}

type jobFold struct {
	Fold  string      `json:"fold"`
	Mean  []float64   `json:"mean"`
	Sigma [][]float64 `json:"sigma"`
}

func (c *generateCmd) Run(app *appContext) error {
	raw, err := os.ReadFile(c.Job)
	if err != nil {
		return err
	}
	var job jobFile
	if err := json.Unmarshal(raw, &job); err != nil {
		return fmt.Errorf("parse job %s: %w", c.Job, err)
	}

	cov, err := buildCovariance(job.Covariance)
	if err != nil {
		return err
	}

	req := copula.Request{
		Copula:      copula.CopulaType(job.Copula),
		SampleCount: job.SampleCount,
		Covariance:  cov,
		Seed:        job.Seed,
		Parallelism: job.Parallelism,
	}
	for _, jl := range job.Locations {
		table, ctrl, err := app.store.LoadForecast(jl.Name)
		if err != nil {
			return err
		}
		ctrl.PITMethod = jl.PITMethod
		ctrl.Tails = models.TailConfig{Method: "interpolate", L: jl.TailL, U: jl.TailU}
		req.Locations = append(req.Locations, copula.Location{
			Name:     jl.Name,
			Marginal: table,
			Control:  ctrl,
		})
	}

	engine := copula.New(app.log)
	sets, err := engine.Generate(app.ctx, req)
	if err != nil {
		return err
	}

	runID, err := app.store.CreateRun(job.Copula, job.SampleCount, job.Seed)
	if err != nil {
		return err
	}
	for _, set := range sets {
		if err := app.store.SaveScenarios(runID, set); err != nil {
			return err
		}
	}
	app.log.Info().Int64("run", runID).Int("locations", len(sets)).Msg("scenarios stored")

	if c.OutDir != "" {
		if err := os.MkdirAll(c.OutDir, 0o755); err != nil {
			return err
		}
		for name, set := range sets {
			path := filepath.Join(c.OutDir, name+".csv")
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			if err := store.WriteScenarioCSV(f, set); err != nil {
				f.Close()
				return fmt.Errorf("write %s: %w", path, err)
			}
			if err := f.Close(); err != nil {
				return err
			}
		}
		app.log.Info().Str("dir", c.OutDir).Msg("scenario CSVs written")
	}
	return nil
}

func buildCovariance(folds []jobFold) (*models.CovarianceSet, error) {
	if len(folds) == 0 {
		return nil, fmt.Errorf("job has no covariance folds")
	}
	cov := &models.CovarianceSet{
		Sigma: make(map[string]*mat.SymDense, len(folds)),
		Mean:  make(map[string][]float64, len(folds)),
	}
	for _, jf := range folds {
		n := len(jf.Sigma)
		data := make([]float64, 0, n*n)
		for i, row := range jf.Sigma {
			if len(row) != n {
				return nil, fmt.Errorf("fold %q: sigma row %d has %d values, want %d", jf.Fold, i, len(row), n)
			}
			data = append(data, row...)
		}
		cov.Sigma[jf.Fold] = mat.NewSymDense(n, data)
		cov.Mean[jf.Fold] = jf.Mean
	}
	return cov, nil
}

type scoreCmd struct {
	Location string `arg:"" help:"Location whose stored forecast to score."`
}

func (c *scoreCmd) Run(app *appContext) error {
	table, ctrl, err := app.store.LoadForecast(c.Location)
	if err != nil {
		return err
	}
	actuals, err := app.store.LoadActuals(c.Location, ctrl)
	if err != nil {
		return err
	}

	score, err := quantile.Pinball(table, actuals)
	if err != nil {
		return err
	}
	for i, lv := range score.Levels {
		fmt.Printf("q%-6g %.6f\n", lv, score.Losses[i])
	}
	fmt.Printf("overall %.6f\n", score.Overall)
	return nil
}

func main() {
	var c cli
	kctx := kong.Parse(&c,
		kong.Name("scencast"),
		kong.Description("Probabilistic forecasting toolkit: quantile forecasts, pinball scoring, and Gaussian-copula scenario generation."),
		kong.UsageOnError(),
	)

	level := zerolog.InfoLevel
	if c.Verbose {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).With().Timestamp().Logger()

	if dir := filepath.Dir(c.DB); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatal().Err(err).Msg("create database directory")
		}
	}
	db, err := sql.Open("sqlite", c.DB)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer db.Close()

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db, log)
	if err := st.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("migrate database")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := &appContext{ctx: ctx, log: log, store: st}
	kctx.FatalIfErrorf(kctx.Run(app))
}
