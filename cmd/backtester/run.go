package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"portfoliosim/internal/config"
	"portfoliosim/internal/engine"
	"portfoliosim/internal/repository"
	"portfoliosim/internal/series"
	"portfoliosim/strategies"
)

type options struct {
	cfg  *config.Config
	name string
	fast bool
}

func readOptions(cmd *cobra.Command) (*options, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	level, err := log.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}
	log.SetLevel(level)

	if dir, _ := cmd.Flags().GetString("csv-dir"); dir != "" {
		cfg.Results.CSVDir = dir
	}
	opts := &options{cfg: cfg, fast: cfg.Simulation.Fast}
	if cmd.Flags().Lookup("fast") != nil && cmd.Flags().Changed("fast") {
		opts.fast, _ = cmd.Flags().GetBool("fast")
	}
	opts.name, _ = cmd.Flags().GetString("name")
	if opts.name == "" {
		opts.name = fmt.Sprintf("%s-%s", cfg.Strategy.Kind, uuid.NewString()[:8])
	}
	return opts, nil
}

func openSource(ctx context.Context, cfg *config.Config) (repository.Source, func(), error) {
	switch cfg.Data.Source {
	case config.SourceCSV:
		return repository.NewCSVSource(cfg.Data.Dir), func() {}, nil
	case config.SourceParquet:
		return repository.NewParquetSource(cfg.Data.Dir), func() {}, nil
	case config.SourcePostgres:
		if cfg.Data.DatabaseURL == "" {
			return nil, nil, errors.New("data.database_url is required for the postgres source")
		}
		db, err := repository.NewDatabase(ctx, cfg.Data.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown data source %q", cfg.Data.Source)
}

func loadStore(ctx context.Context, cfg *config.Config) (*series.Store, error) {
	src, closeSrc, err := openSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer closeSrc()

	interval, err := cfg.Interval()
	if err != nil {
		return nil, err
	}
	// load everything available so predictors can look back before the window
	return repository.BuildStore(ctx, src, cfg.Tickers(), interval, engine.TimeBegin, engine.TimeEnd, cfg.Data.LoadWorkers)
}

func newEngine(ctx context.Context, cfg *config.Config) (*engine.Engine, engine.PredictorFactory, error) {
	factory, err := strategies.NewRegistry().Build(cfg.Strategy)
	if err != nil {
		return nil, nil, fmt.Errorf("strategy: %w", err)
	}
	brokerCfg, err := cfg.BrokerConfig()
	if err != nil {
		return nil, nil, err
	}
	simCfg, err := cfg.SimulationConfig()
	if err != nil {
		return nil, nil, err
	}
	reportingCfg, err := cfg.ReportingConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := loadStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	eng, err := engine.NewEngine(store, brokerCfg, simCfg, reportingCfg)
	if err != nil {
		return nil, nil, err
	}
	return eng, factory, nil
}

func runOnce(ctx context.Context, opts *options) error {
	eng, factory, err := newEngine(ctx, opts.cfg)
	if err != nil {
		return err
	}
	start, end, err := opts.cfg.Window()
	if err != nil {
		return err
	}
	res, err := eng.Run(factory, start, end, opts.name, opts.fast)
	if err != nil {
		return err
	}
	eng.PrintReport(os.Stdout, eng.GenerateReport(res))
	eng.PrintTransactions(os.Stdout, res)
	if err := eng.ExportCSV(res); err != nil {
		return fmt.Errorf("export csv: %w", err)
	}
	return save(ctx, opts.cfg, res)
}

func compare(ctx context.Context, opts *options) error {
	eng, factory, err := newEngine(ctx, opts.cfg)
	if err != nil {
		return err
	}
	start, end, err := opts.cfg.Window()
	if err != nil {
		return err
	}
	cmp, err := eng.Compare(factory, start, end, opts.name)
	if err != nil {
		return err
	}
	full, fast := eng.GenerateReport(cmp.Full), eng.GenerateReport(cmp.Fast)
	full.Name, fast.Name = "Simulation", "FastSim"
	eng.PrintReport(os.Stdout, full, fast)
	fmt.Printf("max relative difference %.3g at %s\n", cmp.MaxRelativeDiff, cmp.At.Format("2006-01-02"))
	return nil
}

func save(ctx context.Context, cfg *config.Config, res *engine.Result) error {
	if cfg.Results.SQLitePath == "" {
		return nil
	}
	store, err := repository.NewResultStore(ctx, cfg.Results.SQLitePath)
	if err != nil {
		return err
	}
	defer store.Close()
	id := uuid.NewString()
	if err := store.SaveRun(ctx, id, res); err != nil {
		return err
	}
	log.WithFields(log.Fields{"id": id, "db": cfg.Results.SQLitePath}).Info("saved run")
	return nil
}

func show(ctx context.Context, opts *options, args []string) error {
	if opts.cfg.Results.SQLitePath == "" {
		return errors.New("results.sqlite_path is not configured")
	}
	store, err := repository.NewResultStore(ctx, opts.cfg.Results.SQLitePath)
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) == 0 {
		ids, err := store.ListRuns(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Println(id)
		}
		return nil
	}
	run, err := store.LoadRun(ctx, args[0])
	if err != nil {
		return err
	}
	res := &engine.Result{
		Name:           run.Name,
		Start:          run.Start,
		End:            run.End,
		ReturnsDaily:   run.ReturnsDaily,
		ReturnsMonthly: run.ReturnsMonthly,
		InitialCash:    run.InitialCash,
		Deposits:       run.Deposits,
		Final:          run.Final,
	}
	reportingCfg, err := opts.cfg.ReportingConfig()
	if err != nil {
		return err
	}
	engine.WriteReportTable(os.Stdout, run.ID, engine.NewReport(res, reportingCfg))
	return nil
}
