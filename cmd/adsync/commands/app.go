package commands

import (
	"os"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"adsync/internal/config"
	"adsync/internal/gather"
	"adsync/internal/gather/facebook"
	"adsync/internal/metrics"
	"adsync/internal/store"
	"adsync/internal/util"
)

// app is the wired set of collaborators one command runs with.
type app struct {
	cfg     *config.Config
	log     *zap.SugaredLogger
	sink    store.Sink
	metrics *metrics.Recorder
	syncer  *gather.Syncer
}

// newApp loads the configuration and builds the syncer. Nothing here talks
// to the upstream API.
func newApp() (*app, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("ADSYNC_CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, errors.Wrap(err, "loading config")
	}

	log, err := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, errors.Wrap(err, "creating logger")
	}

	cal, err := util.NewAccountCalendar(cfg.Sync.Timezone)
	if err != nil {
		return nil, errors.Mark(err, config.ErrInvalidConfig)
	}

	progress, err := gather.NewProgress(cfg.StateDir)
	if err != nil {
		return nil, err
	}

	sink, err := store.Open(cfg.Warehouse)
	if err != nil {
		return nil, errors.Wrap(err, "opening warehouse")
	}

	rec := metrics.NewRecorder()
	source := facebook.FromConfig(cfg.Facebook, log.Named("facebook"))
	transform := gather.NewTransformer(cfg.Sync.MinSpend(), cfg.Sync.ConversionActionTypes)
	loader := gather.NewLoader(source, sink, transform, cfg.Facebook.FetchTimeout(), log.Named("gather.loader"))

	syncer := gather.NewSyncer(gather.Deps{
		Sink:     sink,
		Loader:   loader,
		Pacer:    util.NewPacer(cfg.Sync.RateLimitDelay()),
		Clock:    cal,
		Progress: progress,
		Metrics:  rec,
		Log:      log.Named("gather.syncer"),
	}, gather.OptionsFromConfig(cfg.Sync))

	log.Debugw("configuration loaded",
		"warehouse", cfg.Warehouse.Driver, "table", cfg.Warehouse.Table,
		"api_version", cfg.Facebook.APIVersion, "timezone", cal.Location().String())

	return &app{cfg: cfg, log: log, sink: sink, metrics: rec, syncer: syncer}, nil
}

// Close writes the metrics textfile when configured and releases the sink.
func (a *app) Close() {
	if path := a.cfg.Metrics.TextfilePath; path != "" {
		if err := a.metrics.WriteTextfile(path); err != nil {
			a.log.Warnw("writing metrics textfile", "path", path, "error", err)
		}
	}
	if err := a.sink.Close(); err != nil {
		a.log.Warnw("closing warehouse", "error", err)
	}
	_ = a.log.Sync()
}
