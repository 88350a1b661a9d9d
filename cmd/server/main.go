package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/waterbalance/internal/alerts"
	"github.com/aristath/waterbalance/internal/archive"
	"github.com/aristath/waterbalance/internal/balance"
	"github.com/aristath/waterbalance/internal/cache"
	"github.com/aristath/waterbalance/internal/calculator"
	"github.com/aristath/waterbalance/internal/config"
	"github.com/aristath/waterbalance/internal/constants"
	"github.com/aristath/waterbalance/internal/database"
	"github.com/aristath/waterbalance/internal/events"
	"github.com/aristath/waterbalance/internal/facility"
	"github.com/aristath/waterbalance/internal/history"
	"github.com/aristath/waterbalance/internal/logging"
	"github.com/aristath/waterbalance/internal/monthlyparams"
	"github.com/aristath/waterbalance/internal/orchestrator"
	"github.com/aristath/waterbalance/internal/scheduler"
	"github.com/aristath/waterbalance/internal/server"
	"github.com/aristath/waterbalance/internal/transfers"
	"github.com/aristath/waterbalance/internal/workbook"
	"github.com/aristath/waterbalance/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	sink, err := logging.NewSink(logging.Config{
		Dir:           cfg.LogDir,
		BaseName:      "waterbalance.log",
		MaxBytes:      50 * 1024 * 1024,
		Interval:      logging.RotateDaily,
		BackupCount:   14,
		RetentionDays: cfg.LogRetentionDays,
	})
	if err != nil {
		panic("failed to initialize log sink: " + err.Error())
	}
	defer sink.Close()

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
		Output: sink,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("mode", string(cfg.BalanceMode)).Msg("starting water balance core")

	appDB, err := database.New(database.Config{
		Path:    cfg.AppDatabasePath,
		Profile: database.ProfileStandard,
		Name:    "app",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open application database")
	}
	defer appDB.Close()

	if err := appDB.Migrate(database.AppSchema); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate application database")
	}

	calcCache, err := cache.New(cfg.CacheDatabasePath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open calculation cache")
	}
	defer calcCache.Close()

	wbRepo := workbook.NewRepository(cfg.WorkbookPath, log, nil)
	if err := wbRepo.Load(); err != nil {
		log.Fatal().Err(err).Msg("failed to load source workbook")
	}

	evmgr := events.NewManager(log)

	facilityRepo := facility.NewRepository(appDB.Conn(), log)
	facilityService := facility.NewService(facilityRepo, log, nil)

	paramsStore := monthlyparams.NewStore(appDB.Conn(), log)
	constantsStore := constants.NewStore(appDB.Conn(), log)
	historyStore := history.NewStore(appDB.Conn(), log)
	transfersStore := transfers.NewStore(appDB.Conn(), log)

	if n, err := constantsStore.Seed(constants.DefaultSeedYAML); err != nil {
		log.Fatal().Err(err).Msg("failed to seed system constants")
	} else if n > 0 {
		log.Info().Int("inserted", n).Msg("seeded default system constants")
	}

	alertsRepo := alerts.NewRepository(appDB.Conn(), log)
	if n, err := alertsRepo.Seed(alerts.DefaultSeedYAML); err != nil {
		log.Fatal().Err(err).Msg("failed to seed default alert rules")
	} else if n > 0 {
		log.Info().Int("inserted", n).Msg("seeded default alert rules")
	}
	evaluator := alerts.New(alertsRepo, log, evmgr)

	calc := calculator.New(wbRepo, calcCache, log)
	engine := balance.New(wbRepo, constantsStore, log)

	var archiver orchestrator.Archiver
	if cfg.BalanceMode == config.ModeAudit && cfg.ArchiveBucket != "" {
		a, err := archive.New(context.Background(), cfg.ArchiveBucket, cfg.ArchiveRegion, log)
		if err != nil {
			log.Error().Err(err).Msg("failed to initialize archival client; AUDIT closes will not be archived")
		} else {
			archiver = a
		}
	}

	orch := orchestrator.New(
		facilityService,
		calc,
		engine,
		paramsStore,
		constantsStore,
		historyStore,
		transfersStore,
		evaluator,
		evmgr,
		archiver,
		cfg.BalanceMode,
		log,
	)

	sched := scheduler.New(log)
	sched.Start()
	defer sched.Stop()

	if err := registerJobs(sched, appDB, sink, evaluator, orch, log); err != nil {
		log.Fatal().Err(err).Msg("failed to register scheduled jobs")
	}

	srv := server.New(server.Config{
		Port:         cfg.Port,
		Log:          log,
		DB:           appDB,
		Facilities:   facilityService,
		Orchestrator: orch,
		AlertsRepo:   alertsRepo,
		Evaluator:    evaluator,
		Constants:    constantsStore,
		History:      historyStore,
		Config:       cfg,
		DevMode:      cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("water balance core started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("stopped")
}

func registerJobs(
	sched *scheduler.Scheduler,
	db *database.DB,
	sink *logging.Sink,
	evaluator *alerts.Evaluator,
	orch *orchestrator.Orchestrator,
	log zerolog.Logger,
) error {
	if err := sched.AddJob("0 0 5 1 * *", scheduler.NewMonthlyCloseJob(orch, log)); err != nil {
		return err
	}
	if err := sched.AddJob("0 */5 * * * *", scheduler.NewRulesCacheRefreshJob(evaluator, log)); err != nil {
		return err
	}
	if err := sched.AddJob("0 0 3 * * *", scheduler.NewLogCleanupJob(sink, log)); err != nil {
		return err
	}
	if err := sched.AddJob("0 */10 * * * *", scheduler.NewHealthCheckJob(db, log)); err != nil {
		return err
	}
	return nil
}
