package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nyxsignal/oracle/internal/api"
	"github.com/nyxsignal/oracle/internal/chainrpc"
	"github.com/nyxsignal/oracle/internal/clock"
	"github.com/nyxsignal/oracle/internal/collector"
	"github.com/nyxsignal/oracle/internal/ingest"
	"github.com/nyxsignal/oracle/internal/marketdata"
	"github.com/nyxsignal/oracle/internal/notifier"
	"github.com/nyxsignal/oracle/internal/pipeline"
	"github.com/nyxsignal/oracle/internal/reactivation"
	"github.com/nyxsignal/oracle/internal/scheduler"
	"github.com/nyxsignal/oracle/internal/storage"
	"github.com/nyxsignal/oracle/internal/storage/cache"
	"github.com/nyxsignal/oracle/internal/storage/db"
	"github.com/nyxsignal/oracle/internal/storage/rpcpool"
	"github.com/nyxsignal/oracle/internal/stream"
	"github.com/nyxsignal/oracle/pkg/models"
	"github.com/nyxsignal/oracle/pkg/utils/config"
	"github.com/nyxsignal/oracle/pkg/utils/logger"
)

const ingestQueueSize = 4096

// Application représente l'application complète avec tous ses composants
// (§4.8 Scheduler wiring every external collaborator from §6).
type Application struct {
	cfg    *config.Config
	log    *logger.Logger
	logrus *logrus.Logger

	dbConn      *db.Connection
	redis       *cache.Redis
	walletCache *cache.Client
	store       storage.Store
	rpcPool     *rpcpool.Pool
	chain       chainrpc.ChainRPC
	market      marketdata.Provider
	collector   *collector.Collector
	streamSrc   *stream.WebSocketSource
	ingestor    *ingest.Ingestor
	drift       *ingest.SubscriptionDrift
	notify      notifier.Notifier
	pipeline     *pipeline.Pipeline
	scheduler    *scheduler.Scheduler
	reactivation *reactivation.Task
	apiServer    *api.Server

	ctx    context.Context
	cancel context.CancelFunc
}

// InitializeApplication initialise tous les composants de l'application.
func InitializeApplication(cfg *config.Config, log *logger.Logger) (*Application, error) {
	ctx, cancel := context.WithCancel(context.Background())

	logrusLog := logrus.New()
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrusLog.SetLevel(lvl)
	}

	dbConn, err := db.NewConnection(cfg.Database, log)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("échec de la connexion à la base de données: %w", err)
	}
	store := db.NewPostgresStore(dbConn, log)

	redisConn, err := cache.NewRedisConnection(cfg.Redis, logrusLog)
	if err != nil {
		dbConn.Close()
		cancel()
		return nil, fmt.Errorf("échec de la connexion à Redis: %w", err)
	}

	walletCache, err := cache.NewClient(ctx, cfg.Redis)
	if err != nil {
		redisConn.Close()
		dbConn.Close()
		cancel()
		return nil, fmt.Errorf("échec de l'initialisation du cache de wallets: %w", err)
	}

	pool, err := rpcpool.New(cfg.Oracle.RPCEndpoints)
	if err != nil {
		walletCache.Close()
		redisConn.Close()
		dbConn.Close()
		cancel()
		return nil, fmt.Errorf("échec de l'initialisation du pool RPC: %w", err)
	}
	chain := chainrpc.New(pool)

	marketCfg := marketdata.DefaultConfig()
	marketCfg.BaseURL = cfg.Oracle.DexScreenerURL
	marketCfg.PriceURL = cfg.Oracle.JupiterPriceURL
	market, err := marketdata.NewHTTPProvider(marketCfg)
	if err != nil {
		walletCache.Close()
		redisConn.Close()
		dbConn.Close()
		cancel()
		return nil, fmt.Errorf("échec de l'initialisation du fournisseur de données de marché: %w", err)
	}

	coll := collector.New(market, chain)
	streamSrc := stream.New(cfg.Oracle.StreamURL)
	ingestor := ingest.New(ingestQueueSize, clock.Real{})
	drift := ingest.NewSubscriptionDrift()

	var notifiers []notifier.Notifier
	if cfg.Oracle.TelegramBotToken != "" {
		notifiers = append(notifiers, notifier.NewTelegram(cfg.Oracle.TelegramBotToken, cfg.Oracle.TelegramChatID, log))
	}
	notify := notifier.NewFanout(notifiers...)

	pipelineSys := pipeline.NewPipeline(redisConn, logrusLog)
	pipelineSys.RegisterProcessor(pipeline.NewSignalMirrorProcessor(logrusLog))

	schedCfg := scheduler.DefaultConfig()
	schedCfg.ScanInterval = time.Duration(cfg.Oracle.ScanIntervalSeconds) * time.Second
	schedCfg.CycleDeadline = time.Duration(cfg.Oracle.CycleDeadlineSeconds) * time.Second
	schedCfg.CollectConcurrency = cfg.Oracle.CollectConcurrency
	schedCfg.SignalPercentile = cfg.Oracle.SignalPercentile
	schedCfg.WalletRefreshEveryNCyc = cfg.Oracle.WalletRefreshEveryNCyc
	schedCfg.SmartWalletMinROI = cfg.Oracle.SmartWalletMinROI
	schedCfg.SmartWalletMinTrades = cfg.Oracle.SmartWalletMinTrades
	schedCfg.SmartWalletMinWinRate = cfg.Oracle.SmartWalletMinWinRate
	schedCfg.ScoringWeights.StealthAccumulation = cfg.Oracle.WeightStealthAccumulation
	schedCfg.ScoringWeights.HolderAcceleration = cfg.Oracle.WeightHolderAcceleration
	schedCfg.ScoringWeights.VolatilityShift = cfg.Oracle.WeightVolatilityShift
	schedCfg.ScoringWeights.SWR = cfg.Oracle.WeightSWR
	schedCfg.ScoringWeights.VolumeIntensity = cfg.Oracle.WeightVolumeIntensity
	schedCfg.ScoringWeights.SellPressure = cfg.Oracle.WeightSellPressure
	schedCfg.GateConfig.DedupWindowMinutes = cfg.Oracle.DedupWindowMinutes
	schedCfg.GateConfig.KellyMicrocapMax = cfg.Oracle.MaxKellyMicrocap
	schedCfg.GateConfig.LiquidityMin = cfg.Oracle.LiquidityMin
	schedCfg.GateConfig.Top10MaxRatio = cfg.Oracle.Top10MaxRatio
	schedCfg.GateConfig.HoldersMin = cfg.Oracle.HoldersMin

	onSignal := func(sig models.Signal) {
		if err := pipelineSys.PublishSignal(sig); err != nil {
			log.Warning("startup: publish signal to pipeline failed", map[string]interface{}{"token": sig.TokenAddress, "error": err.Error()})
		}
	}
	sched := scheduler.New(schedCfg, store, coll, chain, notify, ingestor, drift, streamSrc, walletCache, log, onSignal)

	reactivationTask := reactivation.New(reactivation.DefaultConfig(), store, coll, chain, log, nil)

	apiSrv := api.NewServer(cfg.API, store, log)

	return &Application{
		cfg:       cfg,
		log:       log,
		logrus:    logrusLog,
		dbConn:      dbConn,
		redis:       redisConn,
		walletCache: walletCache,
		store:       store,
		rpcPool:   pool,
		chain:     chain,
		market:    market,
		collector: coll,
		streamSrc: streamSrc,
		ingestor:  ingestor,
		drift:     drift,
		notify:       notify,
		pipeline:     pipelineSys,
		scheduler:    sched,
		reactivation: reactivationTask,
		apiServer:    apiSrv,
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// Start démarre l'application: le pipeline Redis, le flux temps réel,
// le planificateur de cycles, et le serveur API.
func (app *Application) Start() error {
	if err := app.pipeline.Start(app.ctx); err != nil {
		return fmt.Errorf("échec du démarrage du pipeline: %w", err)
	}

	go func() {
		if err := app.streamSrc.Run(app.ctx, app.ingestor.HandleEvent); err != nil {
			app.log.Error("startup: stream source stopped", err, nil)
		}
	}()

	go app.scheduler.Run(app.ctx)
	go app.reactivation.Run(app.ctx)

	go func() {
		if err := app.apiServer.Start(); err != nil {
			app.log.Error("startup: api server stopped", err, nil)
			app.cancel()
		}
	}()

	app.log.Info("Tous les composants ont démarré avec succès")
	return nil
}

// Stop arrête l'application dans l'ordre inverse du démarrage.
func (app *Application) Stop() error {
	app.cancel()

	if err := app.apiServer.Shutdown(app.ctx); err != nil {
		app.log.Error("startup: api server shutdown", err, nil)
	}

	if err := app.pipeline.Shutdown(app.ctx); err != nil {
		app.log.Error("startup: pipeline shutdown", err, nil)
	}

	if err := app.redis.Close(); err != nil {
		app.log.Error("startup: redis close", err, nil)
	}
	app.walletCache.Close()

	app.dbConn.Close()

	return nil
}
