package app

import (
	"context"
	"os"
	"time"
	_ "time/tzdata"

	EventBus "github.com/asaskevich/EventBus"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/talkincode/stockledger/config"
	"github.com/talkincode/stockledger/internal/kvstore"
	"github.com/talkincode/stockledger/internal/ledger"
	"github.com/talkincode/stockledger/internal/store"
)

type Application struct {
	appConfig *config.AppConfig
	backend   kvstore.Backend
	store     *store.Store
	ledger    *ledger.Service
	bus       EventBus.Bus
	sched     *cron.Cron
}

// Ensure Application implements all interfaces
var (
	_ ConfigProvider    = (*Application)(nil)
	_ LedgerProvider    = (*Application)(nil)
	_ SchedulerProvider = (*Application)(nil)
	_ AppContext        = (*Application)(nil)
)

func NewApplication(appConfig *config.AppConfig) *Application {
	return &Application{appConfig: appConfig}
}

func (a *Application) Config() *config.AppConfig {
	return a.appConfig
}

func (a *Application) Ledger() *ledger.Service {
	return a.ledger
}

func (a *Application) Bus() EventBus.Bus {
	return a.bus
}

// Scheduler returns the cron scheduler
func (a *Application) Scheduler() *cron.Cron {
	return a.sched
}

// Init sets up logging, opens storage, loads the ledger and starts background jobs.
func (a *Application) Init(ctx context.Context) error {
	cfg := a.appConfig
	loc, err := time.LoadLocation(cfg.System.Location)
	if err != nil {
		zap.S().Error("timezone config error")
	} else {
		time.Local = loc
	}

	if err := initLogger(cfg.Logger); err != nil {
		return err
	}

	a.backend, err = openBackend(cfg)
	if err != nil {
		return err
	}
	zap.S().Infof("Storage opened, type: %s", cfg.Storage.Type)

	var storeOpts []store.Option
	if cfg.Ledger.LenientLoad {
		storeOpts = append(storeOpts, store.WithLenientLoad())
	}
	a.store, err = store.Open(ctx, a.backend, storeOpts...)
	if err != nil {
		_ = a.backend.Close()
		return errors.Wrap(err, "load ledger")
	}

	a.bus = ledger.NewEventBus()
	a.ledger = ledger.NewService(a.store,
		ledger.WithIDPolicy(ledger.IDPolicy(cfg.Ledger.IDPolicy)),
		ledger.WithStockPolicy(ledger.StockPolicy(cfg.Ledger.StockPolicy)),
		ledger.WithAggregatePolicy(ledger.AggregatePolicy(cfg.Ledger.AggregatePolicy)),
		ledger.WithEventBus(a.bus),
	)
	if err := a.subscribeEvents(); err != nil {
		return err
	}

	return a.initJob()
}

func initLogger(cfg config.LogConfig) error {
	var zapConfig zap.Config
	if cfg.Mode == "production" {
		zapConfig = zap.NewProductionConfig()
	} else {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.OutputPaths = []string{"stdout"}

	var logger *zap.Logger
	if cfg.FileEnable {
		lumberJackLogger := &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    64,
			MaxBackups: 7,
			MaxAge:     7,
			Compress:   false,
		}

		core := zapcore.NewTee(
			zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.AddSync(lumberJackLogger),
				zapConfig.Level,
			),
			zapcore.NewCore(
				zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
				zapcore.AddSync(os.Stdout),
				zapConfig.Level,
			),
		)
		logger = zap.New(core, zap.AddCaller())
	} else {
		var err error
		logger, err = zapConfig.Build(zap.AddCaller())
		if err != nil {
			return errors.Wrap(err, "build logger")
		}
	}

	zap.ReplaceGlobals(logger)
	return nil
}

func openBackend(cfg *config.AppConfig) (kvstore.Backend, error) {
	switch cfg.Storage.Type {
	case config.StorageMemory:
		return kvstore.NewMemoryBackend(), nil
	default:
		b, err := kvstore.OpenBolt(cfg.GetStoragePath())
		if err != nil {
			return nil, errors.Wrapf(err, "open storage %s", cfg.GetStoragePath())
		}
		return b, nil
	}
}

// Release releases application resources
func (a *Application) Release() {
	if a.sched != nil {
		<-a.sched.Stop().Done()
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			zap.S().Errorf("close storage: %v", err)
		}
	}
	_ = zap.L().Sync()
}
