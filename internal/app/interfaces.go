package app

import (
	EventBus "github.com/asaskevich/EventBus"
	"github.com/robfig/cron/v3"

	"github.com/talkincode/stockledger/config"
	"github.com/talkincode/stockledger/internal/ledger"
)

// ConfigProvider provides application configuration
type ConfigProvider interface {
	Config() *config.AppConfig
}

// LedgerProvider provides the product ledger and its event bus
type LedgerProvider interface {
	Ledger() *ledger.Service
	Bus() EventBus.Bus
}

// SchedulerProvider provides task scheduling capability
type SchedulerProvider interface {
	Scheduler() *cron.Cron
}

// AppContext combines all provider interfaces for full application context
type AppContext interface {
	ConfigProvider
	LedgerProvider
	SchedulerProvider

	// RunBackupNow writes a snapshot export immediately and returns its files
	RunBackupNow() ([]string, error)
	Release()
}
