package config

import (
	"os"
	"path"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

const (
	StorageBolt   = "bolt"
	StorageMemory = "memory"

	IDPolicyMonotonic = "monotonic"
	IDPolicyLegacy    = "legacy"

	StockPolicyAllow  = "allow"
	StockPolicyReject = "reject"
	StockPolicyClamp  = "clamp"

	AggregatePolicySkip = "skip"
	AggregatePolicyNaN  = "nan"
)

// SysConfig system configuration
type SysConfig struct {
	Appid    string `yaml:"appid"`
	Location string `yaml:"location"`
	Workdir  string `yaml:"workdir"`
	Debug    bool   `yaml:"debug"`
}

// WebConfig admin api server configuration
type WebConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig key-value storage configuration
type StorageConfig struct {
	Type string `yaml:"type"` // bolt or memory
	Path string `yaml:"path"` // bolt file, relative paths resolve under the data dir
}

// LedgerConfig product ledger behaviour
type LedgerConfig struct {
	IDPolicy          string  `yaml:"id_policy"`
	StockPolicy       string  `yaml:"stock_policy"`
	AggregatePolicy   string  `yaml:"aggregate_policy"`
	LowStockThreshold float64 `yaml:"low_stock_threshold"`
	LenientLoad       bool    `yaml:"lenient_load"`
}

// LogConfig logging configuration
type LogConfig struct {
	Mode       string `yaml:"mode"`
	FileEnable bool   `yaml:"file_enable"`
	Filename   string `yaml:"filename"`
}

// BackupConfig scheduled snapshot export
type BackupConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
	Keep     int    `yaml:"keep"`
}

type AppConfig struct {
	System  SysConfig     `yaml:"system"`
	Web     WebConfig     `yaml:"web"`
	Storage StorageConfig `yaml:"storage"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Logger  LogConfig     `yaml:"logger"`
	Backup  BackupConfig  `yaml:"backup"`
}

func (c *AppConfig) GetLogDir() string {
	return path.Join(c.System.Workdir, "logs")
}

func (c *AppConfig) GetDataDir() string {
	return path.Join(c.System.Workdir, "data")
}

func (c *AppConfig) GetBackupDir() string {
	return path.Join(c.System.Workdir, "backup")
}

// GetStoragePath returns the bolt file location
func (c *AppConfig) GetStoragePath() string {
	if c.Storage.Path == "" {
		return path.Join(c.GetDataDir(), "stockledger.db")
	}
	if path.IsAbs(c.Storage.Path) {
		return c.Storage.Path
	}
	return path.Join(c.GetDataDir(), c.Storage.Path)
}

func (c *AppConfig) initDirs() error {
	for _, dir := range []string{c.GetLogDir(), c.GetDataDir(), c.GetBackupDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create directory %s", dir)
		}
	}
	return nil
}

// Validate checks enumerated settings
func (c *AppConfig) Validate() error {
	check := func(name, value string, allowed ...string) error {
		for _, a := range allowed {
			if value == a {
				return nil
			}
		}
		return errors.Errorf("config: %s must be one of [%s], got %q", name, strings.Join(allowed, ", "), value)
	}
	if err := check("storage.type", c.Storage.Type, StorageBolt, StorageMemory); err != nil {
		return err
	}
	if err := check("ledger.id_policy", c.Ledger.IDPolicy, IDPolicyMonotonic, IDPolicyLegacy); err != nil {
		return err
	}
	if err := check("ledger.stock_policy", c.Ledger.StockPolicy, StockPolicyAllow, StockPolicyReject, StockPolicyClamp); err != nil {
		return err
	}
	if err := check("ledger.aggregate_policy", c.Ledger.AggregatePolicy, AggregatePolicySkip, AggregatePolicyNaN); err != nil {
		return err
	}
	if c.Web.Port <= 0 || c.Web.Port > 65535 {
		return errors.Errorf("config: web.port out of range: %d", c.Web.Port)
	}
	return nil
}

// DefaultAppConfig returns a fresh copy of the built-in defaults
func DefaultAppConfig() *AppConfig {
	return &AppConfig{
		System: SysConfig{
			Appid:    "StockLedger",
			Location: "Local",
			Workdir:  "/var/stockledger",
			Debug:    false,
		},
		Web: WebConfig{
			Host: "0.0.0.0",
			Port: 1820,
		},
		Storage: StorageConfig{
			Type: StorageBolt,
			Path: "stockledger.db",
		},
		Ledger: LedgerConfig{
			IDPolicy:          IDPolicyMonotonic,
			StockPolicy:       StockPolicyAllow,
			AggregatePolicy:   AggregatePolicySkip,
			LowStockThreshold: 5,
		},
		Logger: LogConfig{
			Mode:       "development",
			FileEnable: false,
			Filename:   "/var/stockledger/logs/stockledger.log",
		},
		Backup: BackupConfig{
			Enabled:  true,
			Schedule: "@daily",
			Keep:     7,
		},
	}
}

// LoadConfig reads .env, then the yaml file, then STOCKLEDGER_* environment overrides.
// An empty cfile falls back to ./stockledger.yml and /etc/stockledger.yml; if neither
// exists the defaults are used.
func LoadConfig(cfile string) (*AppConfig, error) {
	// .env is optional
	_ = godotenv.Load()

	if cfile == "" {
		cfile = "stockledger.yml"
		if !fileExists(cfile) {
			cfile = "/etc/stockledger.yml"
		}
	}

	cfg := DefaultAppConfig()
	if fileExists(cfile) {
		data, err := os.ReadFile(cfile)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", cfile)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", cfile)
		}
	}

	setEnvValue("STOCKLEDGER_SYSTEM_WORKDIR", &cfg.System.Workdir)
	setEnvValue("STOCKLEDGER_SYSTEM_LOCATION", &cfg.System.Location)
	setEnvBoolValue("STOCKLEDGER_SYSTEM_DEBUG", &cfg.System.Debug)

	setEnvValue("STOCKLEDGER_WEB_HOST", &cfg.Web.Host)
	setEnvIntValue("STOCKLEDGER_WEB_PORT", &cfg.Web.Port)

	setEnvValue("STOCKLEDGER_STORAGE_TYPE", &cfg.Storage.Type)
	setEnvValue("STOCKLEDGER_STORAGE_PATH", &cfg.Storage.Path)

	setEnvValue("STOCKLEDGER_LEDGER_ID_POLICY", &cfg.Ledger.IDPolicy)
	setEnvValue("STOCKLEDGER_LEDGER_STOCK_POLICY", &cfg.Ledger.StockPolicy)
	setEnvValue("STOCKLEDGER_LEDGER_AGGREGATE_POLICY", &cfg.Ledger.AggregatePolicy)
	setEnvFloatValue("STOCKLEDGER_LEDGER_LOW_STOCK_THRESHOLD", &cfg.Ledger.LowStockThreshold)
	setEnvBoolValue("STOCKLEDGER_LEDGER_LENIENT_LOAD", &cfg.Ledger.LenientLoad)

	setEnvValue("STOCKLEDGER_LOGGER_MODE", &cfg.Logger.Mode)
	setEnvBoolValue("STOCKLEDGER_LOGGER_FILE_ENABLE", &cfg.Logger.FileEnable)
	setEnvValue("STOCKLEDGER_LOGGER_FILENAME", &cfg.Logger.Filename)

	setEnvBoolValue("STOCKLEDGER_BACKUP_ENABLED", &cfg.Backup.Enabled)
	setEnvValue("STOCKLEDGER_BACKUP_SCHEDULE", &cfg.Backup.Schedule)
	setEnvIntValue("STOCKLEDGER_BACKUP_KEEP", &cfg.Backup.Keep)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Storage.Type == StorageBolt || cfg.Logger.FileEnable || cfg.Backup.Enabled {
		if err := cfg.initDirs(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func fileExists(name string) bool {
	info, err := os.Stat(name)
	return err == nil && !info.IsDir()
}

func setEnvValue(name string, val *string) {
	var evalue = os.Getenv(name)
	if evalue != "" {
		*val = evalue
	}
}

func setEnvBoolValue(name string, val *bool) {
	var evalue = os.Getenv(name)
	if evalue != "" {
		*val = cast.ToBool(evalue)
	}
}

func setEnvIntValue(name string, val *int) {
	var evalue = os.Getenv(name)
	if evalue == "" {
		return
	}
	if v, err := cast.ToIntE(evalue); err == nil {
		*val = v
	}
}

func setEnvFloatValue(name string, val *float64) {
	var evalue = os.Getenv(name)
	if evalue == "" {
		return
	}
	if v, err := cast.ToFloat64E(evalue); err == nil {
		*val = v
	}
}
