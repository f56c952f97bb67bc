package app

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/talkincode/stockledger/internal/report"
)

const backupDirLayout = "20060102-150405"

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

func (a *Application) initJob() error {
	loc, err := time.LoadLocation(a.appConfig.System.Location)
	if err != nil {
		loc = time.Local
	}
	a.sched = cron.New(cron.WithLocation(loc), cron.WithParser(cronParser))

	if a.appConfig.Backup.Enabled {
		_, err = a.sched.AddFunc(a.appConfig.Backup.Schedule, a.SchedBackupTask)
		if err != nil {
			return errors.Wrapf(err, "init backup job %q", a.appConfig.Backup.Schedule)
		}
	}

	a.sched.Start()
	return nil
}

// SchedBackupTask exports the ledger and prunes old exports
func (a *Application) SchedBackupTask() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Error(err)
		}
	}()

	files, err := a.RunBackupNow()
	if err != nil {
		zap.L().Error("ledger backup failed", zap.String("namespace", "app"), zap.Error(err))
		return
	}
	zap.L().Info("ledger backup written", zap.String("namespace", "app"), zap.Strings("files", files))

	if err := pruneBackups(a.appConfig.GetBackupDir(), a.appConfig.Backup.Keep); err != nil {
		zap.L().Warn("prune backups failed", zap.String("namespace", "app"), zap.Error(err))
	}
}

// RunBackupNow writes products.csv, sold.csv and report.xlsx into a new
// timestamped directory under the backup dir.
func (a *Application) RunBackupNow() ([]string, error) {
	dir := filepath.Join(a.appConfig.GetBackupDir(), time.Now().Format(backupDirLayout))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create backup dir")
	}

	products := a.ledger.GetAllProducts()
	sold := a.ledger.GetSoldRecords()
	exports := []struct {
		name  string
		write func(io.Writer) error
	}{
		{"products.csv", func(w io.Writer) error { return report.WriteProductsCSV(w, products) }},
		{"sold.csv", func(w io.Writer) error { return report.WriteSoldCSV(w, sold) }},
		{"report.xlsx", func(w io.Writer) error { return report.WriteWorkbook(w, products, sold) }},
	}

	files := make([]string, 0, len(exports))
	for _, e := range exports {
		name := filepath.Join(dir, e.name)
		if err := writeFile(name, e.write); err != nil {
			return files, errors.Wrapf(err, "write %s", name)
		}
		files = append(files, name)
	}
	return files, nil
}

func writeFile(name string, write func(io.Writer) error) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// pruneBackups keeps the newest keep backup directories. keep <= 0 keeps everything.
func pruneBackups(root string, keep int) error {
	if keep <= 0 {
		return nil
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return err
	}
	var dirs []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := time.Parse(backupDirLayout, e.Name()); err != nil {
			continue
		}
		dirs = append(dirs, e.Name())
	}
	if len(dirs) <= keep {
		return nil
	}
	sort.Strings(dirs)
	for _, name := range dirs[:len(dirs)-keep] {
		if err := os.RemoveAll(filepath.Join(root, name)); err != nil {
			return err
		}
	}
	return nil
}
