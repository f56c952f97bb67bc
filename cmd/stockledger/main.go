package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/talkincode/stockledger/config"
	"github.com/talkincode/stockledger/internal/adminapi"
	"github.com/talkincode/stockledger/internal/app"
)

var (
	BuildVersion string
	BuildTime    string
)

var (
	h          = flag.Bool("h", false, "help usage")
	showVer    = flag.Bool("v", false, "show version")
	conffile   = flag.String("c", "", "config yaml file")
	importFile = flag.String("import", "", "import products from a csv file and exit")
	backupNow  = flag.Bool("backup", false, "write a ledger export to the backup dir and exit")
)

func printVersion() {
	fmt.Fprintf(os.Stdout, "stockledger %s (built %s)\n", BuildVersion, BuildTime)
}

func main() {
	flag.Parse()

	if *showVer {
		printVersion()
		return
	}
	if *h {
		flag.Usage()
		return
	}

	cfg, err := config.LoadConfig(*conffile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	application := app.NewApplication(cfg)
	if err := application.Init(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "init: %v\n", err)
		application.Release()
		os.Exit(1)
	}
	defer application.Release()

	switch {
	case *importFile != "":
		code := runImport(ctx, application, *importFile)
		application.Release()
		os.Exit(code)
	case *backupNow:
		code := runBackup(application)
		application.Release()
		os.Exit(code)
	}

	addr := cfg.Web.Host + ":" + strconv.Itoa(cfg.Web.Port)
	server := adminapi.NewServer(addr, application.Ledger())
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			zap.S().Errorf("admin api stopped: %v", err)
		}
	case <-ctx.Done():
		zap.S().Info("shutting down")
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zap.S().Errorf("admin api shutdown: %v", err)
		}
	}
}

func runImport(ctx context.Context, application *app.Application, name string) int {
	f, err := os.Open(name)
	if err != nil {
		zap.S().Errorf("open import file: %v", err)
		return 1
	}
	defer f.Close()

	n, err := application.ImportProducts(ctx, f, filepath.Dir(name))
	if err != nil {
		zap.S().Errorf("import stopped after %d products: %v", n, err)
		return 1
	}
	fmt.Printf("imported %d products\n", n)
	return 0
}

func runBackup(application *app.Application) int {
	files, err := application.RunBackupNow()
	if err != nil {
		zap.S().Errorf("backup failed: %v", err)
		return 1
	}
	for _, f := range files {
		fmt.Println(f)
	}
	return 0
}
