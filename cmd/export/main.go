// Command export trains every model on the configured price table and
// writes the artifacts the dashboard API loads.
package main

import (
	"context"
	"errors"
	"flag"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"OilCast/internal/di"
	"OilCast/internal/domain/models"
	"OilCast/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path (empty for defaults)")
	envFile := flag.String("env-file", ".env", "optional dotenv file")
	only := flag.String("models", "", "comma-separated model ids to train (default all)")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("env file: %v", err)
	}
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	var ids []models.ModelID
	if *only != "" {
		for _, raw := range strings.Split(*only, ",") {
			id, err := models.ParseModelID(strings.TrimSpace(raw))
			if err != nil {
				log.Fatalf("models flag: %v", err)
			}
			ids = append(ids, id)
		}
	}

	if err := run(cfg, ids); err != nil {
		log.Fatalf("export failed: %v", err)
	}
}

func run(cfg *config.Config, ids []models.ModelID) error {
	exp, cleanup, err := di.InitializeExporter(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := exp.Run(ctx, ids...)
	if err != nil {
		return err
	}
	for _, m := range res.Metas {
		test := m.Metrics["test"]
		log.Printf("%-14s rows=%v test_rmse=%.4f test_r2=%.4f", m.Model, m.SplitSizes, test.RMSE, test.R2)
	}
	if res.ReportPath != "" {
		log.Printf("report: %s", res.ReportPath)
	}
	log.Printf("run %s written to %s", res.RunID, cfg.Models.Dir)
	return nil
}
