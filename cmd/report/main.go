package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/akylbek/payment-system/fraud-detector/internal/config"
	"github.com/akylbek/payment-system/fraud-detector/internal/report"
	"github.com/akylbek/payment-system/fraud-detector/internal/repository"
	"github.com/akylbek/payment-system/fraud-detector/internal/service"
)

var (
	days      = flag.Int("days", service.DefaultTrendDays, "Trend window in days (1-90)")
	outputDir = flag.String("output", "reports", "Directory to store the trend chart")
	noChart   = flag.Bool("no-chart", false, "Only print the tables")
)

func main() {
	flag.Parse()
	cfg := config.Load()

	if cfg.DatabaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL must be set")
		os.Exit(2)
	}

	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	engine := service.NewStatisticsEngine(repository.NewPostgresStore(db), service.WithLocation(cfg.StatsLocation))
	snap, err := report.Collect(ctx, engine, *days)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to collect statistics: %v\n", err)
		os.Exit(1)
	}

	report.WriteTables(os.Stdout, snap)

	if *noChart {
		return
	}
	if err := writeChart(snap); err != nil {
		fmt.Printf("Warning: %v\n", err)
	}
}

func writeChart(snap *report.Snapshot) error {
	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	outputFile := filepath.Join(*outputDir, fmt.Sprintf("trends_%dd.png", len(snap.Trends.Points)))
	f, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("create chart file: %w", err)
	}
	defer f.Close()

	if err := report.RenderTrends(f, snap.Trends); err != nil {
		os.Remove(outputFile)
		if errors.Is(err, report.ErrNoData) {
			return errors.New("no transactions to chart")
		}
		return fmt.Errorf("render chart: %w", err)
	}

	fmt.Printf("\nTrend chart saved to: %s\n", outputFile)
	return nil
}
