// cmd/seed imports daily OHLCV CSV files into the SQLite price_bars table,
// one instrument per file (the file name without extension).
//
// Usage:
//
//	go run ./cmd/seed --dir=data/csv
//	go run ./cmd/seed data/csv/INFY.csv data/csv/TCS.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"trendlab/config"
	"trendlab/internal/ingest"
	"trendlab/internal/logger"
	"trendlab/internal/model"
	sqlitestore "trendlab/internal/store/sqlite"
)

func main() {
	cfgPath := flag.String("config", "", "Optional YAML config file")
	dir := flag.String("dir", "", "Directory of *.csv files to import")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
	log := logger.Init("seed", logger.ParseLevel(cfg.LogLevel))

	files := flag.Args()
	if *dir != "" {
		matches, err := filepath.Glob(filepath.Join(*dir, "*.csv"))
		if err != nil {
			log.Error("glob failed", "dir", *dir, "error", err)
			os.Exit(1)
		}
		files = append(files, matches...)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "seed: no input files (pass paths or --dir)")
		os.Exit(2)
	}

	if d := filepath.Dir(cfg.SQLitePath); d != "." {
		os.MkdirAll(d, 0o755)
	}
	writer, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Error("sqlite init failed", "error", err)
		os.Exit(1)
	}
	defer writer.Close()

	ctx := context.Background()
	imported, failed := 0, 0
	for _, path := range files {
		n, err := importFile(ctx, writer, path)
		if err != nil {
			log.Warn("import failed", "file", path, "error", err)
			failed++
			continue
		}
		log.Info("imported", "file", path, "instrument", ingest.InstrumentFromPath(path), "bars", n)
		imported++
	}

	fmt.Printf("seed: %d file(s) imported, %d failed -> %s\n", imported, failed, cfg.SQLitePath)
	if failed > 0 {
		os.Exit(1)
	}
}

func importFile(ctx context.Context, w model.BarWriter, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	instrument := strings.TrimSpace(ingest.InstrumentFromPath(path))
	s, err := ingest.ReadCSV(f, instrument)
	if err != nil {
		return 0, err
	}
	if err := w.WriteSeries(ctx, s); err != nil {
		return 0, err
	}
	return len(s.Bars), nil
}
