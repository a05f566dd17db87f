package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"trendlab/internal/model"
)

type memWriter struct {
	series []model.Series
}

func (m *memWriter) WriteSeries(_ context.Context, s model.Series) error {
	m.series = append(m.series, s)
	return nil
}

func (m *memWriter) Close() error { return nil }

func TestImportFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "HDFC.csv")
	body := "date,open,high,low,close,volume\n2024-02-01,10,12,9,11,100\n2024-02-02,11,13,10,12,200\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	w := &memWriter{}
	n, err := importFile(context.Background(), w, path)
	if err != nil {
		t.Fatalf("importFile: %v", err)
	}
	if n != 2 {
		t.Errorf("n = %d, want 2", n)
	}
	if len(w.series) != 1 || w.series[0].Instrument != "HDFC" {
		t.Errorf("written = %+v", w.series)
	}
}

func TestImportFileMissing(t *testing.T) {
	if _, err := importFile(context.Background(), &memWriter{}, filepath.Join(t.TempDir(), "nope.csv")); err == nil {
		t.Error("expected error")
	}
}
