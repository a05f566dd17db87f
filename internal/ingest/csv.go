// Package ingest parses daily OHLCV CSV exports into price series.
//
// Expected columns: date,open,high,low,close[,volume]. A header row is
// optional. Dates may be YYYY-MM-DD, RFC 3339 or unix seconds. UTF-16
// files with a byte order mark (common for spreadsheet exports) are decoded
// transparently.
package ingest

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"trendlab/internal/model"
)

// ReadCSV parses r into a series for instrument. Rows are validated but not
// sorted; blank lines are skipped. Any malformed row fails the whole file.
func ReadCSV(r io.Reader, instrument string) (model.Series, error) {
	br := bufio.NewReader(r)
	if b, _ := br.Peek(2); len(b) == 2 && ((b[0] == 0xFF && b[1] == 0xFE) || (b[0] == 0xFE && b[1] == 0xFF)) {
		dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		br = bufio.NewReader(transform.NewReader(br, dec))
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	s := model.Series{Instrument: instrument}
	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return model.Series{}, fmt.Errorf("%s: %w", instrument, err)
		}
		line++
		if line == 1 {
			rec[0] = strings.TrimPrefix(rec[0], "\ufeff")
			if isHeader(rec) {
				continue
			}
		}

		bar, err := parseRow(rec)
		if err != nil {
			return model.Series{}, fmt.Errorf("%s row %d: %w", instrument, line, err)
		}
		s.Bars = append(s.Bars, bar)
	}

	if len(s.Bars) == 0 {
		return model.Series{}, fmt.Errorf("%s: no rows: %w", instrument, model.ErrInvalidInput)
	}
	return s, nil
}

func isHeader(rec []string) bool {
	switch strings.ToLower(strings.TrimSpace(rec[0])) {
	case "date", "timestamp", "ts", "time":
		return true
	}
	return false
}

func parseRow(rec []string) (model.PriceBar, error) {
	if len(rec) < 5 {
		return model.PriceBar{}, fmt.Errorf("want at least 5 columns, got %d: %w", len(rec), model.ErrInvalidInput)
	}

	ts, err := parseDate(rec[0])
	if err != nil {
		return model.PriceBar{}, err
	}

	var prices [4]float64
	for i := range prices {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64)
		if err != nil {
			return model.PriceBar{}, fmt.Errorf("column %d %q: %w", i+2, rec[i+1], model.ErrInvalidInput)
		}
		prices[i] = v
	}

	var volume int64
	if len(rec) > 5 && strings.TrimSpace(rec[5]) != "" {
		// some exports write volume as a float
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[5]), 64)
		if err != nil {
			return model.PriceBar{}, fmt.Errorf("volume %q: %w", rec[5], model.ErrInvalidInput)
		}
		volume = int64(v)
	}

	bar := model.PriceBar{
		TS:     ts,
		Open:   prices[0],
		High:   prices[1],
		Low:    prices[2],
		Close:  prices[3],
		Volume: volume,
	}
	if err := bar.Validate(); err != nil {
		return model.PriceBar{}, err
	}
	return bar, nil
}

var dateLayouts = []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05", "02-01-2006"}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		return time.Unix(n, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("date %q: %w", s, model.ErrInvalidInput)
}

// InstrumentFromPath derives the instrument key from a file name:
// "data/INFY.NS.csv" is "INFY.NS".
func InstrumentFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
