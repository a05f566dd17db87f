package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"trendlab/internal/model"
	"trendlab/internal/pipeline"
	"trendlab/internal/portfolio"
	"trendlab/internal/screener"
)

func sampleReport() *pipeline.Report {
	entry := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)
	return &pipeline.Report{
		Instrument: "INFY",
		Pair:       "11 x 51",
		Events:     []model.CrossEvent{{Index: 3, Type: model.RegimeGolden}},
		Result: &portfolio.Result{Summary: portfolio.Summary{
			TotalTrades:          2,
			AbsoluteReturnAmount: 15000,
		}},
		Latest:    &model.Trade{Side: model.SideLong, EntryTime: entry, EntryPrice: 1450.5},
		Candidate: &screener.Candidate{Instrument: "INFY"},
	}
}

func TestSummaryFields(t *testing.T) {
	fields, err := summaryFields("run-1", sampleReport())
	if err != nil {
		t.Fatal(err)
	}
	if fields["run_id"] != "run-1" || fields["pair"] != "11 x 51" {
		t.Errorf("fields = %v", fields)
	}
	if fields["events"] != "1" || fields["candidate"] != "true" {
		t.Errorf("events/candidate = %v/%v", fields["events"], fields["candidate"])
	}

	var s portfolio.Summary
	if err := json.Unmarshal([]byte(fields["summary"].(string)), &s); err != nil {
		t.Fatalf("summary json: %v", err)
	}
	if s.TotalTrades != 2 || s.AbsoluteReturnAmount != 15000 {
		t.Errorf("summary = %+v", s)
	}
	if _, ok := fields["latest_trade"]; !ok {
		t.Error("missing latest_trade")
	}

	if _, err := summaryFields("run-1", &pipeline.Report{Instrument: "X"}); err == nil {
		t.Error("expected error for report without result")
	}
}

func TestLatestTradeMembers(t *testing.T) {
	rows := []pipeline.LatestTrade{
		{Instrument: "A", Side: model.SideLong, DaysSinceEntry: 3},
		{Instrument: "B", Side: model.SideShort, DaysSinceEntry: 40},
	}
	members, err := latestTradeMembers(rows)
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 2 || members[0].Score != 3 || members[1].Score != 40 {
		t.Fatalf("members = %+v", members)
	}
	var back pipeline.LatestTrade
	if err := json.Unmarshal([]byte(members[1].Member.(string)), &back); err != nil {
		t.Fatal(err)
	}
	if back.Instrument != "B" || back.Side != model.SideShort {
		t.Errorf("member = %+v", back)
	}
}

func TestSummaryKey(t *testing.T) {
	if got := SummaryKey("TCS"); got != "trendlab:summary:TCS" {
		t.Errorf("SummaryKey = %q", got)
	}
}

func TestWriterTripsBreakerWhenUnreachable(t *testing.T) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	w := NewWithClient(client, WriterConfig{MaxFailures: 2, ResetTimeout: time.Minute})
	defer w.Close()

	ctx := context.Background()
	rep := sampleReport()
	for i := 0; i < 2; i++ {
		err := w.WriteReport(ctx, "run-1", rep)
		if err == nil || errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("write %d: err = %v, want a connection error", i, err)
		}
	}
	if err := w.WriteReport(ctx, "run-1", rep); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if err := w.PublishLatestTrades(ctx, nil); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("PublishLatestTrades err = %v, want ErrCircuitOpen", err)
	}
	if w.Breaker().Trips() != 1 {
		t.Errorf("Trips = %d", w.Breaker().Trips())
	}
	if w.Name() != "redis" {
		t.Errorf("Name = %q", w.Name())
	}
}
