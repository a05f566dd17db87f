package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"trendlab/internal/model"
	"trendlab/internal/pipeline"
	"trendlab/internal/screener"
)

func TestRunAlert(t *testing.T) {
	reports := []pipeline.Report{
		{Instrument: "INFY", Candidate: &screener.Candidate{Instrument: "INFY", RSI: 65, DistanceFromFastPct: 1.2}},
		{Instrument: "TCS"},
		{Instrument: "BAD", Err: model.ErrInvalidInput},
	}
	latest := []pipeline.LatestTrade{
		{Instrument: "TCS", Side: model.SideShort, EntryPrice: 3500, DaysSinceEntry: 0},
		{Instrument: "INFY", Side: model.SideLong, EntryPrice: 1500, DaysSinceEntry: 12},
	}

	a := RunAlert("run-9", "11 x 51", reports, latest)
	if a.Level != AlertWarning {
		t.Errorf("Level = %s, want WARNING", a.Level)
	}
	if a.Title != "EMA 11 x 51 run finished" {
		t.Errorf("Title = %q", a.Title)
	}
	for _, want := range []string{"2 instruments ok, 1 failed", "Candidates (1)", "INFY close", "Entered today", "TCS Short @ 3500.00"} {
		if !strings.Contains(a.Message, want) {
			t.Errorf("message missing %q:\n%s", want, a.Message)
		}
	}
	if strings.Contains(a.Message, "INFY Long") {
		t.Error("old trade listed as entered today")
	}
	if a.Fields["run_id"] != "run-9" || a.Fields["candidates"] != "1" {
		t.Errorf("Fields = %v", a.Fields)
	}
}

func TestRunAlertLevels(t *testing.T) {
	if a := RunAlert("r", "p", []pipeline.Report{{Instrument: "A"}}, nil); a.Level != AlertInfo {
		t.Errorf("all ok: %s", a.Level)
	}
	if a := RunAlert("r", "p", []pipeline.Report{{Instrument: "A", Err: errors.New("x")}}, nil); a.Level != AlertCritical {
		t.Errorf("all failed: %s", a.Level)
	}
	if a := RunAlert("r", "p", nil, nil); !strings.Contains(a.Message, "No screener candidates") {
		t.Errorf("empty run message = %q", a.Message)
	}
}

func TestRunAlertCapsCandidates(t *testing.T) {
	var reports []pipeline.Report
	for i := 0; i < 13; i++ {
		inst := string(rune('A' + i))
		reports = append(reports, pipeline.Report{Instrument: inst, Candidate: &screener.Candidate{Instrument: inst}})
	}
	a := RunAlert("r", "p", reports, nil)
	if !strings.Contains(a.Message, "... and 3 more") {
		t.Errorf("message = %s", a.Message)
	}
}

func TestWebhookNotifier(t *testing.T) {
	var got webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("request = %s %s", r.Method, r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	n.now = func() time.Time { return time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC) }
	alert := Alert{Level: AlertInfo, Title: "done", Message: "ok", Fields: map[string]string{"run_id": "r1"}}
	if err := n.Send(context.Background(), alert); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.Title != "done" || got.Fields["run_id"] != "r1" || got.TS != "2026-10-16T10:00:00Z" {
		t.Errorf("payload = %+v", got)
	}
}

func TestWebhookNotifierRetries(t *testing.T) {
	tests := []struct {
		status       int
		wantAttempts int32
	}{
		{http.StatusBadGateway, 3},
		{http.StatusBadRequest, 1},
	}
	for _, tt := range tests {
		var attempts atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			w.WriteHeader(tt.status)
		}))

		n := NewWebhookNotifier(srv.URL)
		n.http.backoff = time.Millisecond
		if err := n.Send(context.Background(), Alert{}); err == nil {
			t.Errorf("status %d: expected error", tt.status)
		}
		if got := attempts.Load(); got != tt.wantAttempts {
			t.Errorf("status %d: attempts = %d, want %d", tt.status, got, tt.wantAttempts)
		}
		srv.Close()
	}
}

func TestWebhookNotifierRecovers(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	n.http.backoff = time.Millisecond
	if err := n.Send(context.Background(), Alert{}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if attempts.Load() != 2 {
		t.Errorf("attempts = %d, want 2", attempts.Load())
	}
}

func TestTelegramNotifier(t *testing.T) {
	var path string
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		json.NewDecoder(r.Body).Decode(&body)
	}))
	defer srv.Close()

	n := NewTelegramNotifier("TOKEN", "42")
	n.baseURL = srv.URL
	if err := n.Send(context.Background(), Alert{Level: AlertCritical, Title: "run 1.0", Message: "a_b"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if path != "/botTOKEN/sendMessage" {
		t.Errorf("path = %q", path)
	}
	if body["chat_id"] != "42" || body["parse_mode"] != "MarkdownV2" {
		t.Errorf("body = %v", body)
	}
	text, _ := body["text"].(string)
	if !strings.Contains(text, `run 1\.0`) || !strings.Contains(text, "a_b") {
		t.Errorf("text = %q", text)
	}
}

func TestEscapeMarkdown(t *testing.T) {
	if got := escapeMarkdown("1.5% (x)!"); got != `1\.5% \(x\)\!` {
		t.Errorf("escapeMarkdown = %q", got)
	}
}

type failingNotifier struct{}

func (failingNotifier) Send(context.Context, Alert) error { return errors.New("down") }

func TestMulti(t *testing.T) {
	m := Multi{NewLogNotifier(), failingNotifier{}, NewLogNotifier()}
	if err := m.Send(context.Background(), Alert{Title: "x"}); err == nil {
		t.Error("expected joined error")
	}
	if err := (Multi{NewLogNotifier()}).Send(context.Background(), Alert{}); err != nil {
		t.Errorf("err = %v", err)
	}
}
