package feed

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"screener-stream/config"
	"screener-stream/internal/model"
)

func TestParseTick(t *testing.T) {
	raw := []byte(`{"symbol":"RELIANCE","price":2401.5,"volume":120,"ts":"2026-08-19T10:00:00Z"}`)
	tick, err := parseTick(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tick.Symbol != "RELIANCE" || tick.Price != 2401.5 || tick.Volume != 120 {
		t.Errorf("parsed tick wrong: %+v", tick)
	}
	if tick.TS.UTC() != time.Date(2026, 8, 19, 10, 0, 0, 0, time.UTC) {
		t.Errorf("ts = %v", tick.TS)
	}
}

func TestParseTick_Rejects(t *testing.T) {
	for _, raw := range []string{
		`not json`,
		`{"price":100,"volume":1,"ts":"2026-08-19T10:00:00Z"}`, // no symbol
	} {
		if _, err := parseTick([]byte(raw)); err == nil {
			t.Errorf("parseTick(%q) accepted", raw)
		}
	}
}

func TestNew_SelectsMode(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config: %v", err)
	}

	src, err := New(cfg) // default mode ws
	if err != nil {
		t.Fatalf("ws source: %v", err)
	}
	if src.Name() != "ws" {
		t.Errorf("default source = %s, want ws", src.Name())
	}

	cfg.Feed.Mode = "kafka"
	if _, err := New(cfg); err == nil {
		t.Error("kafka mode without brokers should fail")
	}
	cfg.Feed.Kafka.Brokers = []string{"localhost:9092"}
	src, err = New(cfg)
	if err != nil {
		t.Fatalf("kafka source: %v", err)
	}
	if src.Name() != "kafka" {
		t.Errorf("source = %s, want kafka", src.Name())
	}

	cfg.Feed.Mode = "replay"
	if _, err := New(cfg); err == nil {
		t.Error("replay mode without path should fail")
	}
}

func TestReplay_EmitsRowsInOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ticks.csv")
	csv := "symbol,price,volume,ts\n" +
		"RELIANCE,2400.5,100,2026-08-19T10:00:00Z\n" +
		"TCS,3900,50,2026-08-19T10:00:01Z\n" +
		"RELIANCE,2401,25,garbage-timestamp\n" +
		",1,1,2026-08-19T10:00:02Z\n" +
		"RELIANCE,2402,10,2026-08-19T10:00:03Z\n"
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := NewReplay(ReplayConfig{Path: path})
	if err != nil {
		t.Fatalf("NewReplay: %v", err)
	}

	out := make(chan model.Tick, 16)
	if err := src.Run(context.Background(), out); err != nil {
		t.Fatalf("run: %v", err)
	}
	close(out)

	var got []model.Tick
	for tick := range out {
		got = append(got, tick)
	}
	if len(got) != 3 {
		t.Fatalf("emitted %d ticks, want 3 (bad rows skipped)", len(got))
	}
	if got[0].Symbol != "RELIANCE" || got[0].Price != 2400.5 || got[0].Volume != 100 {
		t.Errorf("tick[0] = %+v", got[0])
	}
	if got[1].Symbol != "TCS" || got[2].Price != 2402 {
		t.Errorf("order wrong: %+v", got)
	}
}

func TestReplay_PacingRespectsContext(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "slow.csv")
	csv := "symbol,price,volume,ts\n" +
		"TCS,100,1,2026-08-19T10:00:00Z\n" +
		"TCS,101,1,2026-08-19T11:00:00Z\n" // an hour later
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := NewReplay(ReplayConfig{Path: path, Speed: 1})
	if err != nil {
		t.Fatalf("NewReplay: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan model.Tick, 16)
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx, out) }()

	select {
	case <-out:
	case <-time.After(2 * time.Second):
		t.Fatal("first tick not emitted")
	}

	// The second tick sits behind an hour of pacing; cancel must end the
	// replay promptly.
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("replay did not stop on cancel")
	}
}
