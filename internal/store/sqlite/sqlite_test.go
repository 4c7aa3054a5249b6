package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"screener-stream/internal/metrics"
	"screener-stream/internal/model"
)

func newTestWriter(t *testing.T) (*Writer, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "screener.db")
	w, err := New(WriterConfig{DBPath: path}, metrics.NewMetrics())
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w, path
}

func testAlert(id, symbol string, ts time.Time) model.Alert {
	return model.Alert{
		ID:       id,
		Symbol:   symbol,
		Type:     model.AlertBBUpperCross,
		Severity: model.SeverityWarn,
		Message:  "close 101.00 crossed above upper band 100.50",
		Value:    101,
		TS:       ts,
	}
}

func TestWriter_PersistsAlertsFromUpdates(t *testing.T) {
	w, dbPath := newTestWriter(t)
	base := time.Date(2026, 8, 19, 10, 0, 0, 123456789, time.UTC)

	ch := make(chan model.Update, 4)
	ch <- model.Update{Symbol: "RELIANCE", Alerts: []model.Alert{
		testAlert("a1", "RELIANCE", base),
	}}
	ch <- model.Update{Symbol: "TCS"} // no alerts
	ch <- model.Update{Symbol: "INFY", Alerts: []model.Alert{
		testAlert("a2", "INFY", base.Add(time.Second)),
	}}
	close(ch)

	done := make(chan struct{})
	go func() {
		w.Run(context.Background(), ch)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("writer did not drain and stop")
	}

	r, err := NewReader(dbPath)
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer r.Close()

	alerts, err := r.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("got %d alerts, want 2", len(alerts))
	}
	// Newest first.
	if alerts[0].ID != "a2" || alerts[1].ID != "a1" {
		t.Errorf("order wrong: %s, %s", alerts[0].ID, alerts[1].ID)
	}
	got := alerts[1]
	if got.Symbol != "RELIANCE" || got.Type != model.AlertBBUpperCross ||
		got.Severity != model.SeverityWarn || got.Value != 101 {
		t.Errorf("round-trip mismatch: %+v", got)
	}
	if !got.TS.Equal(base) {
		t.Errorf("ts = %v, want %v (nanosecond precision)", got.TS, base)
	}
}

func TestWriter_DeduplicatesByID(t *testing.T) {
	w, _ := newTestWriter(t)
	ts := time.Date(2026, 8, 19, 10, 0, 0, 0, time.UTC)

	a := testAlert("same-id", "RELIANCE", ts)
	if err := w.insertBatch([]model.Alert{a, a}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := w.insertBatch([]model.Alert{a}); err != nil {
		t.Fatalf("insert again: %v", err)
	}

	var count int
	if err := w.DB().QueryRow(`SELECT COUNT(*) FROM alerts`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("row count = %d, want 1", count)
	}
}

func TestWriter_PrunesAlertsToCap(t *testing.T) {
	w, dbPath := newTestWriter(t)
	base := time.Date(2026, 8, 19, 9, 0, 0, 0, time.UTC)

	// Insert past the cap in writer-sized batches.
	total := maxAlertRows + 150
	batch := make([]model.Alert, 0, defaultBatchSize)
	for i := 0; i < total; i++ {
		batch = append(batch, testAlert(fmt.Sprintf("id-%05d", i), "RELIANCE", base.Add(time.Duration(i)*time.Second)))
		if len(batch) == defaultBatchSize {
			if err := w.insertBatch(batch); err != nil {
				t.Fatalf("insert: %v", err)
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := w.insertBatch(batch); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	var count int
	if err := w.DB().QueryRow(`SELECT COUNT(*) FROM alerts`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != maxAlertRows {
		t.Errorf("row count after prune = %d, want %d", count, maxAlertRows)
	}

	// The newest rows survive.
	r, err := NewReader(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	alerts, err := r.Recent(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 1 || alerts[0].ID != fmt.Sprintf("id-%05d", total-1) {
		t.Errorf("newest surviving alert = %v", alerts)
	}
}

func TestReader_RecentLimit(t *testing.T) {
	w, dbPath := newTestWriter(t)
	base := time.Date(2026, 8, 19, 9, 0, 0, 0, time.UTC)

	var alerts []model.Alert
	for i := 0; i < 5; i++ {
		alerts = append(alerts, testAlert(fmt.Sprintf("id-%d", i), "TCS", base.Add(time.Duration(i)*time.Minute)))
	}
	if err := w.insertBatch(alerts); err != nil {
		t.Fatal(err)
	}

	r, err := NewReader(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	got, err := r.Recent(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d alerts, want 3", len(got))
	}
	for i, want := range []string{"id-4", "id-3", "id-2"} {
		if got[i].ID != want {
			t.Errorf("got[%d].ID = %s, want %s", i, got[i].ID, want)
		}
	}
}

func TestCheckpointRoundTripAndPrune(t *testing.T) {
	w, _ := newTestWriter(t)

	if data, err := w.ReadLatestCheckpointJSON(); err != nil || data != nil {
		t.Fatalf("empty table: data=%v err=%v, want nil, nil", data, err)
	}

	for i := 0; i < maxCheckpoints+2; i++ {
		payload := fmt.Sprintf(`{"saved_at":"2026-08-19T10:00:%02dZ"}`, i)
		if err := w.SaveCheckpointJSON([]byte(payload)); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	data, err := w.ReadLatestCheckpointJSON()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := fmt.Sprintf(`{"saved_at":"2026-08-19T10:00:%02dZ"}`, maxCheckpoints+1)
	if string(data) != want {
		t.Errorf("latest = %s, want %s", data, want)
	}

	var count int
	if err := w.DB().QueryRow(`SELECT COUNT(*) FROM checkpoints`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != maxCheckpoints {
		t.Errorf("checkpoint rows = %d, want %d", count, maxCheckpoints)
	}
}
