package feed

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gocarina/gocsv"
	log "github.com/sirupsen/logrus"

	"screener-stream/internal/model"
)

// ReplayConfig holds configuration for the CSV replay source.
type ReplayConfig struct {
	// Path to a CSV file with columns symbol,price,volume,ts.
	Path string

	// Speed paces emission against the recorded timestamps: 1 replays
	// in real time, 2 twice as fast, 0 emits flat-out.
	Speed float64
}

// replayRow is the CSV row shape. Timestamps are RFC3339.
type replayRow struct {
	Symbol string  `csv:"symbol"`
	Price  float64 `csv:"price"`
	Volume int64   `csv:"volume"`
	TS     string  `csv:"ts"`
}

// Replay streams a recorded tick file, preserving file order per
// symbol. Ticks block into out instead of dropping: a replay exists to
// be complete, not timely.
type Replay struct {
	cfg ReplayConfig

	OnConnect func()
}

// NewReplay creates a replay source.
func NewReplay(cfg ReplayConfig) (*Replay, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("feed: replay path is required")
	}
	return &Replay{cfg: cfg}, nil
}

func (r *Replay) Name() string { return "replay" }

// Run emits every row, then returns. Rows that fail to parse are
// logged and skipped.
func (r *Replay) Run(ctx context.Context, out chan<- model.Tick) error {
	f, err := os.Open(r.cfg.Path)
	if err != nil {
		return fmt.Errorf("feed: open replay file: %w", err)
	}
	defer f.Close()

	var rows []replayRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return fmt.Errorf("feed: parse replay file: %w", err)
	}

	log.Infof("[feed] replaying %d ticks from %s (speed %.1fx)", len(rows), r.cfg.Path, r.cfg.Speed)
	if r.OnConnect != nil {
		r.OnConnect()
	}

	var prevTS time.Time
	emitted := 0
	for _, row := range rows {
		ts, err := time.Parse(time.RFC3339, row.TS)
		if err != nil {
			log.Warnf("[feed] replay: bad timestamp %q, skipping row", row.TS)
			continue
		}
		if row.Symbol == "" {
			log.Warn("[feed] replay: row without symbol, skipping")
			continue
		}

		if r.cfg.Speed > 0 && !prevTS.IsZero() && ts.After(prevTS) {
			wait := time.Duration(float64(ts.Sub(prevTS)) / r.cfg.Speed)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
		}
		prevTS = ts

		t := model.Tick{Symbol: row.Symbol, Price: row.Price, Volume: row.Volume, TS: ts}
		select {
		case out <- t:
			emitted++
		case <-ctx.Done():
			return nil
		}
	}

	log.Infof("[feed] replay complete: %d ticks emitted", emitted)
	return nil
}
