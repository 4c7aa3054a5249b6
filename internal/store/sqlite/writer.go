package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"screener-stream/internal/metrics"
	"screener-stream/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond

	// maxAlertRows bounds the alerts table; older rows are pruned after
	// each flush.
	maxAlertRows = 1000

	// maxCheckpoints keeps a short history of engine checkpoints.
	maxCheckpoints = 10
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/screener.db"
}

// Writer is a single-goroutine SQLite writer with transaction batching.
// It persists fired alerts (bounded history) and engine checkpoints.
type Writer struct {
	db  *sql.DB
	met *metrics.Metrics
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig, met *metrics.Metrics) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single-writer connection; readers open their own handles.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Infof("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db, met: met}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS alerts (
			id       TEXT    PRIMARY KEY,
			symbol   TEXT    NOT NULL,
			type     TEXT    NOT NULL,
			severity TEXT    NOT NULL,
			message  TEXT    NOT NULL,
			value    REAL    NOT NULL,
			ts       INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_alerts_ts ON alerts (ts DESC);

		CREATE TABLE IF NOT EXISTS checkpoints (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			data       TEXT    NOT NULL,
			created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		);
	`)
	return err
}

// Run reads updates from updateCh and inserts their fired alerts in
// batched transactions. Flushes every batchSize alerts OR every
// flushDelay, whichever first. Blocks until ctx is cancelled or
// updateCh is closed.
func (w *Writer) Run(ctx context.Context, updateCh <-chan model.Update) {
	batch := make([]model.Alert, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := w.insertBatch(batch); err != nil {
			log.Errorf("[sqlite] batch insert error: %v", err)
		} else {
			log.Debugf("[sqlite] committed %d alerts in %v", len(batch), time.Since(start))
		}
		if w.met != nil {
			w.met.SQLiteCommitDur.Observe(time.Since(start).Seconds())
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case u, ok := <-updateCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, u.Alerts...)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// insertBatch inserts a batch of alerts in a single transaction, then
// prunes the table back to its cap.
func (w *Writer) insertBatch(alerts []model.Alert) error {
	tx, err := w.db.Begin()
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO alerts (id, symbol, type, severity, message, value, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, a := range alerts {
		_, err := stmt.Exec(a.ID, a.Symbol, string(a.Type), string(a.Severity), a.Message, a.Value, a.TS.UnixNano())
		if err != nil {
			tx.Rollback()
			return err
		}
	}

	if _, err := tx.Exec(`
		DELETE FROM alerts WHERE rowid NOT IN
			(SELECT rowid FROM alerts ORDER BY ts DESC LIMIT ?)
	`, maxAlertRows); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// SaveCheckpointJSON appends an engine checkpoint, keeping the most
// recent few.
func (w *Writer) SaveCheckpointJSON(data []byte) error {
	_, err := w.db.Exec(`INSERT INTO checkpoints (data) VALUES (?)`, string(data))
	if err != nil {
		return fmt.Errorf("sqlite insert checkpoint: %w", err)
	}

	_, err = w.db.Exec(`
		DELETE FROM checkpoints WHERE id NOT IN
			(SELECT id FROM checkpoints ORDER BY id DESC LIMIT ?)
	`, maxCheckpoints)
	if err != nil {
		log.Warnf("[sqlite] prune checkpoints: %v", err)
	}

	return nil
}

// ReadLatestCheckpointJSON loads the most recent checkpoint. Returns
// nil, nil when none exists.
func (w *Writer) ReadLatestCheckpointJSON() ([]byte, error) {
	var data string
	err := w.db.QueryRow(`
		SELECT data FROM checkpoints
		ORDER BY id DESC
		LIMIT 1
	`).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite read checkpoint: %w", err)
	}
	return []byte(data), nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
