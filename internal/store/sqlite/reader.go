package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"screener-stream/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access for the alert history endpoint.
// WAL mode lets it run alongside the single-connection writer.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Infof("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// Recent returns up to limit alerts, newest first.
func (r *Reader) Recent(ctx context.Context, limit int) ([]model.Alert, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, symbol, type, severity, message, value, ts
		FROM alerts
		ORDER BY ts DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []model.Alert
	for rows.Next() {
		var (
			a      model.Alert
			typ    string
			sev    string
			tsNano int64
		)
		if err := rows.Scan(&a.ID, &a.Symbol, &typ, &sev, &a.Message, &a.Value, &tsNano); err != nil {
			return nil, fmt.Errorf("sqlite scan alert: %w", err)
		}
		a.Type = model.AlertType(typ)
		a.Severity = model.Severity(sev)
		a.TS = time.Unix(0, tsNano).UTC()
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
