// Package storage persists protocol messages in SQLite. One table per stage
// keeps the audit trail queryable per action, and message ids are unique per
// stage so replays are rejected rather than double-stored.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"fisbap/internal/errors"
	"fisbap/internal/protocol"
	"fisbap/pkg/config"
	"fisbap/pkg/ports"
)

type sqliteStore struct {
	db   *sql.DB
	path string
}

// Per-stage extra derived columns
var stageExtras = map[ports.Stage]string{
	ports.StageOnSearch: "isin TEXT,",
	ports.StageOnStatus: "pan TEXT,",
}

// NewSQLiteStore opens (or creates) the message store under cfg.BasePath
func NewSQLiteStore(cfg config.StorageConfig) (ports.MessageStorePort, error) {
	if err := os.MkdirAll(cfg.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	dbPath := filepath.Join(cfg.BasePath, "fisbap.db")

	// modernc driver pragma form; WAL plus a busy timeout so overlapping
	// callback writes queue instead of failing with SQLITE_BUSY
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &sqliteStore{db: db, path: dbPath}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *sqliteStore) initSchema() error {
	var b strings.Builder
	for _, stage := range ports.Stages {
		table := tableName(stage)
		fmt.Fprintf(&b, `
		CREATE TABLE IF NOT EXISTS %s (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			transaction_id TEXT NOT NULL,
			message_id TEXT NOT NULL UNIQUE,
			bpp_id TEXT NOT NULL DEFAULT '',
			bpp_uri TEXT NOT NULL DEFAULT '',
			payload TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			%s
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_%s_txn ON %s(transaction_id, timestamp);
		`, table, stageExtras[stage], table, table)
	}

	b.WriteString(`
		CREATE TABLE IF NOT EXISTS submissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			transaction_id TEXT NOT NULL,
			form_id TEXT NOT NULL,
			submission_id TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_submissions_txn ON submissions(transaction_id);
	`)

	_, err := s.db.Exec(b.String())
	return err
}

func tableName(stage ports.Stage) string {
	return "msg_" + string(stage)
}

func (s *sqliteStore) Put(ctx context.Context, rec ports.Record) error {
	if rec.TransactionID == "" || rec.MessageID == "" {
		return errors.Validation("record requires transaction_id and message_id")
	}
	if !validStage(rec.Stage) {
		return errors.Validation(fmt.Sprintf("unknown stage %q", rec.Stage))
	}

	cols := []string{"transaction_id", "message_id", "bpp_id", "bpp_uri", "payload", "timestamp"}
	args := []any{rec.TransactionID, rec.MessageID, rec.BPPID, rec.BPPURI, string(rec.Payload), protocol.Timestamp(rec.Timestamp)}
	switch rec.Stage {
	case ports.StageOnSearch:
		cols = append(cols, "isin")
		args = append(args, rec.ISIN)
	case ports.StageOnStatus:
		cols = append(cols, "pan")
		args = append(args, rec.PAN)
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		tableName(rec.Stage),
		strings.Join(cols, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))

	_, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return errors.Duplicate(rec.MessageID)
		}
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to store record")
	}
	return nil
}

// buildWhere assembles the filter clause from the non-empty query fields
func buildWhere(q ports.Query) (string, []any, error) {
	if q.TransactionID == "" && q.PAN == "" {
		return "", nil, errors.Validation("query requires transaction_id")
	}
	var clauses []string
	var args []any
	if q.TransactionID != "" {
		clauses = append(clauses, "transaction_id = ?")
		args = append(args, q.TransactionID)
	}
	if q.PAN != "" {
		if q.Stage != ports.StageOnStatus {
			return "", nil, errors.Validation("pan lookups apply to on_status only")
		}
		clauses = append(clauses, "pan = ?")
		args = append(args, q.PAN)
	}
	if q.MessageID != "" {
		clauses = append(clauses, "message_id = ?")
		args = append(args, q.MessageID)
	}
	if q.BPPID != "" {
		clauses = append(clauses, "bpp_id = ?")
		args = append(args, q.BPPID)
	}
	if q.BPPURI != "" {
		clauses = append(clauses, "bpp_uri = ?")
		args = append(args, q.BPPURI)
	}
	return strings.Join(clauses, " AND "), args, nil
}

func (s *sqliteStore) selectRecords(ctx context.Context, q ports.Query, limit int) ([]ports.Record, error) {
	if !validStage(q.Stage) {
		return nil, errors.Validation(fmt.Sprintf("unknown stage %q", q.Stage))
	}
	where, args, err := buildWhere(q)
	if err != nil {
		return nil, err
	}

	extra := ""
	switch q.Stage {
	case ports.StageOnSearch:
		extra = ", isin"
	case ports.StageOnStatus:
		extra = ", pan"
	}

	query := fmt.Sprintf(
		"SELECT transaction_id, message_id, bpp_id, bpp_uri, payload, timestamp, created_at%s FROM %s WHERE %s ORDER BY timestamp DESC, id DESC",
		extra, tableName(q.Stage), where)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to query records")
	}
	defer rows.Close()

	var out []ports.Record
	for rows.Next() {
		rec := ports.Record{Stage: q.Stage}
		var payload, ts string
		dest := []any{&rec.TransactionID, &rec.MessageID, &rec.BPPID, &rec.BPPURI, &payload, &ts, &rec.CreatedAt}
		switch q.Stage {
		case ports.StageOnSearch:
			dest = append(dest, &rec.ISIN)
		case ports.StageOnStatus:
			dest = append(dest, &rec.PAN)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to scan record")
		}
		rec.Payload = []byte(payload)
		if parsed, err := protocol.ParseTimestamp(ts); err == nil {
			rec.Timestamp = parsed
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Latest(ctx context.Context, q ports.Query) (*ports.Record, error) {
	recs, err := s.selectRecords(ctx, q, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, errors.CorrelationMiss(string(q.Stage), queryKey(q))
	}
	return &recs[0], nil
}

func (s *sqliteStore) Exact(ctx context.Context, q ports.Query) (*ports.Record, error) {
	if q.MessageID == "" {
		return nil, errors.Validation("exact lookup requires message_id")
	}
	return s.Latest(ctx, q)
}

func (s *sqliteStore) List(ctx context.Context, q ports.Query) ([]ports.Record, error) {
	return s.selectRecords(ctx, q, 0)
}

func (s *sqliteStore) Exists(ctx context.Context, q ports.Query) (bool, error) {
	recs, err := s.selectRecords(ctx, q, 1)
	if err != nil {
		return false, err
	}
	return len(recs) > 0, nil
}

// Outbound stages establish a transaction; callbacks for unknown
// transactions are rejected upstream of storage.
var outboundStages = []ports.Stage{
	ports.StageSearch, ports.StageSelect, ports.StageInit, ports.StageConfirm,
	ports.StageStatus, ports.StageUpdate, ports.StageCancel,
}

func (s *sqliteStore) KnownTransaction(ctx context.Context, transactionID string) (bool, error) {
	if transactionID == "" {
		return false, errors.Validation("transaction_id is required")
	}
	for _, stage := range outboundStages {
		var n int
		query := fmt.Sprintf("SELECT COUNT(1) FROM %s WHERE transaction_id = ?", tableName(stage))
		if err := s.db.QueryRowContext(ctx, query, transactionID).Scan(&n); err != nil {
			return false, errors.Wrap(err, errors.ErrorTypeInternal, "failed to check transaction")
		}
		if n > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (s *sqliteStore) PutSubmission(ctx context.Context, transactionID, formID, submissionID string) error {
	if transactionID == "" || submissionID == "" {
		return errors.Validation("submission requires transaction_id and submission_id")
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO submissions (transaction_id, form_id, submission_id) VALUES (?, ?, ?)",
		transactionID, formID, submissionID)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to store submission")
	}
	return nil
}

func (s *sqliteStore) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "storage unreachable")
	}
	return nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func validStage(stage ports.Stage) bool {
	for _, st := range ports.Stages {
		if st == stage {
			return true
		}
	}
	return false
}

func queryKey(q ports.Query) map[string]any {
	key := map[string]any{"transaction_id": q.TransactionID}
	if q.MessageID != "" {
		key["message_id"] = q.MessageID
	}
	if q.BPPID != "" {
		key["bpp_id"] = q.BPPID
	}
	if q.BPPURI != "" {
		key["bpp_uri"] = q.BPPURI
	}
	if q.PAN != "" {
		key["pan"] = q.PAN
	}
	return key
}
