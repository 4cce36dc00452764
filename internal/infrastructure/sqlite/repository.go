package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"packscan/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"
)

// Repository is the sqlite-backed scan journal.
type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	if dbPath == "" {
		return nil, errors.New("db path is required")
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// a single connection keeps in-memory databases shared and avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)
	if err := createSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func createSchema(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS scans (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			wallet TEXT NOT NULL,
			source TEXT NOT NULL,
			candidates INTEGER NOT NULL,
			analyzed INTEGER NOT NULL,
			packs_detected INTEGER NOT NULL,
			failures INTEGER NOT NULL,
			packs INTEGER NOT NULL,
			spent_usdc TEXT NOT NULL,
			influence INTEGER NOT NULL,
			from_block INTEGER NULL,
			to_block INTEGER NULL,
			tx_hashes TEXT NOT NULL,
			started_at INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS scans_wallet_idx ON scans (wallet, started_at)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

func (r *Repository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return r.db.PingContext(ctx)
}

func (r *Repository) RecordScan(ctx context.Context, result domain.ScanResult) error {
	ctx, span := startDBSpan(ctx, "sqlite.RecordScan", attribute.String("wallet", result.Wallet))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	record := domain.NewScanRecord(result)
	hashes, err := json.Marshal(record.TxHashes)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO scans
		(wallet, source, candidates, analyzed, packs_detected, failures, packs, spent_usdc, influence, from_block, to_block, tx_hashes, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.Wallet,
		record.Source,
		record.Candidates,
		record.Analyzed,
		record.PacksDetected,
		record.Failures,
		record.Packs,
		record.SpentUSDC.String(),
		record.Influence,
		nullableBlock(record.Range.From),
		nullableBlock(record.Range.To),
		string(hashes),
		record.StartedAt.UnixMilli(),
		record.DurationMs,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// RecentScans returns the newest journal entries first.
func (r *Repository) RecentScans(ctx context.Context, limit int) ([]domain.ScanRecord, error) {
	ctx, span := startDBSpan(ctx, "sqlite.RecentScans", attribute.Int("limit", limit))
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `SELECT id, wallet, source, candidates, analyzed, packs_detected, failures, packs, spent_usdc, influence, from_block, to_block, tx_hashes, started_at, duration_ms
		FROM scans ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer rows.Close()

	records := []domain.ScanRecord{}
	for rows.Next() {
		var (
			record    domain.ScanRecord
			spent     string
			from, to  sql.NullInt64
			hashes    string
			startedAt int64
		)
		if err := rows.Scan(&record.ID, &record.Wallet, &record.Source, &record.Candidates, &record.Analyzed,
			&record.PacksDetected, &record.Failures, &record.Packs, &spent, &record.Influence,
			&from, &to, &hashes, &startedAt, &record.DurationMs); err != nil {
			return nil, err
		}
		if err := record.SpentUSDC.Scan(spent); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(hashes), &record.TxHashes); err != nil {
			return nil, err
		}
		record.Range = domain.BlockRange{From: blockPointer(from), To: blockPointer(to)}
		record.StartedAt = time.UnixMilli(startedAt).UTC()
		records = append(records, record)
	}
	return records, rows.Err()
}

func nullableBlock(value *uint64) any {
	if value == nil {
		return nil
	}
	return int64(*value)
}

func blockPointer(value sql.NullInt64) *uint64 {
	if !value.Valid {
		return nil
	}
	v := uint64(value.Int64)
	return &v
}

func startDBSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("db.system", "sqlite"))
	return otel.Tracer("packscan/sqlite").Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}
