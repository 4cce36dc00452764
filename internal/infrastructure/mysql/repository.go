package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"packscan/internal/domain"

	_ "github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Repository is the MySQL-backed scan journal.
type Repository struct {
	db *sql.DB
}

func NewRepository(dsn string) (*Repository, error) {
	if dsn == "" {
		return nil, errors.New("db dsn is required")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := createSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func createSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS scans (
		id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
		wallet VARCHAR(42) NOT NULL,
		source VARCHAR(16) NOT NULL,
		candidates INT UNSIGNED NOT NULL,
		analyzed INT UNSIGNED NOT NULL,
		packs_detected INT UNSIGNED NOT NULL,
		failures INT UNSIGNED NOT NULL,
		packs BIGINT NOT NULL,
		spent_usdc DECIMAL(38,6) NOT NULL,
		influence BIGINT NOT NULL,
		from_block BIGINT UNSIGNED NULL,
		to_block BIGINT UNSIGNED NULL,
		tx_hashes MEDIUMTEXT NOT NULL,
		started_at BIGINT NOT NULL,
		duration_ms BIGINT NOT NULL,
		PRIMARY KEY (id),
		KEY scans_wallet_idx (wallet, started_at),
		KEY scans_started_idx (started_at)
	)`)
	return err
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
	ctx, span := startDBSpan(ctx, "mysql.RecordScan", attribute.String("wallet", result.Wallet))
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
		record.Wallet, record.Source, record.Candidates, record.Analyzed, record.PacksDetected, record.Failures,
		record.Packs, record.SpentUSDC, record.Influence, record.Range.From, record.Range.To,
		string(hashes), record.StartedAt.UnixMilli(), record.DurationMs,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (r *Repository) RecentScans(ctx context.Context, limit int) ([]domain.ScanRecord, error) {
	ctx, span := startDBSpan(ctx, "mysql.RecentScans", attribute.Int("limit", limit))
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
			from, to  sql.NullInt64
			hashes    string
			startedAt int64
		)
		if err := rows.Scan(&record.ID, &record.Wallet, &record.Source, &record.Candidates, &record.Analyzed,
			&record.PacksDetected, &record.Failures, &record.Packs, &record.SpentUSDC, &record.Influence,
			&from, &to, &hashes, &startedAt, &record.DurationMs); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(hashes), &record.TxHashes); err != nil {
			return nil, err
		}
		if from.Valid {
			v := uint64(from.Int64)
			record.Range.From = &v
		}
		if to.Valid {
			v := uint64(to.Int64)
			record.Range.To = &v
		}
		record.StartedAt = time.UnixMilli(startedAt).UTC()
		records = append(records, record)
	}
	return records, rows.Err()
}

func startDBSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("db.system", "mysql"))
	return otel.Tracer("packscan/mysql").Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(attrs...))
}
