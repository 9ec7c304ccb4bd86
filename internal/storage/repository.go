// Package storage persists bills in SQLite for the API server.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"

	"billed/internal/core"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no bill has the requested id.
var ErrNotFound = errors.New("bill not found")

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database answers.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// CreateBill inserts b and remembers the storage key of its proof.
func (r *SQLiteRepository) CreateBill(ctx context.Context, b core.Bill, proofKey string) (core.Bill, error) {
	row, err := r.queries.CreateBill(ctx, CreateBillParams{
		ID:           b.ID,
		Email:        b.Email,
		Type:         string(b.Type),
		Name:         b.Name,
		Amount:       b.Amount.String(),
		Date:         b.Date,
		Vat:          b.VAT.String(),
		Pct:          int64(b.Pct),
		Commentary:   b.Commentary,
		CommentAdmin: b.CommentAdmin,
		FileUrl:      b.FileURL,
		FileName:     b.FileName,
		ProofKey:     proofKey,
		Status:       string(b.Status),
	})
	if err != nil {
		return core.Bill{}, fmt.Errorf("create bill: %w", err)
	}

	slog.DebugContext(ctx, "Bill saved to SQLite", "bill_id", row.ID, "email", row.Email, "proof_key", proofKey)
	return toBill(row)
}

func (r *SQLiteRepository) GetBill(ctx context.Context, id string) (core.Bill, error) {
	row, err := r.queries.GetBill(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Bill{}, fmt.Errorf("get bill %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return core.Bill{}, fmt.Errorf("get bill %s: %w", id, err)
	}
	return toBill(row)
}

// ListBills returns every bill, or only those of email when it is not empty, in insertion order.
func (r *SQLiteRepository) ListBills(ctx context.Context, email string) ([]core.Bill, error) {
	var (
		rows []BillRow
		err  error
	)
	if email == "" {
		rows, err = r.queries.ListBills(ctx)
	} else {
		rows, err = r.queries.ListBillsByEmail(ctx, email)
	}
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}

	bills := make([]core.Bill, 0, len(rows))
	for _, row := range rows {
		b, err := toBill(row)
		if err != nil {
			return nil, err
		}
		bills = append(bills, b)
	}
	return bills, nil
}

// UpdateBill overwrites the mutable fields of the stored bill with b.
func (r *SQLiteRepository) UpdateBill(ctx context.Context, b core.Bill) (core.Bill, error) {
	row, err := r.queries.UpdateBill(ctx, UpdateBillParams{
		Type:         string(b.Type),
		Name:         b.Name,
		Amount:       b.Amount.String(),
		Date:         b.Date,
		Vat:          b.VAT.String(),
		Pct:          int64(b.Pct),
		Commentary:   b.Commentary,
		CommentAdmin: b.CommentAdmin,
		FileUrl:      b.FileURL,
		FileName:     b.FileName,
		Status:       string(b.Status),
		ID:           b.ID,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return core.Bill{}, fmt.Errorf("update bill %s: %w", b.ID, ErrNotFound)
	}
	if err != nil {
		return core.Bill{}, fmt.Errorf("update bill %s: %w", b.ID, err)
	}

	slog.DebugContext(ctx, "Bill updated in SQLite", "bill_id", row.ID, "status", row.Status, "version", row.Version)
	return toBill(row)
}

// ProofKey returns the storage key recorded for the proof of bill id.
func (r *SQLiteRepository) ProofKey(ctx context.Context, id string) (string, error) {
	row, err := r.queries.GetBill(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("get bill %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get bill %s: %w", id, err)
	}
	return row.ProofKey, nil
}

// CountByStatus returns the number of bills per status.
func (r *SQLiteRepository) CountByStatus(ctx context.Context) (map[core.Status]int, error) {
	rows, err := r.queries.CountBillsByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count bills by status: %w", err)
	}
	counts := make(map[core.Status]int, len(rows))
	for _, row := range rows {
		counts[core.Status(row.Status)] = int(row.Count)
	}
	return counts, nil
}

func toBill(row BillRow) (core.Bill, error) {
	amount, err := decimal.NewFromString(row.Amount)
	if err != nil {
		return core.Bill{}, fmt.Errorf("bill %s: parse amount %q: %w", row.ID, row.Amount, err)
	}
	vat, err := decimal.NewFromString(row.Vat)
	if err != nil {
		return core.Bill{}, fmt.Errorf("bill %s: parse vat %q: %w", row.ID, row.Vat, err)
	}
	return core.Bill{
		ID:           row.ID,
		Email:        row.Email,
		Type:         core.ExpenseType(row.Type),
		Name:         row.Name,
		Amount:       amount,
		Date:         row.Date,
		VAT:          vat,
		Pct:          int(row.Pct),
		Commentary:   row.Commentary,
		CommentAdmin: row.CommentAdmin,
		FileURL:      row.FileUrl,
		FileName:     row.FileName,
		Status:       core.Status(row.Status),
	}, nil
}
