package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

// WithTx rebinds the queries to tx.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const billColumns = `id, email, type, name, amount, date, vat, pct, commentary, comment_admin,
    file_url, file_name, proof_key, status, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBill(row rowScanner) (BillRow, error) {
	var i BillRow
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.Type,
		&i.Name,
		&i.Amount,
		&i.Date,
		&i.Vat,
		&i.Pct,
		&i.Commentary,
		&i.CommentAdmin,
		&i.FileUrl,
		&i.FileName,
		&i.ProofKey,
		&i.Status,
		&i.Version,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createBill = `INSERT INTO bills (
    id, email, type, name, amount, date, vat, pct, commentary, comment_admin,
    file_url, file_name, proof_key, status
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + billColumns

type CreateBillParams struct {
	ID           string
	Email        string
	Type         string
	Name         string
	Amount       string
	Date         string
	Vat          string
	Pct          int64
	Commentary   string
	CommentAdmin string
	FileUrl      string
	FileName     string
	ProofKey     string
	Status       string
}

func (q *Queries) CreateBill(ctx context.Context, arg CreateBillParams) (BillRow, error) {
	row := q.db.QueryRowContext(ctx, createBill,
		arg.ID,
		arg.Email,
		arg.Type,
		arg.Name,
		arg.Amount,
		arg.Date,
		arg.Vat,
		arg.Pct,
		arg.Commentary,
		arg.CommentAdmin,
		arg.FileUrl,
		arg.FileName,
		arg.ProofKey,
		arg.Status,
	)
	return scanBill(row)
}

const getBill = `SELECT ` + billColumns + ` FROM bills WHERE id = ?`

func (q *Queries) GetBill(ctx context.Context, id string) (BillRow, error) {
	return scanBill(q.db.QueryRowContext(ctx, getBill, id))
}

const listBills = `SELECT ` + billColumns + ` FROM bills ORDER BY rowid`

func (q *Queries) ListBills(ctx context.Context) ([]BillRow, error) {
	return q.list(ctx, listBills)
}

const listBillsByEmail = `SELECT ` + billColumns + ` FROM bills WHERE email = ? ORDER BY rowid`

func (q *Queries) ListBillsByEmail(ctx context.Context, email string) ([]BillRow, error) {
	return q.list(ctx, listBillsByEmail, email)
}

func (q *Queries) list(ctx context.Context, query string, args ...interface{}) ([]BillRow, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []BillRow
	for rows.Next() {
		i, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateBill = `UPDATE bills SET
    type = ?, name = ?, amount = ?, date = ?, vat = ?, pct = ?, commentary = ?,
    comment_admin = ?, file_url = ?, file_name = ?, status = ?,
    version = version + 1, updated_at = CURRENT_TIMESTAMP
WHERE id = ?
RETURNING ` + billColumns

type UpdateBillParams struct {
	Type         string
	Name         string
	Amount       string
	Date         string
	Vat          string
	Pct          int64
	Commentary   string
	CommentAdmin string
	FileUrl      string
	FileName     string
	Status       string
	ID           string
}

func (q *Queries) UpdateBill(ctx context.Context, arg UpdateBillParams) (BillRow, error) {
	row := q.db.QueryRowContext(ctx, updateBill,
		arg.Type,
		arg.Name,
		arg.Amount,
		arg.Date,
		arg.Vat,
		arg.Pct,
		arg.Commentary,
		arg.CommentAdmin,
		arg.FileUrl,
		arg.FileName,
		arg.Status,
		arg.ID,
	)
	return scanBill(row)
}

const countBillsByStatus = `SELECT status, COUNT(*) FROM bills GROUP BY status`

type CountBillsByStatusRow struct {
	Status string
	Count  int64
}

func (q *Queries) CountBillsByStatus(ctx context.Context) ([]CountBillsByStatusRow, error) {
	rows, err := q.db.QueryContext(ctx, countBillsByStatus)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CountBillsByStatusRow
	for rows.Next() {
		var i CountBillsByStatusRow
		if err := rows.Scan(&i.Status, &i.Count); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
