package storage

import "database/sql"

// BillRow is a bills table row. Amounts are stored as decimal text, timestamps as
// whatever the driver hands back for DATETIME columns.
type BillRow struct {
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
	Version      int64
	CreatedAt    sql.NullString
	UpdatedAt    sql.NullString
}
