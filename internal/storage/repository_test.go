package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billed/internal/core"
)

func newRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "db", "billed.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func sampleBill(id, email string) core.Bill {
	return core.Bill{
		ID:         id,
		Email:      email,
		Type:       core.TypeHotel,
		Name:       "nuit",
		Amount:     decimal.RequireFromString("120.50"),
		Date:       "2024-02-03",
		VAT:        decimal.RequireFromString("20"),
		Pct:        20,
		Commentary: "séminaire",
		FileURL:    "http://localhost:5678/proofs/" + id + ".png",
		FileName:   "nuit.png",
		Status:     core.StatusPending,
	}
}

func TestSQLiteRepository_CreateGetList(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	created, err := repo.CreateBill(ctx, sampleBill("b1", "a@a"), "b1.png")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("120.5").Equal(created.Amount))
	assert.Equal(t, core.TypeHotel, created.Type)

	_, err = repo.CreateBill(ctx, sampleBill("b2", "b@b"), "b2.png")
	require.NoError(t, err)
	_, err = repo.CreateBill(ctx, sampleBill("b3", "a@a"), "b3.png")
	require.NoError(t, err)

	got, err := repo.GetBill(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, "séminaire", got.Commentary)
	assert.Equal(t, "nuit.png", got.FileName)

	all, err := repo.ListBills(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"b1", "b2", "b3"}, []string{all[0].ID, all[1].ID, all[2].ID})

	mine, err := repo.ListBills(ctx, "a@a")
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	none, err := repo.ListBills(ctx, "nobody@x")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)

	key, err := repo.ProofKey(ctx, "b3")
	require.NoError(t, err)
	assert.Equal(t, "b3.png", key)
}

func TestSQLiteRepository_Update(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	b, err := repo.CreateBill(ctx, sampleBill("b1", "a@a"), "b1.png")
	require.NoError(t, err)

	b.Status = core.StatusAccepted
	b.CommentAdmin = "ok"
	b.Amount = decimal.RequireFromString("99.99")
	updated, err := repo.UpdateBill(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, core.StatusAccepted, updated.Status)
	assert.Equal(t, "ok", updated.CommentAdmin)
	assert.Equal(t, "a@a", updated.Email)

	counts, err := repo.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[core.Status]int{core.StatusAccepted: 1}, counts)
}

func TestSQLiteRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	_, err := repo.GetBill(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = repo.UpdateBill(ctx, sampleBill("missing", "a@a"))
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = repo.ProofKey(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSQLiteRepository_RejectsUnknownStatus(t *testing.T) {
	repo := newRepo(t)
	b := sampleBill("b1", "a@a")
	b.Status = "archived"
	_, err := repo.CreateBill(context.Background(), b, "")
	assert.Error(t, err)
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "billed.db")
	repo, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	require.NoError(t, RunMigrations(path))
}

func TestSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "billed.db")

	v, dirty, err := SchemaVersion(path)
	require.NoError(t, err)
	assert.Zero(t, v)
	assert.False(t, dirty)

	require.NoError(t, RunMigrations(path))
	v, dirty, err = SchemaVersion(path)
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
	assert.False(t, dirty)
}
