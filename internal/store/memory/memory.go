// Package memory is an in-process bill store, seeded with fixtures and scoped per identity.
package memory

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"billed/internal/core"
	"billed/internal/store"
)

// Op names a store operation for failure injection.
type Op string

const (
	OpList   Op = "list"
	OpCreate Op = "create"
	OpUpdate Op = "update"
)

// FixtureEmail owns every fixture bill.
const FixtureEmail = "a@a"

// DefaultProofBase is the URL prefix of uploaded proofs; the web server serves it from Proof.
const DefaultProofBase = "/proofs"

var errNoIdentity = errors.New("no signed-in identity")

type proof struct {
	contentType string
	data        []byte
}

// DB holds the bills shared by every tab of the process.
type DB struct {
	mu        sync.Mutex
	bills     []core.Bill
	proofs    map[string]proof
	failures  map[Op]error
	proofBase string
}

func New(seed []core.Bill) *DB {
	bills := make([]core.Bill, len(seed))
	copy(bills, seed)
	return &DB{
		bills:     bills,
		proofs:    map[string]proof{},
		failures:  map[Op]error{},
		proofBase: DefaultProofBase,
	}
}

// NewWithFixtures returns a DB holding the four reference bills.
func NewWithFixtures() *DB {
	return New(Fixtures())
}

// SetProofBase changes the prefix used to build fileUrl for new uploads.
func (db *DB) SetProofBase(base string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.proofBase = base
}

// Fail makes every following call of op reject with err. A nil err restores normal behaviour.
func (db *DB) Fail(op Op, err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if err == nil {
		delete(db.failures, op)
		return
	}
	db.failures[op] = err
}

// Proof returns an uploaded proof by key.
func (db *DB) Proof(key string) (data []byte, contentType string, ok bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	p, ok := db.proofs[key]
	if !ok {
		return nil, "", false
	}
	return append([]byte(nil), p.data...), p.contentType, true
}

// Len reports how many bills exist across all identities.
func (db *DB) Len() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.bills)
}

// For returns a Store acting on behalf of identity.
func (db *DB) For(identity store.Identity) *Store {
	return &Store{db: db, identity: identity}
}

// Store is a view of the DB limited to what the identity may see: employees their own
// bills, administrators all of them.
type Store struct {
	db       *DB
	identity store.Identity
}

var _ store.Store = (*Store)(nil)

func (s *Store) List(ctx context.Context) ([]core.Bill, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.NetworkError(err)
	}
	who, err := s.who()
	if err != nil {
		return nil, err
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.failures[OpList]; err != nil {
		return nil, err
	}
	out := make([]core.Bill, 0, len(s.db.bills))
	for _, b := range s.db.bills {
		if visible(who, b) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, req core.CreateRequest) (core.Bill, error) {
	if err := ctx.Err(); err != nil {
		return core.Bill{}, core.NetworkError(err)
	}
	if err := req.Validate(); err != nil {
		return core.Bill{}, err
	}
	who, err := s.who()
	if err != nil {
		return core.Bill{}, err
	}
	if err := req.Fields.AllowedFor(who.Role, core.Bill{Status: core.StatusPending}); err != nil {
		return core.Bill{}, err
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.failures[OpCreate]; err != nil {
		return core.Bill{}, err
	}

	id := uuid.NewString()
	key := id + path.Ext(req.File.Name)
	s.db.proofs[key] = proof{contentType: req.File.DetectContentType(), data: append([]byte(nil), req.File.Data...)}

	b := req.Fields.Apply(core.Bill{Status: core.StatusPending})
	b.ID = id
	b.Email = req.Email
	b.FileURL = s.db.proofBase + "/" + key
	b.FileName = req.File.Name
	if !b.Status.IsValid() {
		b.Status = core.StatusPending
	}
	s.db.bills = append(s.db.bills, b)
	return b, nil
}

func (s *Store) Update(ctx context.Context, id string, patch core.BillPatch) (core.Bill, error) {
	if err := ctx.Err(); err != nil {
		return core.Bill{}, core.NetworkError(err)
	}
	who, err := s.who()
	if err != nil {
		return core.Bill{}, err
	}

	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if err := s.db.failures[OpUpdate]; err != nil {
		return core.Bill{}, err
	}
	for i, b := range s.db.bills {
		if b.ID != id || !visible(who, b) {
			continue
		}
		if err := patch.AllowedFor(who.Role, b); err != nil {
			return core.Bill{}, err
		}
		next := patch.Apply(b)
		if err := next.Validate(); err != nil {
			return core.Bill{}, err
		}
		if !next.Status.IsValid() {
			return core.Bill{}, core.NewValidationError("status", "statut invalide")
		}
		s.db.bills[i] = next
		return next, nil
	}
	return core.Bill{}, core.NotFound(fmt.Errorf("bill %s", id))
}

func (s *Store) who() (core.Session, error) {
	if s.identity == nil {
		return core.Session{}, core.ServerError(errNoIdentity)
	}
	who, ok := s.identity.Get()
	if !ok {
		return core.Session{}, core.ServerError(errNoIdentity)
	}
	return who, nil
}

func visible(who core.Session, b core.Bill) bool {
	switch who.Role {
	case core.RoleAdmin:
		return true
	case core.RoleEmployee:
		return b.Email == who.Email
	default:
		return false
	}
}

// Fixtures returns the reference data set: one pending, one accepted and two refused bills.
func Fixtures() []core.Bill {
	return []core.Bill{
		{
			ID:         "47qAXb6fIm2zOKkLzMro",
			VAT:        decimal.NewFromInt(80),
			FileURL:    "https://test.storage.tld/v0/b/billable-677b6.appspot.com/o/preview-facture-free-201801-pdf-1.jpg?alt=media&token=c1640e12-a24b-4b11-ae52-529112e9602a",
			Status:     core.StatusPending,
			Type:       core.TypeHotel,
			Commentary: "séminaire billed",
			Name:       "encore",
			FileName:   "preview-facture-free-201801-pdf-1.jpg",
			Date:       "2004-04-04",
			Amount:     decimal.NewFromInt(400),
			Email:      FixtureEmail,
			Pct:        20,
		},
		{
			ID:           "BeKy5Mo4jkmdfPGYpTxZ",
			VAT:          decimal.Zero,
			FileURL:      "https://test.storage.tld/v0/b/billable-677b6.appspot.com/o/justificatifs%2Fdevis-mrlpd.jpg?alt=media&token=4df6ed2c-12c8-42a2-b013-346c1346f732",
			Status:       core.StatusRefused,
			Type:         core.TypeTransports,
			Commentary:   "",
			Name:         "test1",
			FileName:     "1592770761.jpeg",
			Date:         "2001-01-01",
			Amount:       decimal.NewFromInt(100),
			CommentAdmin: "en fait non",
			Email:        FixtureEmail,
			Pct:          20,
		},
		{
			ID:           "UIUZtnPQvnbFnB0ozvJh",
			VAT:          decimal.NewFromInt(40),
			FileURL:      "https://test.storage.tld/v0/b/billable-677b6.appspot.com/o/justificatifs%2Fdevis.jpg?alt=media&token=6fd26743-2a8d-4a2f-9c7f-f3b3fa3e98c5",
			Status:       core.StatusAccepted,
			Type:         core.TypeOnline,
			Commentary:   "",
			Name:         "test3",
			FileName:     "facture-client-php-exportee-dans-document-pdf-enregistre-sur-disque-dur.png",
			Date:         "2003-03-03",
			Amount:       decimal.NewFromInt(300),
			CommentAdmin: "bon bah d'accord",
			Email:        FixtureEmail,
			Pct:          20,
		},
		{
			ID:           "qcCK3SzECmaZAGRrHjaC",
			VAT:          decimal.NewFromInt(20),
			FileURL:      "https://test.storage.tld/v0/b/billable-677b6.appspot.com/o/justificatifs%2Fpreview-facture-free-201801-pdf-1.jpg?alt=media&token=4df6ed2c-12c8-42a2-b013-346c1346f732",
			Status:       core.StatusRefused,
			Type:         core.TypeRestaurants,
			Commentary:   "",
			Name:         "test2",
			FileName:     "preview-facture-free-201801-pdf-1.jpg",
			Date:         "2002-02-02",
			Amount:       decimal.NewFromInt(200),
			CommentAdmin: "pas la bonne facture",
			Email:        FixtureEmail,
			Pct:          20,
		},
	}
}
