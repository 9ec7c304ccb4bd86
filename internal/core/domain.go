package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRefused  Status = "refused"
)

const (
	TypeTransports  ExpenseType = "Transports"
	TypeRestaurants ExpenseType = "Restaurants et bars"
	TypeHotel       ExpenseType = "Hôtel et logement"
	TypeOnline      ExpenseType = "Services en ligne"
	TypeIT          ExpenseType = "IT et électronique"
	TypeEquipment   ExpenseType = "Equipement et matériel"
	TypeOffice      ExpenseType = "Fournitures de bureau"
)

// DefaultPct is applied when a bill is submitted without a percentage.
const DefaultPct = 20

type (
	Status string

	ExpenseType string

	// Bill is a single expense claim. JSON names follow the remote API.
	Bill struct {
		ID           string          `json:"id"`
		Email        string          `json:"email"`
		Type         ExpenseType     `json:"type"`
		Name         string          `json:"name"`
		Amount       decimal.Decimal `json:"amount"`
		Date         string          `json:"date"`
		VAT          decimal.Decimal `json:"vat"`
		Pct          int             `json:"pct"`
		Commentary   string          `json:"commentary"`
		CommentAdmin string          `json:"commentAdmin,omitempty"`
		FileURL      string          `json:"fileUrl"`
		FileName     string          `json:"fileName"`
		Status       Status          `json:"status"`
	}

	// BillPatch carries the fields of a partial update. Nil fields are left untouched.
	BillPatch struct {
		Type         *ExpenseType     `json:"type,omitempty"`
		Name         *string          `json:"name,omitempty"`
		Amount       *decimal.Decimal `json:"amount,omitempty"`
		Date         *string          `json:"date,omitempty"`
		VAT          *decimal.Decimal `json:"vat,omitempty"`
		Pct          *int             `json:"pct,omitempty"`
		Commentary   *string          `json:"commentary,omitempty"`
		CommentAdmin *string          `json:"commentAdmin,omitempty"`
		FileURL      *string          `json:"fileUrl,omitempty"`
		FileName     *string          `json:"fileName,omitempty"`
		Status       *Status          `json:"status,omitempty"`
	}

	// CreateRequest uploads a proof file and opens a new bill for Email.
	CreateRequest struct {
		Email  string
		File   *File
		Fields BillPatch
	}
)

// ExpenseTypes lists the closed set of categories in display order.
func ExpenseTypes() []ExpenseType {
	return []ExpenseType{TypeTransports, TypeRestaurants, TypeHotel, TypeOnline, TypeIT, TypeEquipment, TypeOffice}
}

// IsValid reports whether t belongs to the closed category set.
func (t ExpenseType) IsValid() bool {
	for _, v := range ExpenseTypes() {
		if v == t {
			return true
		}
	}
	return false
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusRefused:
		return true
	default:
		return false
	}
}

// Label is the text shown in the employee list.
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "En attente"
	case StatusAccepted:
		return "Accepté"
	case StatusRefused:
		return "Refusé"
	default:
		return string(s)
	}
}

// HasFile reports whether both proof fields are set.
func (b Bill) HasFile() bool {
	return b.FileURL != "" && b.FileName != ""
}

func (b Bill) Validate() error {
	if !b.Type.IsValid() {
		return NewValidationError("type", "type de dépense invalide")
	}
	if strings.TrimSpace(b.Name) == "" {
		return NewValidationError("name", "nom requis")
	}
	if b.Amount.IsNegative() {
		return NewValidationError("amount", "montant invalide")
	}
	if _, err := ParseDate(b.Date); err != nil {
		return NewValidationError("date", "date invalide")
	}
	if b.VAT.IsNegative() {
		return NewValidationError("vat", "TVA invalide")
	}
	if b.Pct < 0 {
		return NewValidationError("pct", "pourcentage invalide")
	}
	if (b.FileURL == "") != (b.FileName == "") {
		return NewValidationError("file", "justificatif incomplet")
	}
	return nil
}

// Apply merges the non-nil fields of p into b. ID and Email never change.
func (p BillPatch) Apply(b Bill) Bill {
	if p.Type != nil {
		b.Type = *p.Type
	}
	if p.Name != nil {
		b.Name = *p.Name
	}
	if p.Amount != nil {
		b.Amount = *p.Amount
	}
	if p.Date != nil {
		b.Date = *p.Date
	}
	if p.VAT != nil {
		b.VAT = *p.VAT
	}
	if p.Pct != nil {
		b.Pct = *p.Pct
	}
	if p.Commentary != nil {
		b.Commentary = *p.Commentary
	}
	if p.CommentAdmin != nil {
		b.CommentAdmin = *p.CommentAdmin
	}
	if p.FileURL != nil {
		b.FileURL = *p.FileURL
	}
	if p.FileName != nil {
		b.FileName = *p.FileName
	}
	if p.Status != nil {
		b.Status = *p.Status
	}
	return b
}

// AllowedFor rejects a patch an employee sends to change the review of current: its
// status or the administrator comment. Values equal to the current ones pass, so a
// full resubmission of a pending bill is accepted.
func (p BillPatch) AllowedFor(role Role, current Bill) error {
	if role == RoleAdmin {
		return nil
	}
	if p.Status != nil && *p.Status != current.Status {
		return NewValidationError("status", "seul un administrateur peut changer le statut")
	}
	if p.CommentAdmin != nil && *p.CommentAdmin != current.CommentAdmin {
		return NewValidationError("commentAdmin", "seul un administrateur peut commenter")
	}
	return nil
}

// PatchFrom builds a patch that overwrites every mutable field with the values of b.
func PatchFrom(b Bill) BillPatch {
	return BillPatch{
		Type:         &b.Type,
		Name:         &b.Name,
		Amount:       &b.Amount,
		Date:         &b.Date,
		VAT:          &b.VAT,
		Pct:          &b.Pct,
		Commentary:   &b.Commentary,
		CommentAdmin: &b.CommentAdmin,
		FileURL:      &b.FileURL,
		FileName:     &b.FileName,
		Status:       &b.Status,
	}
}

func (r CreateRequest) Validate() error {
	if strings.TrimSpace(r.Email) == "" {
		return NewValidationError("email", "email requis")
	}
	if r.File == nil || r.File.Name == "" {
		return NewValidationError("file", "justificatif requis")
	}
	return nil
}
