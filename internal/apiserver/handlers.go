package apiserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"billed/internal/amqp"
	"billed/internal/core"
	applog "billed/internal/log"
	"billed/internal/proofs"
	"billed/internal/storage"
)

type apiError struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, apiError{Error: msg})
}

// listKey scopes the listing cache: one entry per employee, one for administrators.
func listKey(sess core.Session) string {
	if sess.Role == core.RoleAdmin {
		return "*"
	}
	return sess.Email
}

// visible mirrors the listing scope for single-bill access.
func visible(sess core.Session, b core.Bill) bool {
	switch sess.Role {
	case core.RoleAdmin:
		return true
	case core.RoleEmployee:
		return b.Email == sess.Email
	default:
		return false
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _ := sessionFrom(ctx)
	logger := applog.FromContext(ctx)

	key := listKey(sess)
	if bills, ok := s.listCache.Get(key); ok {
		logger.DebugContext(ctx, "Bill list cache hit", "count", len(bills))
		writeJSON(w, http.StatusOK, bills)
		return
	}

	email := sess.Email
	if sess.Role == core.RoleAdmin {
		email = ""
	}
	bills, err := s.repo.ListBills(ctx, email)
	if err != nil {
		s.structured.LogError(ctx, "List bills failed", err, applog.ComponentStorage, applog.OpList, nil)
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	s.listCache.Set(key, bills)
	writeJSON(w, http.StatusOK, bills)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _ := sessionFrom(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload+1<<20)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	email := strings.TrimSpace(r.FormValue("email"))
	if email == "" {
		email = sess.Email
	}
	if sess.Role != core.RoleAdmin && email != sess.Email {
		writeError(w, http.StatusForbidden, "cannot create a bill for another employee")
		return
	}

	var fields core.BillPatch
	if raw := r.FormValue("fields"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &fields); err != nil {
			writeError(w, http.StatusBadRequest, "invalid fields")
			return
		}
	}
	if err := fields.AllowedFor(sess.Role, core.Bill{Status: core.StatusPending}); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	file, err := readFile(r)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := core.ValidateProof(file); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	id := uuid.NewString()
	key := proofs.NewKey(id, file.Name)
	if err := s.proofs.Put(ctx, key, file.DetectContentType(), file.Data); err != nil {
		s.structured.LogError(ctx, "Store proof failed", err, applog.ComponentProofs, applog.OpUpload,
			applog.NewFields().WithBill(id, email, ""))
		writeError(w, http.StatusBadGateway, "proof storage unavailable")
		return
	}

	b := fields.Apply(core.Bill{Status: core.StatusPending})
	b.ID = id
	b.Email = email
	b.FileURL = proofs.URL(s.proofBase, key)
	b.FileName = file.Name
	if !b.Status.IsValid() {
		b.Status = core.StatusPending
	}

	created, err := s.repo.CreateBill(ctx, b, key)
	if err != nil {
		s.structured.LogError(ctx, "Create bill failed", err, applog.ComponentStorage, applog.OpCreate,
			applog.NewFields().WithBill(id, email, string(b.Status)))
		writeError(w, http.StatusInternalServerError, "create failed")
		return
	}
	s.listCache.Clear()
	s.structured.LogBillCreated(ctx, created.ID, created.Email, string(created.Status), key)
	s.publish(ctx, amqp.EventBillCreated, created)

	writeJSON(w, http.StatusCreated, created)
}

func readFile(r *http.Request) (*core.File, error) {
	f, header, err := r.FormFile("file")
	if err != nil {
		return nil, core.NewValidationError("file", "justificatif requis")
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return &core.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, _ := sessionFrom(ctx)
	id := r.PathValue("id")

	var patch core.BillPatch
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid patch")
		return
	}

	current, err := s.repo.GetBill(ctx, id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && !visible(sess, current)) {
		writeError(w, http.StatusNotFound, "bill not found")
		return
	}
	if err != nil {
		s.structured.LogError(ctx, "Get bill failed", err, applog.ComponentStorage, applog.OpUpdate,
			applog.NewFields().WithBill(id, sess.Email, ""))
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}

	if err := patch.AllowedFor(sess.Role, current); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	next := patch.Apply(current)
	if err := next.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if !next.Status.IsValid() {
		writeError(w, http.StatusUnprocessableEntity, "statut invalide")
		return
	}

	updated, err := s.repo.UpdateBill(ctx, next)
	if err != nil {
		s.structured.LogError(ctx, "Update bill failed", err, applog.ComponentStorage, applog.OpUpdate,
			applog.NewFields().WithBill(id, current.Email, string(next.Status)))
		writeError(w, http.StatusInternalServerError, "update failed")
		return
	}
	s.listCache.Clear()
	s.structured.LogBillUpdated(ctx, updated.ID, updated.Email, string(updated.Status))
	s.publish(ctx, amqp.EventBillUpdated, updated)

	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleProof(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	data, contentType, err := s.proofs.Get(r.Context(), key)
	switch {
	case errors.Is(err, proofs.ErrNotFound), errors.Is(err, proofs.ErrInvalidKey):
		http.NotFound(w, r)
		return
	case err != nil:
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Read proof failed", "error", err, applog.FieldProofKey, key)
		http.Error(w, "proof unavailable", http.StatusBadGateway)
		return
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	_, _ = w.Write(data)
}
