package http

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"billed/internal/core"
	"billed/internal/view"
)

// ErrMissingCoordinates is returned when an event request names no target or event.
var ErrMissingCoordinates = errors.New("event target and type are required")

// ParseEvent reads a dispatched interaction from a form or multipart request. The
// coordinate fields are removed from the form handed to the view.
func ParseEvent(r *http.Request, maxUpload int64) (view.Event, error) {
	var ev view.Event

	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxUpload); err != nil {
			return ev, fmt.Errorf("parse multipart form: %w", err)
		}
	} else if err := r.ParseForm(); err != nil {
		return ev, fmt.Errorf("parse form: %w", err)
	}

	form := url.Values{}
	for k, vs := range r.Form {
		for _, v := range vs {
			form.Add(k, sanitizeInput(v))
		}
	}

	ev.Target = form.Get(view.FieldTarget)
	ev.Type = form.Get(view.FieldEvent)
	if ev.Target == "" || ev.Type == "" {
		return ev, ErrMissingCoordinates
	}
	if v := form.Get(view.FieldIndex); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil || i < 0 {
			return ev, fmt.Errorf("invalid event index %q", v)
		}
		ev.Index = i
	}
	form.Del(view.FieldTarget)
	form.Del(view.FieldEvent)
	form.Del(view.FieldIndex)
	ev.Form = form

	if r.MultipartForm != nil {
		file, err := firstFile(r.MultipartForm)
		if err != nil {
			return ev, err
		}
		ev.File = file
	}
	return ev, nil
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// firstFile returns the uploaded file, or nil when the request carries none.
func firstFile(form *multipart.Form) (*core.File, error) {
	headers := form.File["file"]
	if len(headers) == 0 || headers[0].Filename == "" {
		return nil, nil
	}
	h := headers[0]
	f, err := h.Open()
	if err != nil {
		return nil, fmt.Errorf("open uploaded file: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read uploaded file: %w", err)
	}
	return &core.File{
		Name:        sanitizeInput(h.Filename),
		ContentType: h.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

// sanitizeInput removes potentially dangerous characters and trims whitespace
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	// Remove control characters except tab, newline, carriage return
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
