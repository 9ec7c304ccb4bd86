package view

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html"
	"html/template"
	"io/fs"
	"strconv"
	"strings"

	"billed/internal/core"
)

// Renderer executes the page and fragment templates.
type Renderer struct {
	templates *template.Template
}

// NewRenderer parses every template in fsys that matches patterns.
func NewRenderer(fsys fs.FS, patterns ...string) (*Renderer, error) {
	if len(patterns) == 0 {
		patterns = []string{"templates/*.html"}
	}
	t, err := template.New("").Funcs(Funcs()).ParseFS(fsys, patterns...)
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &Renderer{templates: t}, nil
}

// Render executes the named template and returns the produced markup.
func (r *Renderer) Render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// Funcs are the helpers available to every template.
func Funcs() template.FuncMap {
	return template.FuncMap{
		"formatDate": core.FormatDate,
		"statusLabel": func(s core.Status) string {
			return s.Label()
		},
		"expenseTypes": core.ExpenseTypes,
		"activeIf": func(active bool) template.HTMLAttr {
			if active {
				return `class="active-icon"`
			}
			return ""
		},
		"lower": strings.ToLower,
		"hx": func(event, target string) template.HTMLAttr {
			return eventAttrs(event, target, -1, false)
		},
		"hxAt": func(event, target string, index int) template.HTMLAttr {
			return eventAttrs(event, target, index, false)
		},
		"hxForm": func(event, target string) template.HTMLAttr {
			return eventAttrs(event, target, -1, true)
		},
	}
}

// Form keys the transport reads the event coordinates from.
const (
	FieldTarget = "ui-target"
	FieldEvent  = "ui-event"
	FieldIndex  = "ui-index"
)

// EventPath receives every dispatched interaction.
const EventPath = "/ui/event"

// eventAttrs wires an element to the event endpoint.
func eventAttrs(event, target string, index int, multipart bool) template.HTMLAttr {
	vals := map[string]string{FieldTarget: target, FieldEvent: event}
	if index >= 0 {
		vals[FieldIndex] = strconv.Itoa(index)
	}
	raw, _ := json.Marshal(vals)

	var b strings.Builder
	fmt.Fprintf(&b, `hx-post="%s" hx-vals="%s"`, EventPath, html.EscapeString(string(raw)))
	switch event {
	case EventChange:
		b.WriteString(` hx-trigger="change"`)
	case EventSubmit:
		b.WriteString(` hx-trigger="submit"`)
	}
	if multipart {
		b.WriteString(` hx-encoding="multipart/form-data"`)
	}
	return template.HTMLAttr(b.String())
}
