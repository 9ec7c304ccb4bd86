// Package web carries the templates and static assets compiled into the binary.
package web

import "embed"

// TemplatesFS embeds the page and view templates.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS embeds the stylesheet served under /static/.
//
//go:embed static/*
var StaticFS embed.FS
