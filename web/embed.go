package web

import "embed"

// Templates holds the layouts, partials and pages parsed by view.NewEngine.
//
//go:embed templates/**/*.html
var Templates embed.FS

// Static holds the stylesheet and the browser scripts, including the
// assistant widget that records speech.
//
//go:embed static/**/*
var Static embed.FS
