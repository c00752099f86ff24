package web

import (
	"embed"
	"io/fs"
)

//go:embed static/*
var staticFS embed.FS

// Static returns the front end with the static/ prefix stripped, so pages
// live at the root of the returned FS.
func Static() (fs.FS, error) {
	return fs.Sub(staticFS, "static")
}
