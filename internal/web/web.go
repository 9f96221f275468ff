// Package web holds the browser front end.
package web

import (
	"embed"
	"io/fs"
)

//go:embed static
var content embed.FS

// Assets returns the front-end files rooted at the static directory.
func Assets() fs.FS {
	sub, err := fs.Sub(content, "static")
	if err != nil {
		panic(err)
	}
	return sub
}
