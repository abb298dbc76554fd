// Package slidescope provides embedded runtime resources (synthetic scenes,
// config templates) and an overlay filesystem that checks local disk first,
// falling back to embedded.
package slidescope

import (
	"embed"
	"io/fs"
	"os"
)

//go:embed scenes/*.yaml
var rawScenes embed.FS

//go:embed templates/config.yaml.template
var rawTemplates embed.FS

// Scenes is the embedded scene filesystem with the "scenes/" prefix stripped.
var Scenes = mustSub(rawScenes, "scenes")

// Templates is the embedded templates filesystem with the "templates/" prefix stripped.
var Templates = mustSub(rawTemplates, "templates")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

// OverlayFS returns a filesystem that checks localDir on disk first,
// falling back to the embedded filesystem for files not found locally.
func OverlayFS(localDir string, embedded fs.FS) fs.FS {
	return overlayFS{localDir: localDir, embedded: embedded}
}

type overlayFS struct {
	localDir string
	embedded fs.FS
}

func (o overlayFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	f, err := os.Open(o.localDir + "/" + name)
	if err == nil {
		return f, nil
	}
	return o.embedded.Open(name)
}
