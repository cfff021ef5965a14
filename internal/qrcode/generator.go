// Package qrcode renders card verification links as PNG files.
package qrcode

import (
	"fmt"
	"os"
	"path/filepath"

	qr "github.com/skip2/go-qrcode"
)

// Generator writes QR PNGs into a directory served as static files.
type Generator struct {
	dir string
}

// NewGenerator creates a generator and ensures the directory exists.
func NewGenerator(dir string) (*Generator, error) {
	if dir == "" {
		dir = "public/qrcodes"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create qrcode dir: %w", err)
	}
	return &Generator{dir: dir}, nil
}

// Write renders data into <dir>/<name>.png and returns the file path.
func (g *Generator) Write(data, name string) (string, error) {
	path := filepath.Join(g.dir, name+".png")
	if err := qr.WriteFile(data, qr.Medium, 256, path); err != nil {
		return "", fmt.Errorf("write qrcode %s: %w", name, err)
	}
	return path, nil
}
