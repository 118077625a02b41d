package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// TemplateCatalog maps local template identifiers to files on disk.
//
// Example TEMPLATES_FILE:
//
//	templates:
//	  gala:
//	    path: templates/gala.png
//	    image_size: {width: 2000, height: 647}
//	    qr: {size: 350, offset: {x: 100, y: 200}}
type TemplateCatalog struct {
	Templates map[string]TemplateEntry `yaml:"templates"`

	dir string
}

// TemplateEntry describes one local template and its optional defaults.
type TemplateEntry struct {
	Path      string            `yaml:"path"`
	ImageSize *TemplateSize     `yaml:"image_size,omitempty"`
	QR        *TemplateQRConfig `yaml:"qr,omitempty"`
}

// TemplateSize is a width/height pair in pixels.
type TemplateSize struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// TemplateQRConfig carries default QR placement for a template.
type TemplateQRConfig struct {
	Size     *int              `yaml:"size,omitempty"`
	Offset   *TemplateQROffset `yaml:"offset,omitempty"`
	Rotation *float64          `yaml:"rotation,omitempty"`
}

// TemplateQROffset is the margin from the right and bottom edges.
type TemplateQROffset struct {
	X *int `yaml:"x,omitempty"`
	Y *int `yaml:"y,omitempty"`
}

// LoadTemplateCatalog reads the YAML catalog at cfg.CatalogFile. An empty
// path yields an empty catalog rooted at cfg.Dir.
func LoadTemplateCatalog(cfg TemplateConfig) (*TemplateCatalog, error) {
	catalog := &TemplateCatalog{Templates: map[string]TemplateEntry{}, dir: cfg.Dir}
	if cfg.CatalogFile == "" {
		return catalog, nil
	}

	content, err := os.ReadFile(cfg.CatalogFile)
	if err != nil {
		return nil, fmt.Errorf("read template catalog: %w", err)
	}
	if err := yaml.Unmarshal(content, catalog); err != nil {
		return nil, fmt.Errorf("parse template catalog %s: %w", cfg.CatalogFile, err)
	}
	if catalog.Templates == nil {
		catalog.Templates = map[string]TemplateEntry{}
	}
	for id, entry := range catalog.Templates {
		if strings.TrimSpace(entry.Path) == "" {
			return nil, fmt.Errorf("template %q has no path", id)
		}
	}
	return catalog, nil
}

// Resolve returns the catalog entry for id. Ids not in the catalog resolve
// to a file of that name inside the template directory; path separators in
// such ids are rejected.
func (c *TemplateCatalog) Resolve(id string) (TemplateEntry, bool) {
	if c == nil {
		return TemplateEntry{}, false
	}
	if entry, ok := c.Templates[id]; ok {
		return entry, true
	}
	if id == "" || id != filepath.Base(id) || id == "." || id == ".." {
		return TemplateEntry{}, false
	}
	return TemplateEntry{Path: filepath.Join(c.dir, id)}, true
}
