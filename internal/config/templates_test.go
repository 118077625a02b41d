package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogYAML = `templates:
  gala:
    path: templates/gala.png
    image_size: {width: 2000, height: 647}
    qr: {size: 350, offset: {x: 100, y: 200}}
  plain:
    path: templates/plain.png
`

func writeCatalog(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTemplateCatalog(t *testing.T) {
	catalog, err := LoadTemplateCatalog(TemplateConfig{Dir: "templates", CatalogFile: writeCatalog(t, catalogYAML)})
	require.NoError(t, err)

	gala, ok := catalog.Resolve("gala")
	require.True(t, ok)
	assert.Equal(t, "templates/gala.png", gala.Path)
	require.NotNil(t, gala.ImageSize)
	assert.Equal(t, 2000, gala.ImageSize.Width)
	require.NotNil(t, gala.QR)
	assert.Equal(t, 350, *gala.QR.Size)
	assert.Equal(t, 200, *gala.QR.Offset.Y)
	assert.Nil(t, gala.QR.Rotation)

	plain, ok := catalog.Resolve("plain")
	require.True(t, ok)
	assert.Nil(t, plain.ImageSize)
}

func TestResolveFallsBackToTemplateDir(t *testing.T) {
	catalog, err := LoadTemplateCatalog(TemplateConfig{Dir: "templates"})
	require.NoError(t, err)

	entry, ok := catalog.Resolve("concert.png")
	require.True(t, ok)
	assert.Equal(t, filepath.Join("templates", "concert.png"), entry.Path)

	for _, id := range []string{"", ".", "..", "../etc/passwd", "sub/dir.png"} {
		_, ok := catalog.Resolve(id)
		assert.False(t, ok, id)
	}
}

func TestLoadTemplateCatalogErrors(t *testing.T) {
	_, err := LoadTemplateCatalog(TemplateConfig{CatalogFile: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)

	_, err = LoadTemplateCatalog(TemplateConfig{CatalogFile: writeCatalog(t, "templates: [")})
	assert.Error(t, err)

	_, err = LoadTemplateCatalog(TemplateConfig{CatalogFile: writeCatalog(t, "templates:\n  broken: {}\n")})
	assert.Error(t, err)
}

func TestNilCatalogResolvesNothing(t *testing.T) {
	var catalog *TemplateCatalog
	_, ok := catalog.Resolve("gala")
	assert.False(t, ok)
}
