package imaging

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBottomRightPlacement(t *testing.T) {
	base := image.Rect(0, 0, 2000, 647)
	overlay := image.Rect(0, 0, 350, 350)
	assert.Equal(t, image.Pt(1550, 97), BottomRight(base, overlay, 100, 200))
}

func TestCompositeLandsAtOffset(t *testing.T) {
	img := &Imaging{artifactDir: t.TempDir()}
	base := imaging.New(2000, 647, color.White)
	overlay := imaging.New(350, 350, color.Black)

	pos := BottomRight(base.Bounds(), overlay.Bounds(), 100, 200)
	out := img.CompositeAt(base, overlay, pos)

	assert.Equal(t, base.Bounds(), out.Bounds())
	assertGray(t, out, 1550, 97, 0)
	assertGray(t, out, 1899, 446, 0)
	assertGray(t, out, 1549, 97, 255)
	assertGray(t, out, 1900, 446, 255)
}

func assertGray(t *testing.T, img image.Image, x, y int, want uint8) {
	t.Helper()
	r, _, _, _ := img.At(x, y).RGBA()
	assert.Equal(t, want, uint8(r>>8), "pixel (%d,%d)", x, y)
}

func TestQREncoderSizeAndRotation(t *testing.T) {
	enc := NewQREncoder()

	img, err := enc.Encode("NAME: Alice\nTICKET_NUMBER: AB12CD34", 150, 0)
	require.NoError(t, err)
	assert.Equal(t, 150, img.Bounds().Dx())
	assert.Equal(t, 150, img.Bounds().Dy())

	rotated, err := enc.Encode("NAME: Alice", 150, 45)
	require.NoError(t, err)
	assert.Greater(t, rotated.Bounds().Dx(), 150, "rotation must expand the bounding box")

	_, err = enc.Encode("x", 0, 0)
	assert.Error(t, err)
}

func TestSaveRemoveAndPurge(t *testing.T) {
	dir := t.TempDir()
	img := &Imaging{artifactDir: dir}

	ref, err := img.Save(imaging.New(10, 10, color.White), "Gala 2025/../x_ROLL1_AB12CD34")
	require.NoError(t, err)
	assert.Equal(t, "Gala_2025_.._x_ROLL1_AB12CD34.png", ref.Name)
	assert.Equal(t, filepath.Join(dir, ref.Name), ref.Path)
	_, err = os.Stat(ref.Path)
	require.NoError(t, err)

	_, err = img.Save(imaging.New(10, 10, color.White), "other")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.txt"), []byte("x"), 0o644))

	require.NoError(t, img.Remove(ref))
	require.NoError(t, img.Remove(ref), "removing twice is not an error")

	removed, err := img.Purge()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	_, err = os.Stat(filepath.Join(dir, "keep.txt"))
	assert.NoError(t, err)
}

func TestSaveNeverOverwritesExistingArtifact(t *testing.T) {
	dir := t.TempDir()
	img := &Imaging{artifactDir: dir}

	first, err := img.Save(imaging.New(10, 10, color.White), "Gala_R1_AB12CD34")
	require.NoError(t, err)
	before, err := os.ReadFile(first.Path)
	require.NoError(t, err)

	_, err = img.Save(imaging.New(20, 20, color.Black), "Gala_R1_AB12CD34")
	require.ErrorIs(t, err, ErrArtifactExists)

	after, err := os.ReadFile(first.Path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestArtifactPathRejectsTraversal(t *testing.T) {
	img := &Imaging{artifactDir: "/srv/artifacts"}

	path, err := img.ArtifactPath("Gala_R1_AB12CD34.png")
	require.NoError(t, err)
	assert.Equal(t, "/srv/artifacts/Gala_R1_AB12CD34.png", path)

	for _, bad := range []string{"", "../etc/passwd", "a/b.png", ".env"} {
		_, err := img.ArtifactPath(bad)
		assert.ErrorIs(t, err, ErrInvalidArtifactName, bad)
	}
}

func TestFetchRejectsNonHTTPURL(t *testing.T) {
	img, err := New(t.TempDir(), 0)
	require.NoError(t, err)

	_, err = img.Fetch(t.Context(), "file:///etc/passwd")
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.True(t, fetchErr.CallerCaused)
}
