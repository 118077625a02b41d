// Package imaging fetches and loads ticket templates, composites QR
// symbols onto them and stores the resulting artifacts on disk.
package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/imroc/req/v3"
)

// ArtifactExt is the file extension of generated tickets.
const ArtifactExt = ".png"

var (
	// ErrInvalidArtifactName is returned for names that would escape the artifact directory.
	ErrInvalidArtifactName = errors.New("invalid artifact name")
	// ErrArtifactExists is returned by Save when the file already belongs to another ticket.
	ErrArtifactExists = errors.New("artifact already exists")
)

// FetchError describes a failed template download. CallerCaused is true
// when the URL itself is at fault (malformed, non-http, 4xx, undecodable).
type FetchError struct {
	URL          string
	StatusCode   int
	CallerCaused bool
	Err          error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch template %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch template %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ArtifactRef points at a saved ticket image.
type ArtifactRef struct {
	Name string
	Path string
}

// Imaging implements template acquisition and artifact storage.
type Imaging struct {
	client      *req.Client
	artifactDir string
}

// New prepares the artifact directory and an HTTP client for template downloads.
func New(artifactDir string, fetchTimeout time.Duration) (*Imaging, error) {
	if err := os.MkdirAll(artifactDir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	client := req.C().
		SetUserAgent("qr-ticket-service").
		SetCommonRetryCount(2).
		SetCommonRetryFixedInterval(time.Second)
	if fetchTimeout > 0 {
		client.SetTimeout(fetchTimeout)
	}
	return &Imaging{client: client, artifactDir: artifactDir}, nil
}

// Fetch downloads and decodes a template image.
func (i *Imaging) Fetch(ctx context.Context, rawURL string) (image.Image, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		if err == nil {
			err = errors.New("url must be absolute http(s)")
		}
		return nil, &FetchError{URL: rawURL, CallerCaused: true, Err: err}
	}

	resp, err := i.client.R().SetContext(ctx).Get(rawURL)
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	if resp.StatusCode >= 400 {
		return nil, &FetchError{URL: rawURL, StatusCode: resp.StatusCode, CallerCaused: resp.StatusCode < 500}
	}
	body, err := resp.ToBytes()
	if err != nil {
		return nil, &FetchError{URL: rawURL, Err: err}
	}
	img, err := imaging.Decode(bytes.NewReader(body), imaging.AutoOrientation(true))
	if err != nil {
		return nil, &FetchError{URL: rawURL, CallerCaused: true, Err: err}
	}
	return img, nil
}

// Load reads a template from the local filesystem.
func (i *Imaging) Load(_ context.Context, path string) (image.Image, error) {
	return imaging.Open(path, imaging.AutoOrientation(true))
}

// Resize scales img to exactly width x height.
func (i *Imaging) Resize(img image.Image, width, height int) image.Image {
	return imaging.Resize(img, width, height, imaging.Lanczos)
}

// CompositeAt pastes overlay onto a copy of base with its top-left corner at pos.
func (i *Imaging) CompositeAt(base, overlay image.Image, pos image.Point) image.Image {
	return imaging.Paste(base, overlay, pos)
}

// Save writes img as a PNG named after name.
func (i *Imaging) Save(img image.Image, name string) (ArtifactRef, error) {
	fileName := SanitizeName(name) + ArtifactExt
	path := filepath.Join(i.artifactDir, fileName)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return ArtifactRef{}, fmt.Errorf("save artifact %s: %w", fileName, ErrArtifactExists)
	}
	if err != nil {
		return ArtifactRef{}, fmt.Errorf("save artifact %s: %w", fileName, err)
	}
	if err := errors.Join(imaging.Encode(f, img, imaging.PNG), f.Close()); err != nil {
		_ = os.Remove(path)
		return ArtifactRef{}, fmt.Errorf("save artifact %s: %w", fileName, err)
	}
	return ArtifactRef{Name: fileName, Path: path}, nil
}

// Remove deletes a previously saved artifact.
func (i *Imaging) Remove(ref ArtifactRef) error {
	if err := os.Remove(ref.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// ArtifactPath resolves a served file name to its path on disk.
func (i *Imaging) ArtifactPath(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", ErrInvalidArtifactName
	}
	return filepath.Join(i.artifactDir, name), nil
}

// Purge deletes every generated artifact. It must not run while
// issuance jobs are in flight.
func (i *Imaging) Purge() (int, error) {
	entries, err := os.ReadDir(i.artifactDir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ArtifactExt {
			continue
		}
		if err := os.Remove(filepath.Join(i.artifactDir, entry.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// BottomRight returns where an overlay of size overlay lands on base when
// anchored to the bottom-right corner with offsetX/offsetY margins from
// the right and bottom edges.
func BottomRight(base, overlay image.Rectangle, offsetX, offsetY int) image.Point {
	return image.Pt(
		base.Min.X+base.Dx()-overlay.Dx()-offsetX,
		base.Min.Y+base.Dy()-overlay.Dy()-offsetY,
	)
}

// SanitizeName maps anything outside [A-Za-z0-9._-] to '_' so user
// supplied details cannot introduce path separators.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "ticket"
	}
	return out
}
