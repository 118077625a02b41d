package service

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync"

	"github.com/disintegration/imaging"

	ticketimaging "github.com/spec-kit/qr-ticket-service/internal/imaging"
	"github.com/spec-kit/qr-ticket-service/internal/mailer"
)

type fakeImaging struct {
	mu       sync.Mutex
	template image.Image
	fetchErr error
	loadErr  error
	saveErr  error
	saved    map[string]image.Image
	removed  []string
	fetched  []string
	loaded   []string
	lastPos  image.Point
}

func newFakeImaging(w, h int) *fakeImaging {
	return &fakeImaging{template: imaging.New(w, h, color.White), saved: map[string]image.Image{}}
}

func (f *fakeImaging) Fetch(_ context.Context, url string) (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, url)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.template, nil
}

func (f *fakeImaging) Load(_ context.Context, path string) (image.Image, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaded = append(f.loaded, path)
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.template, nil
}

func (f *fakeImaging) Resize(img image.Image, width, height int) image.Image {
	return imaging.Resize(img, width, height, imaging.NearestNeighbor)
}

func (f *fakeImaging) CompositeAt(base, overlay image.Image, pos image.Point) image.Image {
	f.mu.Lock()
	f.lastPos = pos
	f.mu.Unlock()
	return imaging.Paste(base, overlay, pos)
}

func (f *fakeImaging) Save(img image.Image, name string) (ticketimaging.ArtifactRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return ticketimaging.ArtifactRef{}, f.saveErr
	}
	file := name + ticketimaging.ArtifactExt
	if _, ok := f.saved[file]; ok {
		return ticketimaging.ArtifactRef{}, ticketimaging.ErrArtifactExists
	}
	f.saved[file] = img
	return ticketimaging.ArtifactRef{Name: file, Path: "/artifacts/" + file}, nil
}

func (f *fakeImaging) Remove(ref ticketimaging.ArtifactRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.saved, ref.Name)
	f.removed = append(f.removed, ref.Name)
	return nil
}

func (f *fakeImaging) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

type fakeQR struct {
	mu       sync.Mutex
	payloads []string
}

func (q *fakeQR) Encode(text string, size int, _ float64) (image.Image, error) {
	q.mu.Lock()
	q.payloads = append(q.payloads, text)
	q.mu.Unlock()
	return imaging.New(size, size, color.Black), nil
}

type fakeMailer struct {
	mu   sync.Mutex
	err  error
	sent []mailer.Message
}

func (m *fakeMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

var errBoom = errors.New("boom")
