package service

import (
	"context"
	"errors"
	"image"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/qr-ticket-service/internal/events"
	"github.com/spec-kit/qr-ticket-service/internal/imaging"
	"github.com/spec-kit/qr-ticket-service/internal/mailer"
	apperrors "github.com/spec-kit/qr-ticket-service/pkg/util/errorutil"
)

// Imaging acquires templates and stores composited artifacts.
type Imaging interface {
	Fetch(ctx context.Context, url string) (image.Image, error)
	Load(ctx context.Context, path string) (image.Image, error)
	Resize(img image.Image, width, height int) image.Image
	CompositeAt(base, overlay image.Image, pos image.Point) image.Image
	Save(img image.Image, name string) (imaging.ArtifactRef, error)
	Remove(ref imaging.ArtifactRef) error
}

// QREncoder renders a payload into a QR symbol.
type QREncoder interface {
	Encode(text string, size int, rotation float64) (image.Image, error)
}

// Mailer delivers one message.
type Mailer interface {
	Send(ctx context.Context, msg mailer.Message) error
}

// storeError wraps repository failures that are not already domain errors.
func storeError(err error) error {
	if err == nil {
		return nil
	}
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	return apperrors.NewStoreUnavailable(err)
}

func publishEvent(ctx context.Context, dispatcher events.Dispatcher, event events.Event) {
	if dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	_ = dispatcher.Publish(ctx, event)
}
