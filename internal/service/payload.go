package service

import (
	"strings"

	"github.com/spec-kit/qr-ticket-service/internal/config"
	"github.com/spec-kit/qr-ticket-service/internal/domain"
	"github.com/spec-kit/qr-ticket-service/internal/imaging"
)

// QR placement defaults.
const (
	DefaultQRSize    = 150
	DefaultQROffsetX = 50
	DefaultQROffsetY = 120
)

// BuildQRPayload renders details as "KEY: value" lines in insertion order.
func BuildQRPayload(details domain.Details) string {
	lines := make([]string, 0, details.Len())
	details.Range(func(key string, value any) bool {
		lines = append(lines, strings.ToUpper(key)+": "+domain.FormatValue(value))
		return true
	})
	return strings.Join(lines, "\n")
}

// QROffsetInput is a partially specified margin from the right and bottom edges.
type QROffsetInput struct {
	X *int
	Y *int
}

// QRInput is a partially specified QR placement.
type QRInput struct {
	Size     *int
	Offset   *QROffsetInput
	Rotation *float64
}

// QRSettings is a fully resolved QR placement.
type QRSettings struct {
	Size     int
	OffsetX  int
	OffsetY  int
	Rotation float64
}

// ResolveQRSettings applies layers over the defaults, later layers winning.
// An offset object replaces the previous offset as a whole; its missing
// coordinates fall back to the defaults rather than to earlier layers.
func ResolveQRSettings(layers ...QRInput) QRSettings {
	out := QRSettings{Size: DefaultQRSize, OffsetX: DefaultQROffsetX, OffsetY: DefaultQROffsetY}
	for _, layer := range layers {
		if layer.Size != nil {
			out.Size = *layer.Size
		}
		if layer.Rotation != nil {
			out.Rotation = *layer.Rotation
		}
		if layer.Offset != nil {
			out.OffsetX, out.OffsetY = DefaultQROffsetX, DefaultQROffsetY
			if layer.Offset.X != nil {
				out.OffsetX = *layer.Offset.X
			}
			if layer.Offset.Y != nil {
				out.OffsetY = *layer.Offset.Y
			}
		}
	}
	return out
}

func qrInputFromCatalog(spec *config.TemplateQRConfig) QRInput {
	if spec == nil {
		return QRInput{}
	}
	in := QRInput{Size: spec.Size, Rotation: spec.Rotation}
	if spec.Offset != nil {
		in.Offset = &QROffsetInput{X: spec.Offset.X, Y: spec.Offset.Y}
	}
	return in
}

// ArtifactName builds "{event}_{roll_no}_{ticket_number}" from details.
func ArtifactName(details domain.Details, ticketNumber string) string {
	event := lookupFold(details, "event", "EVENT")
	roll := lookupFold(details, "roll_no", "UNKNOWN")
	return imaging.SanitizeName(event + "_" + roll + "_" + ticketNumber)
}

func lookupFold(details domain.Details, key, fallback string) string {
	found := fallback
	details.Range(func(k string, v any) bool {
		if strings.EqualFold(k, key) {
			if s := strings.TrimSpace(domain.FormatValue(v)); s != "" {
				found = s
			}
			return false
		}
		return true
	})
	return found
}
