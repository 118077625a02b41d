package imaging

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	qrcode "github.com/skip2/go-qrcode"
)

// QREncoder renders text as a QR symbol.
type QREncoder struct {
	Level qrcode.RecoveryLevel
}

// NewQREncoder uses the lowest error-correction level, leaving the most
// room for multi-line payloads.
func NewQREncoder() QREncoder {
	return QREncoder{Level: qrcode.Low}
}

// Encode renders text at exactly size x size pixels with a quiet-zone
// border, then rotates it counter-clockwise by rotation degrees. Rotation
// grows the bounding box instead of clipping; exposed corners are white.
func (e QREncoder) Encode(text string, size int, rotation float64) (image.Image, error) {
	if size <= 0 {
		return nil, fmt.Errorf("qr size must be positive, got %d", size)
	}
	code, err := qrcode.New(text, e.Level)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	code.DisableBorder = false

	var img image.Image = imaging.Resize(code.Image(size), size, size, imaging.NearestNeighbor)
	if rotation != 0 {
		img = imaging.Rotate(img, rotation, color.White)
	}
	return img, nil
}
