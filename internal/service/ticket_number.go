package service

import (
	"context"
	"crypto/rand"
	"math/big"

	"github.com/spec-kit/qr-ticket-service/internal/domain"
	apperrors "github.com/spec-kit/qr-ticket-service/pkg/util/errorutil"
)

// DefaultNumberAttempts caps generation when no limit is configured.
const DefaultNumberAttempts = 100

// ExistsFunc reports whether a ticket number is already taken.
type ExistsFunc func(ctx context.Context, ticketNumber string) (bool, error)

// TicketNumberGenerator draws random ticket numbers until one is free.
// The store's unique index stays the authority; this only makes
// collisions at insert time unlikely.
type TicketNumberGenerator struct {
	exists      ExistsFunc
	maxAttempts int
	random      func() (string, error)
}

// NewTicketNumberGenerator builds a generator checking candidates with exists.
func NewTicketNumberGenerator(exists ExistsFunc, maxAttempts int) *TicketNumberGenerator {
	if maxAttempts <= 0 {
		maxAttempts = DefaultNumberAttempts
	}
	return &TicketNumberGenerator{exists: exists, maxAttempts: maxAttempts, random: RandomTicketNumber}
}

// Generate returns a number not currently in the store. A failed lookup
// is reported as StoreUnavailable without further attempts.
func (g *TicketNumberGenerator) Generate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < g.maxAttempts; attempt++ {
		candidate, err := g.random()
		if err != nil {
			return "", apperrors.NewInternalError(err)
		}
		taken, err := g.exists(ctx, candidate)
		if err != nil {
			return "", storeError(err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", apperrors.NewGenerationExhausted(g.maxAttempts)
}

var alphabetSize = big.NewInt(int64(len(domain.TicketNumberAlphabet)))

// RandomTicketNumber draws 8 uniform characters from A-Z0-9.
func RandomTicketNumber() (string, error) {
	buf := make([]byte, domain.TicketNumberLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", err
		}
		buf[i] = domain.TicketNumberAlphabet[n.Int64()]
	}
	return string(buf), nil
}
