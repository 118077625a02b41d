package mailer

import (
	"context"
	"testing"

	"github.com/spec-kit/qr-ticket-service/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestValidFormat(t *testing.T) {
	assert.True(t, ValidFormat(""))
	assert.True(t, ValidFormat("plain"))
	assert.True(t, ValidFormat("HTML"))
	assert.False(t, ValidFormat("markdown"))
}

func TestSendRequiresCredentials(t *testing.T) {
	m := New(config.MailConfig{SMTPServer: "smtp.example.com", SMTPPort: 587})
	err := m.Send(context.Background(), Message{Recipient: "a@example.com", Subject: "Ticket"})
	assert.ErrorIs(t, err, ErrMissingCredentials)
}
