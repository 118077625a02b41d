package dto

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/qr-ticket-service/internal/domain"
)

func TestToInputLegacySelector(t *testing.T) {
	useURL := true
	req := IssueTicketRequest{
		Email:            " guest@example.com ",
		UseImageURL:      &useURL,
		TemplateImageURL: "https://cdn.example.com/t.png",
	}
	in := req.ToInput()
	assert.Equal(t, "guest@example.com", in.Email)
	assert.Equal(t, "https://cdn.example.com/t.png", in.TemplateURL)
	assert.Empty(t, in.TemplateID)

	useURL = false
	req.TemplateImagePath = "gala.png"
	in = req.ToInput()
	assert.Empty(t, in.TemplateURL)
	assert.Equal(t, "gala.png", in.TemplateID)

	var legacy IssueTicketRequest
	require.NoError(t, json.Unmarshal([]byte(`{
		"email": "guest@example.com",
		"use_image_url": true,
		"template_image_url": "https://cdn.example.com/t.png",
		"ticket_details": {"Name": "Guest", "event": "Gala", "roll_no": "R7"}
	}`), &legacy))
	in = legacy.ToInput()
	assert.Equal(t, "https://cdn.example.com/t.png", in.TemplateURL)
	assert.Equal(t, []string{"Name", "event", "roll_no"}, in.Details.Keys())
	assert.Equal(t, "R7", in.Details.GetString("roll_no", ""))

	legacy.Details = domain.NewDetails("Name", "Current")
	in = legacy.ToInput()
	assert.Equal(t, []string{"Name"}, in.Details.Keys(), "details wins over ticket_details")
}

func TestToInputCurrentFieldsWin(t *testing.T) {
	useURL := true
	req := IssueTicketRequest{
		TemplateID:       "gala",
		UseImageURL:      &useURL,
		TemplateImageURL: "https://cdn.example.com/t.png",
	}
	in := req.ToInput()
	assert.Equal(t, "gala", in.TemplateID)
	assert.Empty(t, in.TemplateURL)
}

func TestToInputQRAndCredentials(t *testing.T) {
	size, x := 200, 40
	req := IssueTicketRequest{
		ImageSize: &ImageSizeRequest{Width: 800, Height: 300},
		QRConfig:  &QRConfigRequest{Size: &size, Offset: &QROffsetRequest{X: &x}},
		MailCredentials: &MailCredentialsRequest{
			EmailUser: "box@example.com", EmailPassword: "pw",
		},
	}
	in := req.ToInput()
	require.NotNil(t, in.ImageSize)
	assert.Equal(t, 800, in.ImageSize.Width)
	assert.Equal(t, 200, *in.QR.Size)
	require.NotNil(t, in.QR.Offset)
	assert.Equal(t, 40, *in.QR.Offset.X)
	assert.Nil(t, in.QR.Offset.Y)
	require.NotNil(t, in.Credentials)
	assert.Equal(t, "pw", in.Credentials.Password)
}

func TestNewJobResponseRedactsPassword(t *testing.T) {
	req := IssueTicketRequest{
		Email:           "guest@example.com",
		TemplateID:      "gala",
		MailCredentials: &MailCredentialsRequest{EmailUser: "box@example.com", EmailPassword: "s3cret"},
	}
	payload, err := json.Marshal(req)
	require.NoError(t, err)

	resp := NewJobResponse(&domain.Job{ID: "j1", Type: domain.JobTypeIssue, Status: domain.JobStatusQueued, Payload: payload})
	assert.NotContains(t, string(resp.Payload), "s3cret")
	assert.Contains(t, string(resp.Payload), redactedValue)

	// the stored request keeps the real value for the worker
	assert.Equal(t, "s3cret", req.MailCredentials.EmailPassword)
}

func TestNewJobResponseLeavesOtherJobsAlone(t *testing.T) {
	payload := json.RawMessage(`{"ticket_number":"AB12CD34"}`)
	resp := NewJobResponse(&domain.Job{ID: "j2", Type: domain.JobTypeVerify, Payload: payload})
	assert.JSONEq(t, string(payload), string(resp.Payload))
}
