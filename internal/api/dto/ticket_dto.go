package dto

import (
	"strings"
	"time"

	"github.com/spec-kit/qr-ticket-service/internal/domain"
	"github.com/spec-kit/qr-ticket-service/internal/mailer"
	"github.com/spec-kit/qr-ticket-service/internal/service"
)

// IssueTicketRequest payload. It is also the stored payload of issue jobs.
type IssueTicketRequest struct {
	Email       string `json:"email"`
	TemplateURL string `json:"template_url,omitempty"`
	TemplateID  string `json:"template_id,omitempty"`

	// Older clients select the template with a flag and two fields.
	UseImageURL       *bool  `json:"use_image_url,omitempty"`
	TemplateImageURL  string `json:"template_image_url,omitempty"`
	TemplateImagePath string `json:"template_image_path,omitempty"`
	// LegacyTicketDetails is read only when Details is empty.
	LegacyTicketDetails domain.Details `json:"ticket_details,omitempty"`

	ImageSize       *ImageSizeRequest       `json:"image_size,omitempty"`
	QRConfig        *QRConfigRequest        `json:"qr_config,omitempty"`
	Details         domain.Details          `json:"details"`
	SendEmail       bool                    `json:"send_email"`
	EmailSubject    string                  `json:"email_subject,omitempty"`
	EmailBody       string                  `json:"email_body,omitempty"`
	EmailFormat     string                  `json:"email_format,omitempty"`
	MailCredentials *MailCredentialsRequest `json:"mail_credentials,omitempty"`
}

// ImageSizeRequest is a template resize target.
type ImageSizeRequest struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// QRConfigRequest places the QR symbol.
type QRConfigRequest struct {
	Size     *int             `json:"size,omitempty"`
	Offset   *QROffsetRequest `json:"offset,omitempty"`
	Rotation *float64         `json:"rotation,omitempty"`
}

// QROffsetRequest is the margin from the right and bottom edges.
type QROffsetRequest struct {
	X *int `json:"x,omitempty"`
	Y *int `json:"y,omitempty"`
}

// MailCredentialsRequest overrides the configured SMTP account.
type MailCredentialsRequest struct {
	EmailUser     string `json:"email_user,omitempty"`
	EmailPassword string `json:"email_password,omitempty"`
	SenderName    string `json:"sender_name,omitempty"`
}

// ToInput maps the request onto the issuance input, resolving the
// legacy template selector when the current fields are empty.
func (r IssueTicketRequest) ToInput() service.IssueInput {
	in := service.IssueInput{
		Email:       strings.TrimSpace(r.Email),
		TemplateURL: strings.TrimSpace(r.TemplateURL),
		TemplateID:  strings.TrimSpace(r.TemplateID),
		Details:     r.Details,
		SendEmail:   r.SendEmail,
		Subject:     r.EmailSubject,
		Body:        r.EmailBody,
		Format:      r.EmailFormat,
	}
	if r.UseImageURL != nil && in.TemplateURL == "" && in.TemplateID == "" {
		if *r.UseImageURL {
			in.TemplateURL = strings.TrimSpace(r.TemplateImageURL)
		} else {
			in.TemplateID = strings.TrimSpace(r.TemplateImagePath)
		}
	}
	if in.Details.Len() == 0 && r.LegacyTicketDetails.Len() > 0 {
		in.Details = r.LegacyTicketDetails
	}
	if r.ImageSize != nil {
		in.ImageSize = &service.ImageSize{Width: r.ImageSize.Width, Height: r.ImageSize.Height}
	}
	if r.QRConfig != nil {
		in.QR = service.QRInput{Size: r.QRConfig.Size, Rotation: r.QRConfig.Rotation}
		if r.QRConfig.Offset != nil {
			in.QR.Offset = &service.QROffsetInput{X: r.QRConfig.Offset.X, Y: r.QRConfig.Offset.Y}
		}
	}
	if r.MailCredentials != nil {
		in.Credentials = &mailer.Credentials{
			User:       r.MailCredentials.EmailUser,
			Password:   r.MailCredentials.EmailPassword,
			SenderName: r.MailCredentials.SenderName,
		}
	}
	return in
}

// Redacted returns a copy safe to show to pollers.
func (r IssueTicketRequest) Redacted() IssueTicketRequest {
	if r.MailCredentials != nil && r.MailCredentials.EmailPassword != "" {
		creds := *r.MailCredentials
		creds.EmailPassword = redactedValue
		r.MailCredentials = &creds
	}
	return r
}

// VerifyTicketRequest payload. AttendanceData is merged into the details.
type VerifyTicketRequest struct {
	TicketNumber   string          `json:"ticket_number"`
	AttendanceData *domain.Details `json:"attendance_data,omitempty"`
}

// UpdateTicketRequest payload. AttendanceData replaces the details.
type UpdateTicketRequest struct {
	TicketNumber   string          `json:"ticket_number"`
	AttendanceData *domain.Details `json:"attendance_data"`
}

// TicketListQuery captures paging for the ticket list.
type TicketListQuery struct {
	Page    int
	PerPage int
}

// TicketSummary response.
type TicketSummary struct {
	TicketNumber   string             `json:"ticket_number"`
	State          domain.TicketState `json:"state"`
	Verified       bool               `json:"verified"`
	CreatedAt      time.Time          `json:"created_at"`
	AttendanceTime *time.Time         `json:"attendance_time"`
	Details        domain.Details     `json:"details"`
	Artifact       string             `json:"artifact,omitempty"`
}

// TicketListResponse is one page of tickets.
type TicketListResponse struct {
	Data    []TicketSummary `json:"data"`
	Page    int             `json:"page"`
	PerPage int             `json:"per_page"`
	Total   int64           `json:"total"`
}

// AttendanceRecordResponse is one attendance log entry.
type AttendanceRecordResponse struct {
	ID           string                  `json:"id"`
	TicketNumber string                  `json:"ticket_number"`
	VerifiedAt   time.Time               `json:"verified_at"`
	Source       domain.AttendanceSource `json:"source"`
	Details      domain.Details          `json:"details"`
}

// NewTicketListResponse converts one query page.
func NewTicketListResponse(page *service.TicketPage) TicketListResponse {
	items := make([]TicketSummary, 0, len(page.Tickets))
	for _, ticket := range page.Tickets {
		items = append(items, NewTicketSummary(ticket))
	}
	return TicketListResponse{Data: items, Page: page.Page, PerPage: page.PerPage, Total: page.Total}
}

// NewTicketSummary maps a ticket.
func NewTicketSummary(t domain.Ticket) TicketSummary {
	return TicketSummary{
		TicketNumber:   t.TicketNumber,
		State:          t.State(),
		Verified:       t.Verified,
		CreatedAt:      t.CreatedAt,
		AttendanceTime: t.AttendanceTime,
		Details:        t.Details,
		Artifact:       t.Artifact,
	}
}

// NewAttendanceRecordResponse maps an attendance log entry.
func NewAttendanceRecordResponse(r domain.AttendanceRecord) AttendanceRecordResponse {
	return AttendanceRecordResponse{
		ID:           r.ID,
		TicketNumber: r.TicketNumber,
		VerifiedAt:   r.VerifiedAt,
		Source:       r.Source,
		Details:      r.Details,
	}
}
