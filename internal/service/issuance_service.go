package service

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/qr-ticket-service/internal/config"
	"github.com/spec-kit/qr-ticket-service/internal/domain"
	"github.com/spec-kit/qr-ticket-service/internal/events"
	"github.com/spec-kit/qr-ticket-service/internal/imaging"
	"github.com/spec-kit/qr-ticket-service/internal/mailer"
	"github.com/spec-kit/qr-ticket-service/internal/observability"
	"github.com/spec-kit/qr-ticket-service/internal/repository"
	apperrors "github.com/spec-kit/qr-ticket-service/pkg/util/errorutil"
)

const (
	// EmailNotSent is the status reported when no email was attempted.
	EmailNotSent = "Not sent"

	defaultSenderName   = "Admin"
	defaultEmailSubject = "Your ticket"
	defaultEmailBody    = "Please find your ticket attached."

	// maxInsertAttempts bounds re-rendering after a number collision at insert.
	maxInsertAttempts = 3
)

// ImageSize is a resize target in pixels.
type ImageSize struct {
	Width  int
	Height int
}

// IssueInput describes a ticket issuance request.
type IssueInput struct {
	Email       string
	TemplateURL string
	TemplateID  string
	ImageSize   *ImageSize
	QR          QRInput
	Details     domain.Details
	SendEmail   bool
	Subject     string
	Body        string
	Format      string
	Credentials *mailer.Credentials
}

// IssuedTicket is the outcome of a successful issuance.
type IssuedTicket struct {
	TicketNumber string         `json:"ticket_number"`
	Email        string         `json:"email"`
	EmailStatus  string         `json:"email_status"`
	EmailSent    bool           `json:"email_sent"`
	QRData       domain.Details `json:"qr_data"`
	Artifact     string         `json:"artifact"`
	TicketURL    string         `json:"ticket_url"`
}

// IssuanceService renders, stores and optionally mails tickets.
type IssuanceService struct {
	tickets       repository.TicketRepository
	numbers       *TicketNumberGenerator
	imaging       Imaging
	qr            QREncoder
	mailer        Mailer
	catalog       *config.TemplateCatalog
	dispatcher    events.Dispatcher
	metrics       *observability.Metrics
	logger        *zap.Logger
	mailDefaults  mailer.Credentials
	fetchTimeout  time.Duration
	mailTimeout   time.Duration
	publicBaseURL string
}

// IssuanceDependencies bundles collaborators for the issuance service.
type IssuanceDependencies struct {
	TicketRepo    repository.TicketRepository
	Imaging       Imaging
	QR            QREncoder
	Mailer        Mailer
	Catalog       *config.TemplateCatalog
	Dispatcher    events.Dispatcher
	Metrics       *observability.Metrics
	Logger        *zap.Logger
	MailDefaults  mailer.Credentials
	FetchTimeout  time.Duration
	MailTimeout   time.Duration
	PublicBaseURL string
	MaxAttempts   int
}

// NewIssuanceService constructs the service.
func NewIssuanceService(deps IssuanceDependencies) *IssuanceService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IssuanceService{
		tickets:       deps.TicketRepo,
		numbers:       NewTicketNumberGenerator(deps.TicketRepo.Exists, deps.MaxAttempts),
		imaging:       deps.Imaging,
		qr:            deps.QR,
		mailer:        deps.Mailer,
		catalog:       deps.Catalog,
		dispatcher:    deps.Dispatcher,
		metrics:       deps.Metrics,
		logger:        logger,
		mailDefaults:  deps.MailDefaults,
		fetchTimeout:  deps.FetchTimeout,
		mailTimeout:   deps.MailTimeout,
		publicBaseURL: strings.TrimRight(deps.PublicBaseURL, "/"),
	}
}

// ValidateIssueInput runs the checks that need no collaborators. It is
// used both at enqueue time and again inside the job.
func ValidateIssueInput(in IssueInput) error {
	if strings.TrimSpace(in.Email) == "" {
		return apperrors.NewMissingField("email")
	}
	hasURL := strings.TrimSpace(in.TemplateURL) != ""
	hasID := strings.TrimSpace(in.TemplateID) != ""
	switch {
	case !hasURL && !hasID:
		return apperrors.NewValidationError("one of template_url or template_id is required",
			map[string]any{"field": "template_url"})
	case hasURL && hasID:
		return apperrors.NewValidationError("template_url and template_id are mutually exclusive",
			map[string]any{"field": "template_id"})
	}
	if in.ImageSize != nil && (in.ImageSize.Width <= 0 || in.ImageSize.Height <= 0) {
		return apperrors.NewValidationError("image_size width and height must be positive",
			map[string]any{"field": "image_size"})
	}
	if in.QR.Size != nil && *in.QR.Size <= 0 {
		return apperrors.NewValidationError("qr size must be positive", map[string]any{"field": "qr_config.size"})
	}
	if !mailer.ValidFormat(in.Format) {
		return apperrors.NewValidationError("email format must be plain or html", map[string]any{"field": "email_format"})
	}
	for _, key := range in.Details.Keys() {
		if strings.EqualFold(key, domain.TicketNumberKey) {
			return apperrors.NewValidationError("details may not set "+domain.TicketNumberKey,
				map[string]any{"field": "details." + key})
		}
	}
	return nil
}

// Issue renders a uniquely numbered ticket, stores it and optionally
// emails it. Nothing is stored unless the artifact was written; mail
// failures only change EmailStatus.
func (s *IssuanceService) Issue(ctx context.Context, in IssueInput) (*IssuedTicket, error) {
	if err := ValidateIssueInput(in); err != nil {
		return nil, err
	}

	template, entry, err := s.acquireTemplate(ctx, in)
	if err != nil {
		return nil, err
	}
	size := in.ImageSize
	if size == nil && entry.ImageSize != nil {
		size = &ImageSize{Width: entry.ImageSize.Width, Height: entry.ImageSize.Height}
	}
	if size != nil && size.Width > 0 && size.Height > 0 {
		template = s.imaging.Resize(template, size.Width, size.Height)
	}
	qr := ResolveQRSettings(qrInputFromCatalog(entry.QR), in.QR)

	var (
		ticket *domain.Ticket
		ref    imaging.ArtifactRef
	)
	for attempt := 1; ; attempt++ {
		var number string
		ticket, ref, number, err = s.render(ctx, template, in.Details, qr)
		switch {
		case errors.Is(err, imaging.ErrArtifactExists):
			// The file belongs to an already issued ticket and is left alone.
			s.logger.Warn("ticket artifact already exists",
				zap.String("ticket_number", number),
				zap.Int("attempt", attempt))
		case err != nil:
			return nil, err
		default:
			if err = s.tickets.Insert(ctx, ticket); err != nil {
				s.discardArtifact(ref)
				if !errors.Is(err, repository.ErrDuplicateTicket) {
					return nil, storeError(err)
				}
				s.logger.Warn("ticket number collided at insert",
					zap.String("ticket_number", number),
					zap.Int("attempt", attempt))
			}
		}
		if err == nil {
			break
		}
		if attempt >= maxInsertAttempts {
			return nil, apperrors.NewDuplicateTicket(number)
		}
	}

	status, sent := s.sendTicket(ctx, in, ref)
	s.logger.Info("ticket issued",
		zap.String("ticket_number", ticket.TicketNumber),
		zap.String("artifact", ref.Name),
		zap.Bool("email_sent", sent))

	publishEvent(ctx, s.dispatcher, events.Event{
		Type:         events.EventTicketIssued,
		TicketNumber: ticket.TicketNumber,
		Payload:      events.TicketIssuedPayload{Artifact: ref.Name, EmailSent: sent},
	})

	return &IssuedTicket{
		TicketNumber: ticket.TicketNumber,
		Email:        in.Email,
		EmailStatus:  status,
		EmailSent:    sent,
		QRData:       ticket.Details.Lower(),
		Artifact:     ref.Name,
		TicketURL:    s.publicBaseURL + "/tickets/" + url.PathEscape(ref.Name),
	}, nil
}

// render draws a ticket under a fresh number and saves its artifact.
// Save never replaces an existing file, so a number already on disk comes
// back as imaging.ErrArtifactExists together with that number.
func (s *IssuanceService) render(ctx context.Context, template image.Image, details domain.Details, qr QRSettings) (*domain.Ticket, imaging.ArtifactRef, string, error) {
	number, err := s.numbers.Generate(ctx)
	if err != nil {
		return nil, imaging.ArtifactRef{}, "", err
	}
	full := details.Clone()
	full.Set(domain.TicketNumberKey, number)

	symbol, err := s.qr.Encode(BuildQRPayload(full), qr.Size, qr.Rotation)
	if err != nil {
		return nil, imaging.ArtifactRef{}, number, apperrors.NewInternalError(err)
	}
	pos := imaging.BottomRight(template.Bounds(), symbol.Bounds(), qr.OffsetX, qr.OffsetY)
	composite := s.imaging.CompositeAt(template, symbol, pos)

	ref, err := s.imaging.Save(composite, ArtifactName(full, number))
	if errors.Is(err, imaging.ErrArtifactExists) {
		return nil, imaging.ArtifactRef{}, number, err
	}
	if err != nil {
		return nil, imaging.ArtifactRef{}, number, apperrors.NewInternalError(err)
	}
	return &domain.Ticket{TicketNumber: number, Details: full, Artifact: ref.Name}, ref, number, nil
}

func (s *IssuanceService) discardArtifact(ref imaging.ArtifactRef) {
	if err := s.imaging.Remove(ref); err != nil {
		s.logger.Warn("remove orphaned artifact", zap.String("artifact", ref.Name), zap.Error(err))
	}
}

func (s *IssuanceService) acquireTemplate(ctx context.Context, in IssueInput) (image.Image, config.TemplateEntry, error) {
	if in.TemplateURL != "" {
		fetchCtx, cancel := withTimeout(ctx, s.fetchTimeout)
		defer cancel()
		img, err := s.imaging.Fetch(fetchCtx, in.TemplateURL)
		if err != nil {
			var fetchErr *imaging.FetchError
			callerCaused := errors.As(err, &fetchErr) && fetchErr.CallerCaused
			return nil, config.TemplateEntry{}, apperrors.NewTemplateUnavailable(in.TemplateURL, callerCaused, err)
		}
		return img, config.TemplateEntry{}, nil
	}

	entry, ok := s.catalog.Resolve(in.TemplateID)
	if !ok {
		return nil, config.TemplateEntry{}, apperrors.NewTemplateUnavailable(in.TemplateID, true,
			fmt.Errorf("unknown template %q", in.TemplateID))
	}
	img, err := s.imaging.Load(ctx, entry.Path)
	if err != nil {
		callerCaused := errors.Is(err, fs.ErrNotExist) || errors.Is(err, image.ErrFormat)
		return nil, config.TemplateEntry{}, apperrors.NewTemplateUnavailable(in.TemplateID, callerCaused, err)
	}
	return img, entry, nil
}

func (s *IssuanceService) sendTicket(ctx context.Context, in IssueInput, ref imaging.ArtifactRef) (string, bool) {
	if !in.SendEmail || s.mailer == nil {
		return EmailNotSent, false
	}
	creds := s.credentialsFor(in)
	if creds.User == "" || creds.Password == "" {
		return EmailNotSent, false
	}

	msg := mailer.Message{
		Recipient:      in.Email,
		Subject:        firstNonEmpty(in.Subject, defaultEmailSubject),
		Body:           firstNonEmpty(in.Body, defaultEmailBody),
		Format:         firstNonEmpty(strings.ToLower(in.Format), mailer.FormatPlain),
		AttachmentPath: ref.Path,
		Credentials:    creds,
	}
	sendCtx, cancel := withTimeout(ctx, s.mailTimeout)
	defer cancel()
	if err := s.mailer.Send(sendCtx, msg); err != nil {
		s.logger.Warn("ticket email failed",
			zap.String("code", apperrors.CodeMailFailure),
			zap.String("recipient", in.Email),
			zap.Error(err))
		s.recordEmail(false)
		return fmt.Sprintf("Failed to send email to %s: %v", in.Email, err), false
	}
	s.recordEmail(true)
	return fmt.Sprintf("Email sent to %s with attachment %s", in.Email, ref.Path), true
}

// credentialsFor prefers a request account over the configured one. A
// request user and password travel together.
func (s *IssuanceService) credentialsFor(in IssueInput) mailer.Credentials {
	creds := s.mailDefaults
	if in.Credentials != nil {
		if in.Credentials.User != "" || in.Credentials.Password != "" {
			creds.User = in.Credentials.User
			creds.Password = in.Credentials.Password
		}
		if in.Credentials.SenderName != "" {
			creds.SenderName = in.Credentials.SenderName
		}
	}
	if creds.SenderName == "" {
		creds.SenderName = defaultSenderName
	}
	return creds
}

func (s *IssuanceService) recordEmail(sent bool) {
	if s.metrics != nil {
		s.metrics.RecordEmail(sent)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
