package service

import (
	"context"
	"image"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/qr-ticket-service/internal/config"
	"github.com/spec-kit/qr-ticket-service/internal/domain"
	"github.com/spec-kit/qr-ticket-service/internal/events"
	ticketimaging "github.com/spec-kit/qr-ticket-service/internal/imaging"
	"github.com/spec-kit/qr-ticket-service/internal/mailer"
	"github.com/spec-kit/qr-ticket-service/internal/repository"
	apperrors "github.com/spec-kit/qr-ticket-service/pkg/util/errorutil"
)

type issuanceFixture struct {
	svc     *IssuanceService
	tickets *repository.MemoryTicketRepository
	img     *fakeImaging
	qr      *fakeQR
	mail    *fakeMailer
	events  []events.Event
}

func newIssuanceFixture(t *testing.T, catalog *config.TemplateCatalog) *issuanceFixture {
	t.Helper()
	f := &issuanceFixture{
		tickets: repository.NewMemoryTicketRepository(),
		img:     newFakeImaging(2000, 647),
		qr:      &fakeQR{},
		mail:    &fakeMailer{},
	}
	dispatcher := events.NewInMemoryDispatcher(nil)
	var mu sync.Mutex
	dispatcher.Subscribe(events.EventTicketIssued, func(_ context.Context, e events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		f.events = append(f.events, e)
		return nil
	})
	f.svc = NewIssuanceService(IssuanceDependencies{
		TicketRepo:    f.tickets,
		Imaging:       f.img,
		QR:            f.qr,
		Mailer:        f.mail,
		Catalog:       catalog,
		Dispatcher:    dispatcher,
		MailDefaults:  mailer.Credentials{User: "tickets@example.com", Password: "app-pass"},
		PublicBaseURL: "https://tickets.example.com/",
	})
	return f
}

func baseInput() IssueInput {
	return IssueInput{
		Email:       "alice@example.com",
		TemplateURL: "https://cdn.example.com/gala.png",
		Details:     domain.NewDetails("Name", "Alice", "event", "Gala", "roll_no", "R1"),
	}
}

func TestIssueHappyPath(t *testing.T) {
	f := newIssuanceFixture(t, nil)
	in := baseInput()
	in.QR = QRInput{Size: intPtr(350), Offset: &QROffsetInput{X: intPtr(100), Y: intPtr(200)}}
	in.SendEmail = true

	out, err := f.svc.Issue(context.Background(), in)
	require.NoError(t, err)

	assert.True(t, domain.IsValidTicketNumber(out.TicketNumber))
	assert.Equal(t, image.Pt(1550, 97), f.img.lastPos)
	assert.Equal(t, "Gala_R1_"+out.TicketNumber+".png", out.Artifact)
	assert.Equal(t, "https://tickets.example.com/tickets/"+out.Artifact, out.TicketURL)
	assert.Equal(t, []string{"name", "event", "roll_no", "ticket_number"}, out.QRData.Keys())
	assert.True(t, out.EmailSent)
	assert.Equal(t, "Email sent to alice@example.com with attachment /artifacts/"+out.Artifact, out.EmailStatus)

	require.Len(t, f.qr.payloads, 1)
	assert.Equal(t, "NAME: Alice\nEVENT: Gala\nROLL_NO: R1\nTICKET_NUMBER: "+out.TicketNumber, f.qr.payloads[0])

	stored, err := f.tickets.FindByNumber(context.Background(), out.TicketNumber)
	require.NoError(t, err)
	assert.False(t, stored.Verified)
	assert.Equal(t, "Alice", stored.Details.GetString("Name", ""))

	require.Len(t, f.mail.sent, 1)
	sent := f.mail.sent[0]
	assert.Equal(t, "Admin", sent.Credentials.SenderName)
	assert.Equal(t, mailer.FormatPlain, sent.Format)
	assert.Equal(t, "/artifacts/"+out.Artifact, sent.AttachmentPath)

	require.Len(t, f.events, 1)
	assert.Equal(t, out.TicketNumber, f.events[0].TicketNumber)
}

func TestIssueMailFailureDoesNotFailIssuance(t *testing.T) {
	f := newIssuanceFixture(t, nil)
	f.mail.err = errBoom
	in := baseInput()
	in.SendEmail = true

	out, err := f.svc.Issue(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, out.EmailSent)
	assert.Equal(t, "Failed to send email to alice@example.com: boom", out.EmailStatus)

	exists, err := f.tickets.Exists(context.Background(), out.TicketNumber)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestIssueWithoutEmailRequest(t *testing.T) {
	f := newIssuanceFixture(t, nil)
	out, err := f.svc.Issue(context.Background(), baseInput())
	require.NoError(t, err)
	assert.Equal(t, EmailNotSent, out.EmailStatus)
	assert.Empty(t, f.mail.sent)
}

func TestIssueRequestCredentialsOverrideDefaults(t *testing.T) {
	f := newIssuanceFixture(t, nil)
	in := baseInput()
	in.SendEmail = true
	in.Format = "HTML"
	in.Credentials = &mailer.Credentials{User: "club@example.com", Password: "pw", SenderName: "Club"}

	_, err := f.svc.Issue(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, f.mail.sent, 1)
	assert.Equal(t, mailer.Credentials{User: "club@example.com", Password: "pw", SenderName: "Club"}, f.mail.sent[0].Credentials)
	assert.Equal(t, mailer.FormatHTML, f.mail.sent[0].Format)
}

func TestValidateIssueInput(t *testing.T) {
	cases := []struct {
		name  string
		edit  func(*IssueInput)
		field string
	}{
		{"missing email", func(in *IssueInput) { in.Email = " " }, "email"},
		{"no template", func(in *IssueInput) { in.TemplateURL = "" }, "template_url"},
		{"both templates", func(in *IssueInput) { in.TemplateID = "gala" }, "template_id"},
		{"bad size", func(in *IssueInput) { in.ImageSize = &ImageSize{Width: 0, Height: 10} }, "image_size"},
		{"bad format", func(in *IssueInput) { in.Format = "rtf" }, "email_format"},
		{"reserved key", func(in *IssueInput) { in.Details.Set("Ticket_Number", "X") }, "details.Ticket_Number"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := baseInput()
			tc.edit(&in)
			err := ValidateIssueInput(in)
			domainErr := apperrors.ToDomainError(err)
			require.NotNil(t, domainErr)
			assert.Equal(t, apperrors.CodeValidation, domainErr.Code)
			assert.Equal(t, tc.field, domainErr.Details["field"])
		})
	}
}

func TestIssueTemplateUnavailable(t *testing.T) {
	f := newIssuanceFixture(t, nil)
	f.img.fetchErr = &ticketimaging.FetchError{URL: "x", StatusCode: 404, CallerCaused: true}

	_, err := f.svc.Issue(context.Background(), baseInput())
	domainErr := apperrors.ToDomainError(err)
	assert.Equal(t, apperrors.CodeTemplateUnavailable, domainErr.Code)
	assert.Equal(t, http.StatusBadRequest, domainErr.HTTPStatus)

	f.img.fetchErr = &ticketimaging.FetchError{URL: "x", Err: errBoom}
	_, err = f.svc.Issue(context.Background(), baseInput())
	assert.Equal(t, http.StatusBadGateway, apperrors.ToDomainError(err).HTTPStatus)

	_, total, err := f.tickets.List(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestIssueFromCatalogUsesTemplateDefaults(t *testing.T) {
	dir := t.TempDir()
	catalogFile := filepath.Join(dir, "templates.yaml")
	require.NoError(t, os.WriteFile(catalogFile, []byte(strings.TrimSpace(`
templates:
  gala:
    path: /srv/templates/gala.png
    image_size: {width: 1000, height: 400}
    qr: {size: 200, offset: {x: 10, y: 20}}
`)), 0o644))
	catalog, err := config.LoadTemplateCatalog(config.TemplateConfig{Dir: dir, CatalogFile: catalogFile})
	require.NoError(t, err)

	f := newIssuanceFixture(t, catalog)
	in := baseInput()
	in.TemplateURL = ""
	in.TemplateID = "gala"

	out, err := f.svc.Issue(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, []string{"/srv/templates/gala.png"}, f.img.loaded)
	assert.Equal(t, image.Pt(1000-200-10, 400-200-20), f.img.lastPos)
	assert.Equal(t, 1000, f.img.saved[out.Artifact].Bounds().Dx())

	in.TemplateID = "missing/../x"
	_, err = f.svc.Issue(context.Background(), in)
	domainErr := apperrors.ToDomainError(err)
	assert.Equal(t, apperrors.CodeTemplateUnavailable, domainErr.Code)
	assert.Equal(t, http.StatusBadRequest, domainErr.HTTPStatus)
}

func TestIssueSaveFailureLeavesNoRecord(t *testing.T) {
	f := newIssuanceFixture(t, nil)
	f.img.saveErr = errBoom

	_, err := f.svc.Issue(context.Background(), baseInput())
	require.Error(t, err)
	_, total, err := f.tickets.List(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
}

// collidingRepo rejects the first n inserts as duplicates.
type collidingRepo struct {
	*repository.MemoryTicketRepository
	mu        sync.Mutex
	remaining int
}

func (r *collidingRepo) Insert(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	if r.remaining > 0 {
		r.remaining--
		r.mu.Unlock()
		return repository.ErrDuplicateTicket
	}
	r.mu.Unlock()
	return r.MemoryTicketRepository.Insert(ctx, ticket)
}

func TestIssueRetriesInsertCollision(t *testing.T) {
	f := newIssuanceFixture(t, nil)
	repo := &collidingRepo{MemoryTicketRepository: f.tickets, remaining: 2}
	f.svc.tickets = repo

	out, err := f.svc.Issue(context.Background(), baseInput())
	require.NoError(t, err)
	assert.Len(t, f.img.removed, 2, "orphaned artifacts are removed")
	assert.Equal(t, 1, f.img.savedCount())
	assert.Contains(t, f.img.saved, out.Artifact)

	repo.remaining = maxInsertAttempts
	_, err = f.svc.Issue(context.Background(), baseInput())
	assert.True(t, apperrors.HasCode(err, apperrors.CodeDuplicateTicket))
}

// repeatLastSequence returns the given numbers in order, repeating the last one.
func repeatLastSequence(numbers ...string) func() (string, error) {
	var mu sync.Mutex
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		next := numbers[0]
		if len(numbers) > 1 {
			numbers = numbers[1:]
		}
		return next, nil
	}
}

func TestIssueLeavesExistingArtifactAlone(t *testing.T) {
	f := newIssuanceFixture(t, nil)
	existing := baseInput().Details.Clone()
	existing.Set(domain.TicketNumberKey, "AAAA1111")
	file := ArtifactName(existing, "AAAA1111") + ticketimaging.ArtifactExt
	original := f.img.template
	f.img.saved[file] = original

	f.svc.numbers.random = repeatLastSequence("AAAA1111", "BBBB2222")
	out, err := f.svc.Issue(context.Background(), baseInput())
	require.NoError(t, err)
	assert.Equal(t, "BBBB2222", out.TicketNumber)
	assert.Same(t, original, f.img.saved[file])
	assert.Empty(t, f.img.removed)
	assert.Equal(t, 2, f.img.savedCount())

	f.svc.numbers.random = repeatLastSequence("AAAA1111")
	_, err = f.svc.Issue(context.Background(), baseInput())
	assert.True(t, apperrors.HasCode(err, apperrors.CodeDuplicateTicket))
	assert.Same(t, original, f.img.saved[file])
	assert.Empty(t, f.img.removed)
}

func TestConcurrentIssuanceYieldsDistinctNumbers(t *testing.T) {
	f := newIssuanceFixture(t, nil)
	const n = 50

	var wg sync.WaitGroup
	numbers := make(chan string, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.svc.Issue(context.Background(), baseInput())
			if err != nil {
				errs <- err
				return
			}
			numbers <- out.TicketNumber
		}()
	}
	wg.Wait()
	close(numbers)
	close(errs)

	for err := range errs {
		t.Fatalf("unexpected issuance error: %v", err)
	}
	seen := map[string]struct{}{}
	for number := range numbers {
		seen[number] = struct{}{}
	}
	assert.Len(t, seen, n)
}
