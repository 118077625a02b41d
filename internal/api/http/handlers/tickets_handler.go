package handlers

import (
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/qr-ticket-service/internal/api/dto"
	"github.com/spec-kit/qr-ticket-service/internal/domain"
	"github.com/spec-kit/qr-ticket-service/internal/service"
	apperrors "github.com/spec-kit/qr-ticket-service/pkg/util/errorutil"
)

// ArtifactLocator resolves served artifact names to files.
type ArtifactLocator interface {
	ArtifactPath(name string) (string, error)
}

// TicketsHandler accepts ticket jobs and serves ticket reads.
type TicketsHandler struct {
	jobs         *service.JobService
	verification *service.VerificationService
	queries      *service.TicketQueryService
	artifacts    ArtifactLocator
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(jobs *service.JobService, verification *service.VerificationService, queries *service.TicketQueryService, artifacts ArtifactLocator) *TicketsHandler {
	return &TicketsHandler{jobs: jobs, verification: verification, queries: queries, artifacts: artifacts}
}

// Issue POST /tickets.
func (h *TicketsHandler) Issue(c *fiber.Ctx) error {
	var req dto.IssueTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := service.ValidateIssueInput(req.ToInput()); err != nil {
		return err
	}
	return h.enqueue(c, domain.JobTypeIssue, req)
}

// Verify POST /tickets/verify.
func (h *TicketsHandler) Verify(c *fiber.Ctx) error {
	var req dto.VerifyTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	req.TicketNumber = service.NormalizeTicketNumber(req.TicketNumber)
	if req.TicketNumber == "" {
		return apperrors.NewMissingField("ticket_number")
	}
	return h.enqueue(c, domain.JobTypeVerify, req)
}

// Update POST /tickets/update.
func (h *TicketsHandler) Update(c *fiber.Ctx) error {
	var req dto.UpdateTicketRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	req.TicketNumber = service.NormalizeTicketNumber(req.TicketNumber)
	if req.TicketNumber == "" {
		return apperrors.NewMissingField("ticket_number")
	}
	if req.AttendanceData == nil {
		return apperrors.NewMissingField("attendance_data")
	}
	return h.enqueue(c, domain.JobTypeUpdate, req)
}

func (h *TicketsHandler) enqueue(c *fiber.Ctx, jobType domain.JobType, payload any) error {
	job, err := h.jobs.Enqueue(c.UserContext(), jobType, payload)
	if err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(dto.EnqueueResponse{JobID: job.ID, Status: job.Status})
}

// List GET /tickets.
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	query := dto.TicketListQuery{
		Page:    parseInt(c.Query("page"), 1),
		PerPage: parseInt(c.Query("per_page"), 20),
	}
	page, err := h.queries.List(c.UserContext(), query.Page, query.PerPage)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewTicketListResponse(page))
}

// Attendance GET /tickets/:number/attendance.
func (h *TicketsHandler) Attendance(c *fiber.Ctx) error {
	records, err := h.verification.Attendance(c.UserContext(), c.Params("number"))
	if err != nil {
		return err
	}
	items := make([]dto.AttendanceRecordResponse, 0, len(records))
	for _, record := range records {
		items = append(items, dto.NewAttendanceRecordResponse(record))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Artifact GET /tickets/:artifact.
func (h *TicketsHandler) Artifact(c *fiber.Ctx) error {
	name := c.Params("artifact")
	path, err := h.artifacts.ArtifactPath(name)
	if err != nil {
		return apperrors.NewNotFound("artifact", map[string]any{"artifact": name})
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return apperrors.NewNotFound("artifact", map[string]any{"artifact": name})
		}
		return apperrors.NewInternalError(err)
	}
	return c.SendFile(path)
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return def
	}
	return parsed
}
