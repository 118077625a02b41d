package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/qr-ticket-service/internal/api/dto"
	"github.com/spec-kit/qr-ticket-service/internal/service"
)

// JobsHandler serves job polling.
type JobsHandler struct {
	jobs *service.JobService
}

// NewJobsHandler constructs handler.
func NewJobsHandler(jobs *service.JobService) *JobsHandler {
	return &JobsHandler{jobs: jobs}
}

// Get GET /jobs/:id.
func (h *JobsHandler) Get(c *fiber.Ctx) error {
	job, err := h.jobs.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(dto.NewJobResponse(job))
}
