package handler

import (
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/giftreel/api/internal/middleware"
	"github.com/giftreel/api/internal/model"
	"github.com/giftreel/api/internal/poller"
	"github.com/giftreel/api/internal/service"
	"github.com/giftreel/api/internal/store"
	"github.com/giftreel/api/pkg/response"
)

// Long-poll bounds for the wait endpoint
const (
	maxWaitTimeout     = 60 * time.Second
	defaultWaitTimeout = 30 * time.Second
	waitInterval       = time.Second
)

type CompositeHandler struct {
	service   *service.CompositeService
	poller    *poller.Poller
	validator *validator.Validate
}

func NewCompositeHandler(svc *service.CompositeService, p *poller.Poller, v *validator.Validate) *CompositeHandler {
	return &CompositeHandler{
		service:   svc,
		poller:    p,
		validator: v,
	}
}

// Start handles POST /api/compose/start
func (h *CompositeHandler) Start(c *fiber.Ctx) error {
	var req model.CompositeStartRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.StartComposite(c.Context(), &req, middleware.GetUserID(c))
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Status handles GET /api/compose/status/:jobId
func (h *CompositeHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetStatus(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Result handles GET /api/compose/result/:jobId
func (h *CompositeHandler) Result(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	result, err := h.service.GetResult(c.Context(), jobID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		if err.Error() == "job not completed" {
			return response.JobFailed(c, "Job has not completed yet")
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// Wait handles GET /api/compose/wait/:jobId — long-polls the job until it
// reaches a terminal state or the bounded timeout elapses. A timeout is not
// a failure: the job may still be processing.
func (h *CompositeHandler) Wait(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	timeout := defaultWaitTimeout
	if s := c.QueryInt("timeoutSeconds"); s > 0 {
		timeout = time.Duration(s) * time.Second
		if timeout > maxWaitTimeout {
			timeout = maxWaitTimeout
		}
	}

	result, err := h.poller.Watch(c.Context(), jobID, poller.WatchOptions{
		Timeout:  timeout,
		Interval: waitInterval,
	})
	if err != nil {
		if errors.Is(err, poller.ErrWatchTimeout) {
			return response.OK(c, fiber.Map{
				"jobId":      jobID,
				"processing": true,
			})
		}
		return response.ServiceError(c, err.Error())
	}

	return response.OK(c, result)
}

// formatValidationErrors formats validator errors for response
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
