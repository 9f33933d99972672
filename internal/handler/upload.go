package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/giftreel/api/internal/middleware"
	"github.com/giftreel/api/internal/service"
	"github.com/giftreel/api/pkg/response"
)

const maxUploadSize = 200 * 1024 * 1024 // 200MB

type UploadHandler struct {
	service *service.UploadService
}

func NewUploadHandler(svc *service.UploadService) *UploadHandler {
	return &UploadHandler{service: svc}
}

// Video handles POST /api/upload/video
func (h *UploadHandler) Video(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}

	if file.Size > maxUploadSize {
		return response.ValidationError(c, "File size exceeds 200MB limit", map[string]interface{}{
			"maxSize":  maxUploadSize,
			"fileSize": file.Size,
		})
	}

	src, err := file.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to read uploaded file")
	}
	defer src.Close()

	result, err := h.service.UploadVideo(c.Context(), middleware.GetUserID(c), src, file.Size)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Created(c, result)
}

// DeleteVideo handles DELETE /api/upload/video
func (h *UploadHandler) DeleteVideo(c *fiber.Ctx) error {
	key := c.Query("path")
	if key == "" {
		return response.ValidationError(c, "path is required", nil)
	}

	if err := h.service.DeleteVideo(c.Context(), key); err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.NoContent(c)
}
