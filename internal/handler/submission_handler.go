package handler

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-classroom-api/internal/dto"
	"github.com/noah-isme/gema-classroom-api/internal/middleware"
	"github.com/noah-isme/gema-classroom-api/internal/service"
	"github.com/noah-isme/gema-classroom-api/internal/utils"
)

// SubmissionHandler serves the student homework endpoints.
type SubmissionHandler struct {
	service      service.SubmissionService
	maxFileBytes int64
	logger       zerolog.Logger
}

// NewSubmissionHandler builds a submission handler. maxFileBytes caps every uploaded file.
func NewSubmissionHandler(service service.SubmissionService, maxFileBytes int64, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		service:      service,
		maxFileBytes: maxFileBytes,
		logger:       logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register attaches the routes to the versioned API group. submitGuard runs before uploads are parsed.
func (h *SubmissionHandler) Register(router fiber.Router, submitGuard fiber.Handler) {
	student := middleware.AuthOptions{Role: middleware.AuthRoleStudent}
	if submitGuard == nil {
		submitGuard = func(c *fiber.Ctx) error { return c.Next() }
	}

	router.Post("/subchapters/:subchapterId/submissions", middleware.WithAuth(submitGuard, student), h.submit)
	router.Get("/submissions", middleware.WithAuth(h.list, student))
	router.Get("/submissions/:id", middleware.WithAuth(h.get, middleware.AuthOptions{Role: middleware.AuthRoleAny}))
	router.Delete("/submissions/:id", middleware.WithAuth(h.remove, student))
}

func (h *SubmissionHandler) submit(c *fiber.Ctx) error {
	subchapterID, err := parseUintParam(c, "subchapterId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	form, err := c.MultipartForm()
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "multipart form expected")
	}

	req := dto.SubmitRequest{
		StudentID:    userIDFromContext(c),
		SubchapterID: subchapterID,
		Mode:         strings.ToLower(strings.TrimSpace(c.FormValue("mode"))),
	}

	switch req.Mode {
	case dto.UploadModePDF:
		if files := form.File["file"]; len(files) > 0 {
			part, err := readPart(files[0], h.maxFileBytes)
			if err != nil {
				return h.handleError(c, err)
			}
			req.File = &part
		}
	case dto.UploadModeImages:
		for _, header := range form.File["images"] {
			part, err := readPart(header, h.maxFileBytes)
			if err != nil {
				return h.handleError(c, err)
			}
			req.Images = append(req.Images, part)
		}
	}

	submission, err := h.service.Submit(c.UserContext(), req)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission received", submission)
}

func (h *SubmissionHandler) list(c *fiber.Ctx) error {
	filter, err := parseSubmissionFilter(c)
	if err != nil {
		return h.handleError(c, err)
	}

	submissions, err := h.service.ListForStudent(c.UserContext(), userIDFromContext(c), filter)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.OK(c, submissions, "submissions retrieved", fiber.Map{"count": len(submissions)})
}

func (h *SubmissionHandler) get(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	submission, err := h.service.Get(c.UserContext(), id, service.Viewer{
		ID:   userIDFromContext(c),
		Role: userRoleFromContext(c),
	})
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submission retrieved", submission)
}

func (h *SubmissionHandler) remove(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	if err := h.service.Delete(c.UserContext(), id, userIDFromContext(c)); err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submission deleted", nil)
}

func (h *SubmissionHandler) handleError(c *fiber.Ctx, err error) error {
	return sendServiceError(c, h.logger, err)
}

func parseSubmissionFilter(c *fiber.Ctx) (dto.SubmissionListFilter, error) {
	var filter dto.SubmissionListFilter
	if status := strings.ToLower(strings.TrimSpace(c.Query("status"))); status != "" {
		filter.Status = &status
	}

	subchapterID, err := parseQueryUint(c, "subchapter_id")
	if err != nil {
		return filter, fmt.Errorf("%v: %w", err, service.ErrValidation)
	}
	studentID, err := parseQueryUint(c, "student_id")
	if err != nil {
		return filter, fmt.Errorf("%v: %w", err, service.ErrValidation)
	}
	filter.SubchapterID = subchapterID
	filter.StudentID = studentID
	return filter, nil
}
