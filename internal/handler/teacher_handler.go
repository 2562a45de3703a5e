package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-classroom-api/internal/dto"
	"github.com/noah-isme/gema-classroom-api/internal/service"
	"github.com/noah-isme/gema-classroom-api/internal/utils"
)

// TeacherHandler serves the review and visibility endpoints of course teachers.
type TeacherHandler struct {
	submissions service.SubmissionService
	visibility  service.VisibilityService
	reviews     service.ReviewService
	activity    service.ActivityFeedService
	logger      zerolog.Logger
}

// NewTeacherHandler constructs the handler.
func NewTeacherHandler(submissions service.SubmissionService, visibility service.VisibilityService, reviews service.ReviewService, activity service.ActivityFeedService, logger zerolog.Logger) *TeacherHandler {
	return &TeacherHandler{
		submissions: submissions,
		visibility:  visibility,
		reviews:     reviews,
		activity:    activity,
		logger:      logger.With().Str("component", "teacher_handler").Logger(),
	}
}

// Register attaches the routes to a group already restricted to teachers.
func (h *TeacherHandler) Register(router fiber.Router) {
	router.Get("/courses/:courseId/submissions", h.listSubmissions)
	router.Get("/courses/:courseId/students/:studentId/visibility", h.getVisibility)
	router.Put("/courses/:courseId/students/:studentId/visibility", h.updateVisibility)
	router.Get("/courses/:courseId/activity", h.listActivity)
	router.Post("/submissions/:id/review", h.review)
	router.Patch("/tasks/:id", h.updateTask)
}

func (h *TeacherHandler) listSubmissions(c *fiber.Ctx) error {
	courseID, err := parseUintParam(c, "courseId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	filter, err := parseSubmissionFilter(c)
	if err != nil {
		return h.handleError(c, err)
	}

	submissions, err := h.submissions.ListForCourse(c.UserContext(), userIDFromContext(c), courseID, filter)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.OK(c, submissions, "submissions retrieved", fiber.Map{"count": len(submissions)})
}

func (h *TeacherHandler) getVisibility(c *fiber.Ctx) error {
	courseID, studentID, err := courseStudentParams(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	state, err := h.visibility.Get(c.UserContext(), userIDFromContext(c), courseID, studentID)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "visibility retrieved", state)
}

func (h *TeacherHandler) updateVisibility(c *fiber.Ctx) error {
	courseID, studentID, err := courseStudentParams(c)
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.VisibilityUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.visibility.Apply(c.UserContext(), userIDFromContext(c), courseID, studentID, payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "visibility updated", result)
}

func (h *TeacherHandler) listActivity(c *fiber.Ctx) error {
	courseID, err := parseUintParam(c, "courseId")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var req dto.ActivityFeedRequest
	if err := c.QueryParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query")
	}

	feed, err := h.activity.List(c.UserContext(), userIDFromContext(c), courseID, req)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.OK(c, feed.Items, "activity retrieved", feed.Pagination)
}

func (h *TeacherHandler) review(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ReviewRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	submission, err := h.reviews.Review(c.UserContext(), id, userIDFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "submission reviewed", submission)
}

func (h *TeacherHandler) updateTask(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.TaskUpdateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	task, err := h.reviews.UpdateTask(c.UserContext(), id, userIDFromContext(c), payload)
	if err != nil {
		return h.handleError(c, err)
	}

	return utils.SendSuccess(c, "task updated", task)
}

func (h *TeacherHandler) handleError(c *fiber.Ctx, err error) error {
	return sendServiceError(c, h.logger, err)
}

func courseStudentParams(c *fiber.Ctx) (uint, uint, error) {
	courseID, err := parseUintParam(c, "courseId")
	if err != nil {
		return 0, 0, err
	}
	studentID, err := parseUintParam(c, "studentId")
	if err != nil {
		return 0, 0, err
	}
	return courseID, studentID, nil
}
