package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/uni-enroll-api/internal/dto"
	"github.com/noah-isme/uni-enroll-api/internal/middleware"
	"github.com/noah-isme/uni-enroll-api/internal/models"
	appErrors "github.com/noah-isme/uni-enroll-api/pkg/errors"
	"github.com/noah-isme/uni-enroll-api/pkg/response"
)

type enrollmentIntake interface {
	Submit(ctx context.Context, req dto.CreateEnrollmentRequest) (*models.EnrollmentItem, error)
	Get(ctx context.Context, id string) (*models.EnrollmentItem, error)
	ListForStudent(ctx context.Context, studentID string, filter dto.EnrollmentListRequest) ([]models.EnrollmentItem, *models.Pagination, error)
}

// EnrollmentHandler exposes the enrollment intake endpoints.
type EnrollmentHandler struct {
	intake enrollmentIntake
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(intake enrollmentIntake) *EnrollmentHandler {
	return &EnrollmentHandler{intake: intake}
}

// Create godoc
// @Summary Submit an enrollment request
// @Description Accepts the request, stores it as PENDING and queues it for async confirmation
// @Tags Enrollments
// @Accept json
// @Produce json
// @Param payload body dto.CreateEnrollmentRequest true "Enrollment payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /enrollments [post]
func (h *EnrollmentHandler) Create(c *gin.Context) {
	var req dto.CreateEnrollmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if claims := middleware.CurrentUser(c); claims != nil && claims.Role == models.RoleStudent && req.StudentID != claims.UserID {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "students can only enroll themselves"))
		return
	}
	item, err := h.intake.Submit(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, item)
}

// Get godoc
// @Summary Get an enrollment record
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment record ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /enrollments/{id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	item, err := h.intake.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// ListByStudent godoc
// @Summary List a student's enrollment requests
// @Tags Enrollments
// @Produce json
// @Param studentId path string true "Student ID"
// @Param periodId query string false "Filter by period"
// @Param status query string false "Filter by status (PENDING, CONFIRMED, REJECTED)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /students/{studentId}/enrollments [get]
func (h *EnrollmentHandler) ListByStudent(c *gin.Context) {
	var filter dto.EnrollmentListRequest
	filter.PeriodID = c.Query("periodId")
	if raw := strings.ToUpper(strings.TrimSpace(c.Query("status"))); raw != "" {
		status := models.EnrollmentStatus(raw)
		filter.Status = &status
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	items, pagination, err := h.intake.ListForStudent(c.Request.Context(), c.Param("studentId"), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}
