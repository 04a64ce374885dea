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

type catalogService interface {
	ListSections(ctx context.Context, filter models.SectionFilter) ([]models.SectionDetail, *models.Pagination, bool, error)
	ListPeriods(ctx context.Context, filter models.PeriodFilter) ([]models.Period, *models.Pagination, bool, error)
	ActivatePeriod(ctx context.Context, id string) (*models.Period, error)
}

// CatalogHandler serves the read-mostly section and period catalog.
type CatalogHandler struct {
	catalog catalogService
}

// NewCatalogHandler constructs the handler.
func NewCatalogHandler(catalog catalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// Sections godoc
// @Summary List course sections
// @Tags Catalog
// @Produce json
// @Param periodId query string false "Filter by period"
// @Param courseId query string false "Filter by course"
// @Param available query bool false "Only sections with seats left"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /sections [get]
func (h *CatalogHandler) Sections(c *gin.Context) {
	if h.catalog == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	var filter models.SectionFilter
	filter.PeriodID = c.Query("periodId")
	filter.CourseID = c.Query("courseId")
	if avail, err := strconv.ParseBool(c.DefaultQuery("available", "false")); err == nil {
		filter.OnlyAvailable = avail
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	sections, pagination, cacheHit, err := h.catalog.ListSections(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, sections, pagination, middleware.ExtractMeta(c))
}

// Periods godoc
// @Summary List enrollment periods
// @Tags Catalog
// @Produce json
// @Param active query bool false "Filter by active flag"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /periods [get]
func (h *CatalogHandler) Periods(c *gin.Context) {
	if h.catalog == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	var filter models.PeriodFilter
	if raw := strings.TrimSpace(c.Query("active")); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "active must be true or false"))
			return
		}
		filter.IsActive = &active
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	periods, pagination, cacheHit, err := h.catalog.ListPeriods(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	response.JSON(c, http.StatusOK, periods, pagination, middleware.ExtractMeta(c))
}

// ActivatePeriod godoc
// @Summary Activate an enrollment period
// @Description Marks the period active and deactivates all others
// @Tags Catalog
// @Accept json
// @Produce json
// @Param id path string true "Period ID"
// @Param payload body dto.ActivatePeriodRequest true "Activation payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /periods/{id}/activate [put]
func (h *CatalogHandler) ActivatePeriod(c *gin.Context) {
	if h.catalog == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	var req dto.ActivatePeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if !req.IsActive {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "only activation is supported"))
		return
	}
	period, err := h.catalog.ActivatePeriod(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, period, nil)
}
