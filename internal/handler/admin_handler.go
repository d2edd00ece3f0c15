package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/dbos-admissions-api/internal/dto"
	"github.com/noah-isme/dbos-admissions-api/internal/middleware"
	"github.com/noah-isme/dbos-admissions-api/internal/models"
	appErrors "github.com/noah-isme/dbos-admissions-api/pkg/errors"
	"github.com/noah-isme/dbos-admissions-api/pkg/response"
)

type adminService interface {
	List(ctx context.Context, query models.ApplicationQuery) (*dto.ApplicationListResponse, error)
	Export(ctx context.Context, query models.ApplicationQuery) ([]byte, string, error)
	Detail(ctx context.Context, id string) (*dto.ApplicationDetail, error)
	BeginEdit(ctx context.Context, id string) (*dto.EditDraft, error)
	SaveEdit(ctx context.Context, id string, fields models.ApplicationFields, actor models.AuditActor) (*models.Application, error)
	Approve(ctx context.Context, id string, actor models.AuditActor) (*models.Application, error)
}

// AdminHandler serves the admissions back office.
type AdminHandler struct {
	service adminService
}

// NewAdminHandler constructs an AdminHandler.
func NewAdminHandler(svc adminService) *AdminHandler {
	return &AdminHandler{service: svc}
}

func applicationQuery(c *gin.Context) (models.ApplicationQuery, error) {
	query := models.ApplicationQuery{
		Search:    c.Query("search"),
		SortBy:    models.ApplicationSortField(c.DefaultQuery("sort", string(models.SortByCreatedAt))),
		SortOrder: strings.ToLower(c.DefaultQuery("order", "desc")),
	}
	if query.SortOrder != "asc" && query.SortOrder != "desc" {
		return query, appErrors.Clone(appErrors.ErrValidation, "order must be asc or desc")
	}
	return query, nil
}

// List godoc
// @Summary List applications
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param search query string false "Matches student, father or mother name"
// @Param sort query string false "createdAt or studentName; other values keep fetch order"
// @Param order query string false "asc or desc"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/applications [get]
func (h *AdminHandler) List(c *gin.Context) {
	query, err := applicationQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	res, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res.Items, map[string]interface{}{
		"total":   res.Total,
		"matched": res.Matched,
	})
}

// Export godoc
// @Summary Export applications as CSV
// @Tags Admin
// @Produce text/csv
// @Security BearerAuth
// @Param search query string false "Search text"
// @Success 200 {file} file
// @Router /admin/applications/export [get]
func (h *AdminHandler) Export(c *gin.Context) {
	query, err := applicationQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	data, filename, err := h.service.Export(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, filename, "text/csv; charset=utf-8", data)
}

// Detail godoc
// @Summary Application detail
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /admin/applications/{id} [get]
func (h *AdminHandler) Detail(c *gin.Context) {
	detail, err := h.service.Detail(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail)
}

// BeginEdit godoc
// @Summary Load an application for editing
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /admin/applications/{id}/edit [get]
func (h *AdminHandler) BeginEdit(c *gin.Context) {
	draft, err := h.service.BeginEdit(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, draft)
}

// SaveEdit godoc
// @Summary Save edited application fields
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Param payload body models.ApplicationFields true "Application fields"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /admin/applications/{id} [put]
func (h *AdminHandler) SaveEdit(c *gin.Context) {
	var fields models.ApplicationFields
	if err := c.ShouldBindJSON(&fields); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid application payload"))
		return
	}
	app, err := h.service.SaveEdit(c.Request.Context(), c.Param("id"), fields, middleware.Actor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app)
}

// Approve godoc
// @Summary Approve an application
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Router /admin/applications/{id}/approve [post]
func (h *AdminHandler) Approve(c *gin.Context) {
	app, err := h.service.Approve(c.Request.Context(), c.Param("id"), middleware.Actor(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app)
}
