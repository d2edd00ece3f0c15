package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/dbos-admissions-api/internal/admission"
	"github.com/noah-isme/dbos-admissions-api/internal/dto"
	appErrors "github.com/noah-isme/dbos-admissions-api/pkg/errors"
	"github.com/noah-isme/dbos-admissions-api/pkg/response"
)

type intakeService interface {
	StartSession(ctx context.Context) (*dto.SessionView, error)
	GetSession(ctx context.Context, sessionID string) (*dto.SessionView, error)
	UpdateFields(ctx context.Context, sessionID string, req dto.UpdateFieldsRequest) (*dto.UpdateFieldsResponse, error)
	ToggleSubject(ctx context.Context, sessionID string, req dto.ToggleSubjectRequest) (*dto.ToggleSubjectResponse, error)
	SetDeclarations(ctx context.Context, sessionID string, req dto.SetDeclarationsRequest) (*dto.SessionView, error)
	ChoosePhoto(ctx context.Context, sessionID, fileName string, data []byte) (*dto.SessionView, error)
	SubmitStage1(ctx context.Context, sessionID string) (*dto.SubmitResponse, error)
	UploadDocument(ctx context.Context, sessionID string, req dto.UploadDocumentRequest, fileName string, data []byte) (*dto.DocumentUploadResponse, error)
	Checklist(ctx context.Context, sessionID string) (*admission.Checklist, error)
	Finish(ctx context.Context, sessionID string) (*dto.SessionView, error)
	Reset(ctx context.Context, sessionID string) (*dto.SessionView, error)
	Catalog(level string) ([]admission.LevelCatalog, error)
}

// IntakeHandler exposes the applicant facing admission form.
type IntakeHandler struct {
	service intakeService
}

// NewIntakeHandler constructs an IntakeHandler.
func NewIntakeHandler(svc intakeService) *IntakeHandler {
	return &IntakeHandler{service: svc}
}

// Start godoc
// @Summary Start an admission form
// @Tags Intake
// @Produce json
// @Success 201 {object} response.Envelope
// @Router /intake/sessions [post]
func (h *IntakeHandler) Start(c *gin.Context) {
	view, err := h.service.StartSession(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, view)
}

// Get godoc
// @Summary Get an admission form
// @Tags Intake
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /intake/sessions/{id} [get]
func (h *IntakeHandler) Get(c *gin.Context) {
	view, err := h.service.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view)
}

// UpdateFields godoc
// @Summary Update form fields
// @Description Applies every field or none of them.
// @Tags Intake
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.UpdateFieldsRequest true "Field values"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /intake/sessions/{id}/fields [patch]
func (h *IntakeHandler) UpdateFields(c *gin.Context) {
	var req dto.UpdateFieldsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid fields payload"))
		return
	}
	res, err := h.service.UpdateFields(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res)
}

// ToggleSubject godoc
// @Summary Select or deselect a subject
// @Tags Intake
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.ToggleSubjectRequest true "Subject"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /intake/sessions/{id}/subjects [post]
func (h *IntakeHandler) ToggleSubject(c *gin.Context) {
	var req dto.ToggleSubjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid subject payload"))
		return
	}
	res, err := h.service.ToggleSubject(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res)
}

// SetDeclarations godoc
// @Summary Set the six declaration checkboxes
// @Tags Intake
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param payload body dto.SetDeclarationsRequest true "Declarations"
// @Success 200 {object} response.Envelope
// @Router /intake/sessions/{id}/declarations [put]
func (h *IntakeHandler) SetDeclarations(c *gin.Context) {
	var req dto.SetDeclarationsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid declarations payload"))
		return
	}
	view, err := h.service.SetDeclarations(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view)
}

// ChoosePhoto godoc
// @Summary Choose the passport photo
// @Tags Intake
// @Accept mpfd
// @Produce json
// @Param id path string true "Session ID"
// @Param file formData file true "JPG or PNG photo"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /intake/sessions/{id}/photo [put]
func (h *IntakeHandler) ChoosePhoto(c *gin.Context) {
	name, data, err := readFormFile(c, "file")
	if err != nil {
		response.Error(c, err)
		return
	}
	view, err := h.service.ChoosePhoto(c.Request.Context(), c.Param("id"), name, data)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view)
}

// Submit godoc
// @Summary Submit the form (stage one)
// @Tags Intake
// @Produce json
// @Param id path string true "Session ID"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /intake/sessions/{id}/submit [post]
func (h *IntakeHandler) Submit(c *gin.Context) {
	res, err := h.service.SubmitStage1(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// UploadDocument godoc
// @Summary Upload a supporting document
// @Tags Intake
// @Accept mpfd
// @Produce json
// @Param id path string true "Session ID"
// @Param file formData file true "PDF or image"
// @Param title formData string false "Document title"
// @Param type formData string false "Document type tag"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /intake/sessions/{id}/documents [post]
func (h *IntakeHandler) UploadDocument(c *gin.Context) {
	var req dto.UploadDocumentRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid document payload"))
		return
	}
	name, data, err := readFormFile(c, "file")
	if err != nil {
		response.Error(c, err)
		return
	}
	res, err := h.service.UploadDocument(c.Request.Context(), c.Param("id"), req, name, data)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, res)
}

// Checklist godoc
// @Summary Document checklist and progress
// @Tags Intake
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /intake/sessions/{id}/checklist [get]
func (h *IntakeHandler) Checklist(c *gin.Context) {
	list, err := h.service.Checklist(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, list)
}

// Finish godoc
// @Summary Complete the application
// @Tags Intake
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /intake/sessions/{id}/finish [post]
func (h *IntakeHandler) Finish(c *gin.Context) {
	view, err := h.service.Finish(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view)
}

// Reset godoc
// @Summary Clear the form
// @Tags Intake
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /intake/sessions/{id}/reset [post]
func (h *IntakeHandler) Reset(c *gin.Context) {
	view, err := h.service.Reset(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, view)
}

// Catalog godoc
// @Summary Subject catalog and selection limits
// @Tags Intake
// @Produce json
// @Param level query string false "Admission level"
// @Success 200 {object} response.Envelope
// @Router /intake/catalog [get]
func (h *IntakeHandler) Catalog(c *gin.Context) {
	catalog, err := h.service.Catalog(c.Query("level"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, catalog)
}
