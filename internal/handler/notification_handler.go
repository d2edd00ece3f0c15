package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/dbos-admissions-api/internal/dto"
	appErrors "github.com/noah-isme/dbos-admissions-api/pkg/errors"
	"github.com/noah-isme/dbos-admissions-api/pkg/response"
)

type confirmationSender interface {
	SendConfirmation(ctx context.Context, req dto.ConfirmationRequest) (*dto.ConfirmationResponse, error)
}

// NotificationHandler relays confirmation mails for the form frontend.
type NotificationHandler struct {
	service confirmationSender
}

// NewNotificationHandler constructs a NotificationHandler.
func NewNotificationHandler(svc confirmationSender) *NotificationHandler {
	return &NotificationHandler{service: svc}
}

// SendConfirmation godoc
// @Summary Send admission confirmation mail
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body dto.ConfirmationRequest true "Recipient and summary"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 500 {object} response.Envelope
// @Router /notifications/confirmation [post]
func (h *NotificationHandler) SendConfirmation(c *gin.Context) {
	var req dto.ConfirmationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "studentEmail and studentName are required"))
		return
	}
	res, err := h.service.SendConfirmation(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res)
}
