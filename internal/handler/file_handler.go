package handler

import (
	"errors"
	"net/http"
	"os"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/dbos-admissions-api/pkg/errors"
	"github.com/noah-isme/dbos-admissions-api/pkg/response"
	"github.com/noah-isme/dbos-admissions-api/pkg/storage"
)

type signedFileStore interface {
	Verify(token string) (string, storage.URLMode, error)
	Open(fileID string) (*os.File, error)
}

// FileHandler serves objects kept by the local storage driver.
type FileHandler struct {
	store signedFileStore
}

// NewFileHandler constructs a FileHandler.
func NewFileHandler(store signedFileStore) *FileHandler {
	return &FileHandler{store: store}
}

// Serve godoc
// @Summary Fetch a stored file
// @Description Preview tokens render inline, view tokens download as an attachment.
// @Tags Files
// @Param token query string true "Signed token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /files [get]
func (h *FileHandler) Serve(c *gin.Context) {
	fileID, mode, err := h.store.Verify(c.Query("token"))
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid or expired file link"))
		return
	}

	file, err := h.store.Open(fileID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, storage.ErrInvalidFileID) {
			response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "file not found"))
			return
		}
		response.Error(c, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to open file"))
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to read file"))
		return
	}
	kind, err := mimetype.DetectReader(file)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to read file"))
		return
	}
	if _, err := file.Seek(0, 0); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, "failed to read file"))
		return
	}

	disposition := "inline"
	if mode == storage.ModeView {
		disposition = "attachment"
	}
	c.Header("Content-Disposition", disposition+"; filename=\""+info.Name()+"\"")
	c.Header("Cache-Control", "private, max-age=300")
	c.DataFromReader(http.StatusOK, info.Size(), kind.String(), file, nil)
}
