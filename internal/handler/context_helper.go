package handler

import (
	"io"
	"mime/multipart"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/dbos-admissions-api/internal/middleware"
	"github.com/noah-isme/dbos-admissions-api/internal/models"
	appErrors "github.com/noah-isme/dbos-admissions-api/pkg/errors"
)

// maxUploadBytes caps how much of a multipart file is buffered before policy checks run.
const maxUploadBytes = 8 << 20

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	claims, ok := middleware.Claims(c)
	if !ok {
		return nil
	}
	return claims
}

func readFormFile(c *gin.Context, field string) (string, []byte, error) {
	header, err := c.FormFile(field)
	if err != nil {
		return "", nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, field+" file is required")
	}
	data, err := readMultipart(header)
	if err != nil {
		return "", nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to read "+field)
	}
	return header.Filename, data, nil
}

func readMultipart(header *multipart.FileHeader) ([]byte, error) {
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(io.LimitReader(file, maxUploadBytes))
}
