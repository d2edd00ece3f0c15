package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dbos-admissions-api/internal/admission"
	"github.com/noah-isme/dbos-admissions-api/internal/dto"
	appErrors "github.com/noah-isme/dbos-admissions-api/pkg/errors"
)

type intakeServiceMock struct {
	view       *dto.SessionView
	err        error
	gotFields  dto.UpdateFieldsRequest
	gotUpload  dto.UploadDocumentRequest
	gotName    string
	gotData    []byte
	gotLevel   string
	gotSession string
}

func (m *intakeServiceMock) session() dto.SessionView {
	if m.view == nil {
		return dto.SessionView{}
	}
	return *m.view
}

func (m *intakeServiceMock) StartSession(ctx context.Context) (*dto.SessionView, error) {
	return m.view, m.err
}

func (m *intakeServiceMock) GetSession(ctx context.Context, sessionID string) (*dto.SessionView, error) {
	m.gotSession = sessionID
	return m.view, m.err
}

func (m *intakeServiceMock) UpdateFields(ctx context.Context, sessionID string, req dto.UpdateFieldsRequest) (*dto.UpdateFieldsResponse, error) {
	m.gotSession = sessionID
	m.gotFields = req
	if m.err != nil {
		return nil, m.err
	}
	return &dto.UpdateFieldsResponse{Session: m.session()}, nil
}

func (m *intakeServiceMock) ToggleSubject(ctx context.Context, sessionID string, req dto.ToggleSubjectRequest) (*dto.ToggleSubjectResponse, error) {
	return &dto.ToggleSubjectResponse{Selected: true, Session: m.session()}, m.err
}

func (m *intakeServiceMock) SetDeclarations(ctx context.Context, sessionID string, req dto.SetDeclarationsRequest) (*dto.SessionView, error) {
	return m.view, m.err
}

func (m *intakeServiceMock) ChoosePhoto(ctx context.Context, sessionID, fileName string, data []byte) (*dto.SessionView, error) {
	m.gotName = fileName
	m.gotData = data
	return m.view, m.err
}

func (m *intakeServiceMock) SubmitStage1(ctx context.Context, sessionID string) (*dto.SubmitResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &dto.SubmitResponse{ApplicationID: "app-1", Session: m.session()}, nil
}

func (m *intakeServiceMock) UploadDocument(ctx context.Context, sessionID string, req dto.UploadDocumentRequest, fileName string, data []byte) (*dto.DocumentUploadResponse, error) {
	m.gotUpload = req
	m.gotName = fileName
	m.gotData = data
	if m.err != nil {
		return nil, m.err
	}
	return &dto.DocumentUploadResponse{}, nil
}

func (m *intakeServiceMock) Checklist(ctx context.Context, sessionID string) (*admission.Checklist, error) {
	return &admission.Checklist{}, m.err
}

func (m *intakeServiceMock) Finish(ctx context.Context, sessionID string) (*dto.SessionView, error) {
	return m.view, m.err
}

func (m *intakeServiceMock) Reset(ctx context.Context, sessionID string) (*dto.SessionView, error) {
	return m.view, m.err
}

func (m *intakeServiceMock) Catalog(level string) ([]admission.LevelCatalog, error) {
	m.gotLevel = level
	return nil, m.err
}

func newTestContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func newMultipartContext(t *testing.T, path string, fields map[string]string, fileName string, data []byte) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for key, value := range fields {
		require.NoError(t, writer.WriteField(key, value))
	}
	if fileName != "" {
		part, err := writer.CreateFormFile("file", fileName)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	c.Request = req
	return c, w
}

func TestIntakeHandlerStart(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &intakeServiceMock{view: &dto.SessionView{SessionID: "s-1", State: "EDITING"}}
	handler := NewIntakeHandler(svc)

	c, w := newTestContext(http.MethodPost, "/intake/sessions", nil)
	handler.Start(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"sessionId":"s-1"`)
}

func TestIntakeHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewIntakeHandler(&intakeServiceMock{err: appErrors.Clone(appErrors.ErrNotFound, "form session not found")})

	c, w := newTestContext(http.MethodGet, "/intake/sessions/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	handler.Get(c)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestIntakeHandlerUpdateFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &intakeServiceMock{view: &dto.SessionView{SessionID: "s-1"}}
	handler := NewIntakeHandler(svc)

	payload, _ := json.Marshal(dto.UpdateFieldsRequest{Fields: map[string]string{"studentName": "Asha"}})
	c, w := newTestContext(http.MethodPatch, "/intake/sessions/s-1/fields", payload)
	c.Params = gin.Params{{Key: "id", Value: "s-1"}}
	handler.UpdateFields(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "s-1", svc.gotSession)
	assert.Equal(t, "Asha", svc.gotFields.Fields["studentName"])
}

func TestIntakeHandlerUpdateFieldsRejectsBadJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewIntakeHandler(&intakeServiceMock{})

	c, w := newTestContext(http.MethodPatch, "/intake/sessions/s-1/fields", []byte("{"))
	handler.UpdateFields(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIntakeHandlerSubmitMapsStorageError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewIntakeHandler(&intakeServiceMock{err: appErrors.Clone(appErrors.ErrStorage, "failed to store photo")})

	c, w := newTestContext(http.MethodPost, "/intake/sessions/s-1/submit", nil)
	handler.Submit(c)

	require.Equal(t, http.StatusBadGateway, w.Code)
}

func TestIntakeHandlerSubmitCreated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewIntakeHandler(&intakeServiceMock{view: &dto.SessionView{SessionID: "s-1"}})

	c, w := newTestContext(http.MethodPost, "/intake/sessions/s-1/submit", nil)
	handler.Submit(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"applicationId":"app-1"`)
}

func TestIntakeHandlerUploadDocument(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &intakeServiceMock{}
	handler := NewIntakeHandler(svc)

	c, w := newMultipartContext(t, "/intake/sessions/s-1/documents", map[string]string{"title": "Aadhar Card front", "type": "aadhaar"}, "aadhar.pdf", []byte("%PDF-1.4"))
	c.Params = gin.Params{{Key: "id", Value: "s-1"}}
	handler.UploadDocument(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Aadhar Card front", svc.gotUpload.Title)
	assert.Equal(t, "aadhaar", svc.gotUpload.Type)
	assert.Equal(t, "aadhar.pdf", svc.gotName)
	assert.Equal(t, []byte("%PDF-1.4"), svc.gotData)
}

func TestIntakeHandlerUploadDocumentMissingApplicant(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewIntakeHandler(&intakeServiceMock{err: appErrors.Clone(appErrors.ErrMissingApplicant, "")})

	c, w := newMultipartContext(t, "/intake/sessions/s-1/documents", nil, "doc.pdf", []byte("%PDF-1.4"))
	handler.UploadDocument(c)

	require.Equal(t, http.StatusConflict, w.Code)
}

func TestIntakeHandlerChoosePhotoRequiresFile(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewIntakeHandler(&intakeServiceMock{})

	c, w := newMultipartContext(t, "/intake/sessions/s-1/photo", map[string]string{"note": "x"}, "", nil)
	handler.ChoosePhoto(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIntakeHandlerCatalogPassesLevel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &intakeServiceMock{}
	handler := NewIntakeHandler(svc)

	c, w := newTestContext(http.MethodGet, "/intake/catalog?level=12th", nil)
	handler.Catalog(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "12th", svc.gotLevel)
}
