package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dbos-admissions-api/internal/models"
	appErrors "github.com/noah-isme/dbos-admissions-api/pkg/errors"
)

type stubValidator struct {
	claims *models.JWTClaims
}

func (s stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	if token != "good" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return s.claims, nil
}

type stubGate map[string]bool

func (g stubGate) IsAdmin(email string) bool { return g[email] }

type recordingAudit struct {
	entries []*models.AuditLog
	err     error
}

func (r *recordingAudit) Create(_ context.Context, log *models.AuditLog) error {
	r.entries = append(r.entries, log)
	return r.err
}

func protectedRouter(claims *models.JWTClaims, gate adminChecker) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/admin", JWT(stubValidator{claims: claims}), RequireAdmin(gate), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func serve(r *gin.Engine, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWTRejectsMissingAndMalformedHeaders(t *testing.T) {
	r := protectedRouter(&models.JWTClaims{Role: models.RoleAdmin, Email: "office@dbos.com"}, stubGate{"office@dbos.com": true})

	assert.Equal(t, http.StatusUnauthorized, serve(r, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "Token good").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "Bearer bad").Code)
}

func TestRequireAdminAllowsListedAdmin(t *testing.T) {
	r := protectedRouter(&models.JWTClaims{UserID: "u1", Role: models.RoleAdmin, Email: "office@dbos.com"}, stubGate{"office@dbos.com": true})

	assert.Equal(t, http.StatusOK, serve(r, "Bearer good").Code)
}

func TestRequireAdminRejectsEmailOffTheList(t *testing.T) {
	r := protectedRouter(&models.JWTClaims{UserID: "u1", Role: models.RoleSuperAdmin, Email: "former@dbos.com"}, stubGate{})

	w := serve(r, "Bearer good")
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "Admin privileges required")
}

func TestRequireAdminRejectsUnknownRole(t *testing.T) {
	r := protectedRouter(&models.JWTClaims{UserID: "u1", Role: "APPLICANT", Email: "office@dbos.com"}, stubGate{"office@dbos.com": true})

	assert.Equal(t, http.StatusForbidden, serve(r, "Bearer good").Code)
}

func TestAuditRecordsSuccessfulRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	writer := &recordingAudit{}
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(ContextUserKey, &models.JWTClaims{UserID: "admin-1"})
		c.Next()
	})
	r.GET("/applications/export", Audit(writer, models.AuditActionApplicationExport, models.AuditResourceApplication), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/applications/:id", Audit(writer, "VIEW", models.AuditResourceApplication), func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/applications/export?search=rao", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/applications/missing", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	require.Len(t, writer.entries, 1)
	entry := writer.entries[0]
	assert.Equal(t, models.AuditActionApplicationExport, entry.Action)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "admin-1", *entry.UserID)
	assert.Nil(t, entry.ResourceID)
	assert.Contains(t, string(entry.NewValues), "search=rao")
}

func TestAuditIgnoresWriterErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	writer := &recordingAudit{err: errors.New("db down")}
	r := gin.New()
	r.POST("/applications/:id/approve", Audit(writer, models.AuditActionApplicationApprove, models.AuditResourceApplication), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/applications/app-7/approve", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, writer.entries, 1)
	assert.Equal(t, "app-7", *writer.entries[0].ResourceID)
}

func TestResponseMetaRecordsProcessingTime(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var meta map[string]interface{}
	r := gin.New()
	r.Use(WithResponseMeta())
	r.GET("/", func(c *gin.Context) {
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotNil(t, meta)
	_, ok := meta["processing_time_ms"]
	assert.True(t, ok)
}

func TestTimeoutSetsDeadline(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var hasDeadline bool
	r := gin.New()
	r.GET("/", Timeout(time.Second), func(c *gin.Context) {
		_, hasDeadline = c.Request.Context().Deadline()
		c.Status(http.StatusOK)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, hasDeadline)
}
