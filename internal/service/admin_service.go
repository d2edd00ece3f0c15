package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/dbos-admissions-api/internal/admission"
	"github.com/noah-isme/dbos-admissions-api/internal/dto"
	"github.com/noah-isme/dbos-admissions-api/internal/models"
	appErrors "github.com/noah-isme/dbos-admissions-api/pkg/errors"
	"github.com/noah-isme/dbos-admissions-api/pkg/export"
	"github.com/noah-isme/dbos-admissions-api/pkg/storage"
)

const applicationListCacheKey = "admissions:applications:rows"

type applicationStore interface {
	GetByID(ctx context.Context, id string) (*models.Application, error)
	List(ctx context.Context) ([]models.Application, error)
	Update(ctx context.Context, id string, fields models.ApplicationFields) error
	UpdateStatus(ctx context.Context, id string, status models.ApplicationStatus) error
}

type uploadLookup interface {
	FindByApplicant(ctx context.Context, applicantID string) (*models.UploadRecord, error)
	FindByApplicants(ctx context.Context, applicantIDs []string) (map[string]models.UploadRecord, error)
}

type auditStore interface {
	Create(ctx context.Context, log *models.AuditLog) error
	ListByResource(ctx context.Context, resource, resourceID string, limit int) ([]models.AuditLog, error)
}

type urlResolver interface {
	URL(ctx context.Context, fileID string, mode storage.URLMode) (string, error)
}

// AdminConfig tunes the admin listing.
type AdminConfig struct {
	ListCacheTTL       time.Duration
	PreviewConcurrency int
	HistoryLimit       int
}

// AdminService serves the admin applications table, detail and edit views.
type AdminService struct {
	apps     applicationStore
	uploads  uploadLookup
	audit    auditStore
	store    urlResolver
	cache    *CacheService
	exporter *export.CSVExporter
	logger   *zap.Logger
	cfg      AdminConfig
	now      func() time.Time
}

// NewAdminService constructs the admin service.
func NewAdminService(apps applicationStore, uploads uploadLookup, audit auditStore, store urlResolver, cache *CacheService, exporter *export.CSVExporter, logger *zap.Logger, cfg AdminConfig) *AdminService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if exporter == nil {
		exporter = export.NewCSVExporter(true)
	}
	if cfg.PreviewConcurrency <= 0 {
		cfg.PreviewConcurrency = 8
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 20
	}
	return &AdminService{
		apps:     apps,
		uploads:  uploads,
		audit:    audit,
		store:    store,
		cache:    cache,
		exporter: exporter,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}
}

// List returns every application numbered in creation order, then filtered and sorted.
func (s *AdminService) List(ctx context.Context, query models.ApplicationQuery) (*dto.ApplicationListResponse, error) {
	rows, err := s.rows(ctx)
	if err != nil {
		return nil, err
	}
	matched := SearchRows(rows, query.Search)
	SortRows(matched, query.SortBy, query.SortOrder)
	return &dto.ApplicationListResponse{Items: matched, Total: len(rows), Matched: len(matched)}, nil
}

// Export renders the filtered list as CSV.
func (s *AdminService) Export(ctx context.Context, query models.ApplicationQuery) ([]byte, string, error) {
	list, err := s.List(ctx, query)
	if err != nil {
		return nil, "", err
	}
	data := export.Dataset{Headers: exportHeaders, Rows: make([][]string, 0, len(list.Items))}
	for _, row := range list.Items {
		data.Rows = append(data.Rows, exportRow(row))
	}
	out, err := s.exporter.Render(data)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to export applications")
	}
	filename := fmt.Sprintf("applications-%s.csv", s.now().UTC().Format("20060102"))
	return out, filename, nil
}

// Detail returns an application with its labelled documents and change history.
func (s *AdminService) Detail(ctx context.Context, id string) (*dto.ApplicationDetail, error) {
	app, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &dto.ApplicationDetail{Application: *app, Documents: []admission.LabeledDocument{}, History: []dto.AuditEntry{}}

	record, err := s.uploads.FindByApplicant(ctx, id)
	switch {
	case err == nil:
		detail.PhotoURL = s.resolve(ctx, record.PhotoFileID, record.PhotoURL, storage.ModeView)
		detail.SignatureURL = s.resolve(ctx, record.SignatureFileID, record.SignatureURL, storage.ModeView)
		docs := make([]models.DocumentRef, len(record.Documents))
		for i, d := range record.Documents {
			d.URL = s.resolve(ctx, d.FileID, d.URL, storage.ModeView)
			docs[i] = d
		}
		detail.Documents = admission.LabelDocuments(docs)
		detail.Checklist = admission.BuildChecklist(docs)
	case errors.Is(err, sql.ErrNoRows):
		detail.Checklist = admission.BuildChecklist(nil)
	default:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load uploads")
	}

	logs, err := s.audit.ListByResource(ctx, models.AuditResourceApplication, id, s.cfg.HistoryLimit)
	if err != nil {
		s.logger.Warn("application history unavailable", zap.String("application_id", id), zap.Error(err))
	}
	for _, l := range logs {
		entry := dto.AuditEntry{Action: l.Action, CreatedAt: l.CreatedAt}
		if l.UserID != nil {
			entry.UserID = *l.UserID
		}
		if len(l.OldValues) > 0 {
			entry.Before = json.RawMessage(l.OldValues)
		}
		if len(l.NewValues) > 0 {
			entry.After = json.RawMessage(l.NewValues)
		}
		detail.History = append(detail.History, entry)
	}
	return detail, nil
}

// BeginEdit returns an editable copy of the persisted fields. Discarding the
// copy cancels the edit.
func (s *AdminService) BeginEdit(ctx context.Context, id string) (*dto.EditDraft, error) {
	app, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	fields := app.ApplicationFields
	fields.Normalize()
	return &dto.EditDraft{ID: app.ID, Fields: fields}, nil
}

// SaveEdit validates the draft and overwrites every persisted field. Status,
// id, timestamps and upload references are never touched. Last writer wins.
func (s *AdminService) SaveEdit(ctx context.Context, id string, fields models.ApplicationFields, actor models.AuditActor) (*models.Application, error) {
	existing, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	fields.Normalize()
	if err := admission.Validate(fields); err != nil {
		return nil, intakeError(err)
	}
	if err := s.apps.Update(ctx, id, fields); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		s.logger.Error("failed to save application edit", zap.String("application_id", id), zap.Error(err))
		return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to save changes")
	}

	s.recordAudit(ctx, id, models.AuditActionApplicationUpdate, existing.ApplicationFields, fields, actor)
	s.cache.Invalidate(ctx, applicationListCacheKey)

	updated := *existing
	updated.ApplicationFields = fields
	updated.UpdatedAt = s.now().UTC()
	return &updated, nil
}

// Approve marks an application as approved.
func (s *AdminService) Approve(ctx context.Context, id string, actor models.AuditActor) (*models.Application, error) {
	existing, err := s.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.apps.UpdateStatus(ctx, id, models.StatusApproved); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to approve application")
	}

	s.recordAudit(ctx, id, models.AuditActionApplicationApprove,
		map[string]models.ApplicationStatus{"status": existing.EffectiveStatus()},
		map[string]models.ApplicationStatus{"status": models.StatusApproved},
		actor)
	s.cache.Invalidate(ctx, applicationListCacheKey)
	s.logger.Info("application approved", zap.String("application_id", id), zap.String("user_id", actor.UserID))

	updated := *existing
	updated.Status = models.StatusApproved
	updated.UpdatedAt = s.now().UTC()
	return &updated, nil
}

func (s *AdminService) get(ctx context.Context, id string) (*models.Application, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
	}
	app, err := s.apps.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	return app, nil
}

func (s *AdminService) rows(ctx context.Context) ([]dto.ApplicationRow, error) {
	var cached []dto.ApplicationRow
	if s.cache.Get(ctx, applicationListCacheKey, &cached) {
		return cached, nil
	}

	apps, err := s.apps.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	ids := make([]string, len(apps))
	for i, app := range apps {
		ids[i] = app.ID
	}
	uploads, err := s.uploads.FindByApplicants(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load uploads")
	}

	rows := make([]dto.ApplicationRow, len(apps))
	for i, app := range apps {
		rows[i] = dto.ApplicationRow{
			FormNumber:        fmt.Sprintf("%02d", i+1),
			ID:                app.ID,
			Status:            app.EffectiveStatus(),
			CreatedAt:         app.CreatedAt,
			ApplicationFields: app.ApplicationFields,
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.PreviewConcurrency)
	for i := range rows {
		record, ok := uploads[rows[i].ID]
		if !ok {
			continue
		}
		row := &rows[i]
		g.Go(func() error {
			row.PhotoPreviewURL = s.resolve(gctx, record.PhotoFileID, record.PhotoURL, storage.ModePreview)
			return nil
		})
	}
	_ = g.Wait()

	s.cache.Set(ctx, applicationListCacheKey, rows, s.cfg.ListCacheTTL)
	return rows, nil
}

// resolve returns a fresh link for fileID, falling back to the stored URL.
func (s *AdminService) resolve(ctx context.Context, fileID, stored string, mode storage.URLMode) string {
	if fileID == "" || s.store == nil {
		return stored
	}
	url, err := s.store.URL(ctx, fileID, mode)
	if err != nil {
		s.logger.Warn("failed to resolve file url", zap.String("file_id", fileID), zap.Error(err))
		return stored
	}
	return url
}

func (s *AdminService) recordAudit(ctx context.Context, id, action string, before, after interface{}, actor models.AuditActor) {
	if s.audit == nil {
		return
	}
	oldValues, _ := json.Marshal(before)
	newValues, _ := json.Marshal(after)
	entry := &models.AuditLog{
		Action:     action,
		Resource:   models.AuditResourceApplication,
		ResourceID: &id,
		OldValues:  oldValues,
		NewValues:  newValues,
		IPAddress:  actor.IPAddress,
		UserAgent:  actor.UserAgent,
	}
	if actor.UserID != "" {
		userID := actor.UserID
		entry.UserID = &userID
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit log", zap.String("action", action), zap.Error(err))
	}
}

// SearchRows keeps rows whose name, email, mobile, parents' names, Aadhaar,
// roll number or form number contain term, ignoring case. An empty term keeps all.
func SearchRows(rows []dto.ApplicationRow, term string) []dto.ApplicationRow {
	term = strings.ToLower(strings.TrimSpace(term))
	out := make([]dto.ApplicationRow, 0, len(rows))
	for _, row := range rows {
		if term == "" || rowMatches(row, term) {
			out = append(out, row)
		}
	}
	return out
}

func rowMatches(row dto.ApplicationRow, term string) bool {
	for _, value := range []string{
		row.StudentName, row.Email, row.Mobile, row.FatherName, row.MotherName,
		row.Aadhaar, row.RollNumber, row.FormNumber,
	} {
		if strings.Contains(strings.ToLower(value), term) {
			return true
		}
	}
	return false
}

// SortRows orders rows in place by createdAt or studentName. Unknown fields
// keep the original order.
func SortRows(rows []dto.ApplicationRow, field models.ApplicationSortField, order string) {
	desc := strings.EqualFold(order, "desc")
	var less func(a, b dto.ApplicationRow) bool
	switch field {
	case models.SortByCreatedAt:
		less = func(a, b dto.ApplicationRow) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case models.SortByStudentName:
		less = func(a, b dto.ApplicationRow) bool {
			return strings.ToLower(a.StudentName) < strings.ToLower(b.StudentName)
		}
	default:
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if desc {
			return less(rows[j], rows[i])
		}
		return less(rows[i], rows[j])
	})
}

var exportHeaders = []string{
	"Form No", "Application ID", "Status", "Submitted At", "Student Name", "Father's Name",
	"Mother's Name", "Date of Birth", "Gender", "Admission For", "Stream", "Language Subjects",
	"Non-Language Subjects", "Additional Subjects", "Mobile", "Email", "Aadhaar", "Roll Number",
	"Session", "Medium", "Mode", "Admission Channel", "Center Name", "Center Code", "State", "District",
}

func exportRow(row dto.ApplicationRow) []string {
	return []string{
		row.FormNumber, row.ID, string(row.Status), row.CreatedAt.UTC().Format(time.RFC3339),
		row.StudentName, row.FatherName, row.MotherName, row.DOB, row.Gender,
		string(row.AdmissionFor), row.Stream,
		strings.Join(row.LangSubjects, "; "), strings.Join(row.NonLangSubjects, "; "), strings.Join(row.AddSubjects, "; "),
		row.Mobile, row.Email, row.Aadhaar, row.RollNumber,
		row.Session, row.Medium, row.Mode, string(row.AdmissionChannel),
		row.CenterName, row.CenterCode, row.State, row.District,
	}
}
