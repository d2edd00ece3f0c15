package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/dbos-admissions-api/internal/admission"
	"github.com/noah-isme/dbos-admissions-api/internal/dto"
	"github.com/noah-isme/dbos-admissions-api/internal/models"
	appErrors "github.com/noah-isme/dbos-admissions-api/pkg/errors"
	"github.com/noah-isme/dbos-admissions-api/pkg/jobs"
	"github.com/noah-isme/dbos-admissions-api/pkg/storage"
)

type draftStore interface {
	Save(ctx context.Context, sessionID string, form *admission.Form, ttl time.Duration) error
	Load(ctx context.Context, sessionID string) (*admission.Form, error)
	SavePhoto(ctx context.Context, sessionID string, data []byte, ttl time.Duration) error
	LoadPhoto(ctx context.Context, sessionID string) ([]byte, error)
	DeletePhoto(ctx context.Context, sessionID string) error
}

type applicationCreator interface {
	Create(ctx context.Context, app *models.Application) (*models.Application, bool, error)
}

type uploadStore interface {
	UpsertPhoto(ctx context.Context, applicantID, fileID, url string) (*models.UploadRecord, error)
	AppendDocument(ctx context.Context, applicantID string, doc models.DocumentRef, signature bool) (*models.UploadRecord, error)
	FindByApplicant(ctx context.Context, applicantID string) (*models.UploadRecord, error)
}

type jobDispatcher interface {
	TryEnqueue(job jobs.Job) error
}

// IntakeConfig tunes draft lifetime and upload limits.
type IntakeConfig struct {
	DraftTTL time.Duration
	Photo    storage.PhotoOptions
	Policy   storage.UploadPolicy
}

// IntakeService drives the applicant form from the first draft to the
// document checklist.
type IntakeService struct {
	drafts    draftStore
	apps      applicationCreator
	uploads   uploadStore
	store     storage.ObjectStore
	queue     jobDispatcher
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       IntakeConfig
	newToken  func() string
	now       func() time.Time
}

// NewIntakeService constructs the intake service.
func NewIntakeService(drafts draftStore, apps applicationCreator, uploads uploadStore, store storage.ObjectStore, queue jobDispatcher, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg IntakeConfig) *IntakeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DraftTTL <= 0 {
		cfg.DraftTTL = 48 * time.Hour
	}
	return &IntakeService{
		drafts:    drafts,
		apps:      apps,
		uploads:   uploads,
		store:     store,
		queue:     queue,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		newToken:  uuid.NewString,
		now:       time.Now,
	}
}

// StartSession opens an empty draft.
func (s *IntakeService) StartSession(ctx context.Context) (*dto.SessionView, error) {
	sessionID := uuid.NewString()
	form := admission.NewForm(s.newToken())
	if err := s.save(ctx, sessionID, form); err != nil {
		return nil, err
	}
	return s.view(ctx, sessionID, form), nil
}

// GetSession returns the draft, its state and, once documents are open, the checklist.
func (s *IntakeService) GetSession(ctx context.Context, sessionID string) (*dto.SessionView, error) {
	form, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, sessionID, form), nil
}

// UpdateFields applies every field in the request or none of them.
func (s *IntakeService) UpdateFields(ctx context.Context, sessionID string, req dto.UpdateFieldsRequest) (*dto.UpdateFieldsResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one field is required")
	}
	form, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var adjustment admission.Adjustment
	for _, name := range orderedFieldNames(req.Fields) {
		adj, err := form.UpdateField(name, strings.TrimSpace(req.Fields[name]))
		if err != nil {
			return nil, intakeError(err)
		}
		adjustment.DroppedSubjects = append(adjustment.DroppedSubjects, adj.DroppedSubjects...)
		if adj.ClearedStream != "" {
			adjustment.ClearedStream = adj.ClearedStream
		}
	}
	if err := s.save(ctx, sessionID, form); err != nil {
		return nil, err
	}
	if !adjustment.Empty() {
		s.logger.Debug("selections dropped after level change",
			zap.String("session_id", sessionID),
			zap.Int("dropped", len(adjustment.DroppedSubjects)),
			zap.String("cleared_stream", adjustment.ClearedStream))
	}
	return &dto.UpdateFieldsResponse{Session: *s.view(ctx, sessionID, form), Adjustment: adjustment}, nil
}

// ToggleSubject adds or removes a subject within the level limits.
func (s *IntakeService) ToggleSubject(ctx context.Context, sessionID string, req dto.ToggleSubjectRequest) (*dto.ToggleSubjectResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "category and subject are required")
	}
	form, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	selected, err := form.ToggleSubject(req.Category, strings.TrimSpace(req.Subject))
	if err != nil {
		return nil, intakeError(err)
	}
	if err := s.save(ctx, sessionID, form); err != nil {
		return nil, err
	}
	return &dto.ToggleSubjectResponse{Selected: selected, Session: *s.view(ctx, sessionID, form)}, nil
}

// SetDeclarations records all six declaration checkboxes.
func (s *IntakeService) SetDeclarations(ctx context.Context, sessionID string, req dto.SetDeclarationsRequest) (*dto.SessionView, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("exactly %d declarations are required", admission.DeclarationCount))
	}
	form, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	for i, accepted := range req.Declarations {
		if err := form.SetDeclaration(i, accepted); err != nil {
			return nil, intakeError(err)
		}
	}
	if err := s.save(ctx, sessionID, form); err != nil {
		return nil, err
	}
	return s.view(ctx, sessionID, form), nil
}

// ChoosePhoto normalises the passport photo and keeps it with the draft until submit.
func (s *IntakeService) ChoosePhoto(ctx context.Context, sessionID, fileName string, data []byte) (*dto.SessionView, error) {
	form, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if form.State != admission.StateEditing {
		return nil, intakeError(admission.ErrNotEditable)
	}
	normalized, err := storage.NormalizePhoto(data, s.cfg.Photo)
	if err != nil {
		return nil, uploadError(err)
	}
	photo := admission.Photo{FileName: fileName, ContentType: "image/jpeg", Size: len(normalized)}
	if err := form.ChoosePhoto(photo); err != nil {
		return nil, intakeError(err)
	}
	if err := s.drafts.SavePhoto(ctx, sessionID, normalized, s.cfg.DraftTTL); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store photo")
	}
	if err := s.save(ctx, sessionID, form); err != nil {
		return nil, err
	}
	return s.view(ctx, sessionID, form), nil
}

// Reset discards the draft values and starts over under a fresh submission token.
func (s *IntakeService) Reset(ctx context.Context, sessionID string) (*dto.SessionView, error) {
	form, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	form.Reset(s.newToken())
	if err := s.drafts.DeletePhoto(ctx, sessionID); err != nil {
		s.logger.Warn("failed to drop draft photo", zap.String("session_id", sessionID), zap.Error(err))
	}
	if err := s.save(ctx, sessionID, form); err != nil {
		return nil, err
	}
	return s.view(ctx, sessionID, form), nil
}

// SubmitStage1 persists the application and its photo, then opens the
// document stage. Any failure returns the draft to editing; retrying reuses
// the application created under the same submission token and refreshes its
// fields from the draft.
func (s *IntakeService) SubmitStage1(ctx context.Context, sessionID string) (*dto.SubmitResponse, error) {
	form, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := form.BeginSubmit(); err != nil {
		return nil, intakeError(err)
	}
	if err := s.save(ctx, sessionID, form); err != nil {
		return nil, err
	}

	photo, err := s.drafts.LoadPhoto(ctx, sessionID)
	if err != nil {
		return nil, s.failSubmit(ctx, sessionID, form, err)
	}

	started := time.Now()
	app, created, err := s.apps.Create(ctx, &models.Application{
		SubmissionToken:   form.SubmissionToken,
		ApplicationFields: form.Persisted(),
		Status:            models.StatusPending,
	})
	s.metrics.ObserveDBQuery("applications_create", time.Since(started))
	if err != nil {
		return nil, s.failSubmit(ctx, sessionID, form, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to save application"))
	}

	fileID, err := s.store.Put(ctx, storage.Object{Folder: "photos/" + app.ID, ContentType: "image/jpeg", Data: photo})
	if err != nil {
		return nil, s.failSubmit(ctx, sessionID, form, appErrors.WrapAs(appErrors.ErrStorage, err, "failed to upload photo"))
	}
	url, err := s.store.URL(ctx, fileID, storage.ModeView)
	if err != nil {
		return nil, s.failSubmit(ctx, sessionID, form, appErrors.WrapAs(appErrors.ErrStorage, err, "failed to resolve photo url"))
	}
	if _, err := s.uploads.UpsertPhoto(ctx, app.ID, fileID, url); err != nil {
		return nil, s.failSubmit(ctx, sessionID, form, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to save photo reference"))
	}

	opened := form.ApplicationID == ""
	if err := form.CompleteSubmit(app.ID); err != nil {
		return nil, s.failSubmit(ctx, sessionID, form, err)
	}
	if err := s.save(ctx, sessionID, form); err != nil {
		return nil, err
	}
	if err := s.drafts.DeletePhoto(ctx, sessionID); err != nil {
		s.logger.Warn("failed to drop draft photo", zap.String("session_id", sessionID), zap.Error(err))
	}
	s.cache.Invalidate(ctx, applicationListCacheKey)

	if created {
		s.metrics.RecordSubmission(ResultSuccess)
	} else {
		s.metrics.RecordSubmission(ResultReused)
	}
	if opened {
		s.dispatchConfirmation(app)
	}
	s.logger.Info("application submitted",
		zap.String("application_id", app.ID),
		zap.String("session_id", sessionID),
		zap.Bool("created", created))

	return &dto.SubmitResponse{ApplicationID: app.ID, Session: *s.view(ctx, sessionID, form)}, nil
}

// UploadDocument stores a supporting document and appends it to the
// applicant's upload record in one statement.
func (s *IntakeService) UploadDocument(ctx context.Context, sessionID string, req dto.UploadDocumentRequest, fileName string, data []byte) (*dto.DocumentUploadResponse, error) {
	form, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if form.ApplicationID == "" {
		return nil, appErrors.ErrMissingApplicant
	}

	var docType admission.DocumentType
	if raw := strings.TrimSpace(req.Type); raw != "" {
		t, ok := admission.ParseDocumentType(raw)
		if !ok {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown document type %q", raw))
		}
		docType = t
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = string(docType)
	}
	if title == "" {
		title = fileName
	}

	contentType, err := s.cfg.Policy.Check(data)
	if err != nil {
		s.metrics.RecordUpload(ResultFailure)
		return nil, uploadError(err)
	}
	fileID, err := s.store.Put(ctx, storage.Object{Folder: "documents/" + form.ApplicationID, ContentType: contentType, Data: data})
	if err != nil {
		s.metrics.RecordUpload(ResultFailure)
		return nil, appErrors.WrapAs(appErrors.ErrStorage, err, "failed to upload document")
	}
	url, err := s.store.URL(ctx, fileID, storage.ModeView)
	if err != nil {
		s.metrics.RecordUpload(ResultFailure)
		return nil, appErrors.WrapAs(appErrors.ErrStorage, err, "failed to resolve document url")
	}

	ref := models.DocumentRef{
		Type:       string(docType),
		Title:      title,
		FileID:     fileID,
		URL:        url,
		UploadedAt: s.now().UTC(),
	}
	record, err := s.uploads.AppendDocument(ctx, form.ApplicationID, ref, docType == admission.DocSignature)
	if err != nil {
		s.metrics.RecordUpload(ResultFailure)
		return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to save document reference")
	}
	s.metrics.RecordUpload(ResultSuccess)
	s.logger.Info("document uploaded",
		zap.String("application_id", form.ApplicationID),
		zap.String("type", ref.Type),
		zap.String("file_id", fileID))

	return &dto.DocumentUploadResponse{Document: ref, Checklist: admission.BuildChecklist(record.Documents)}, nil
}

// Checklist reports which required documents are covered so far.
func (s *IntakeService) Checklist(ctx context.Context, sessionID string) (*admission.Checklist, error) {
	form, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if form.ApplicationID == "" {
		return nil, appErrors.ErrMissingApplicant
	}
	checklist, err := s.checklist(ctx, form.ApplicationID)
	if err != nil {
		return nil, err
	}
	return &checklist, nil
}

// Finish closes the flow. Missing documents do not block it.
func (s *IntakeService) Finish(ctx context.Context, sessionID string) (*dto.SessionView, error) {
	form, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := form.Finish(); err != nil {
		return nil, intakeError(err)
	}
	if err := s.save(ctx, sessionID, form); err != nil {
		return nil, err
	}
	return s.view(ctx, sessionID, form), nil
}

// Catalog returns the subject catalog for one level, or every level when level is empty.
func (s *IntakeService) Catalog(level string) ([]admission.LevelCatalog, error) {
	if strings.TrimSpace(level) == "" {
		return admission.Levels(), nil
	}
	cat, ok := admission.Lookup(models.AdmissionLevel(level))
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("unknown admission level %q", level))
	}
	return []admission.LevelCatalog{cat}, nil
}

func (s *IntakeService) failSubmit(ctx context.Context, sessionID string, form *admission.Form, cause error) error {
	form.FailSubmit()
	if err := s.drafts.Save(ctx, sessionID, form, s.cfg.DraftTTL); err != nil {
		s.logger.Error("failed to restore draft after submit error", zap.String("session_id", sessionID), zap.Error(err))
	}
	s.metrics.RecordSubmission(ResultFailure)
	s.logger.Warn("stage one submit failed", zap.String("session_id", sessionID), zap.Error(cause))
	return intakeError(cause)
}

func (s *IntakeService) dispatchConfirmation(app *models.Application) {
	if s.queue == nil {
		return
	}
	if err := s.queue.TryEnqueue(ConfirmationJob(app)); err != nil {
		s.metrics.RecordMail(ResultFailure)
		s.logger.Warn("confirmation mail not queued", zap.String("application_id", app.ID), zap.Error(err))
	}
}

func (s *IntakeService) load(ctx context.Context, sessionID string) (*admission.Form, error) {
	if _, err := uuid.Parse(sessionID); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "intake session not found or expired")
	}
	form, err := s.drafts.Load(ctx, sessionID)
	if err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load intake session")
	}
	return form, nil
}

func (s *IntakeService) save(ctx context.Context, sessionID string, form *admission.Form) error {
	if err := s.drafts.Save(ctx, sessionID, form, s.cfg.DraftTTL); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save intake session")
	}
	return nil
}

func (s *IntakeService) checklist(ctx context.Context, applicantID string) (admission.Checklist, error) {
	record, err := s.uploads.FindByApplicant(ctx, applicantID)
	if err != nil {
		if isNotFound(err) {
			return admission.BuildChecklist(nil), nil
		}
		return admission.Checklist{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load uploads")
	}
	return admission.BuildChecklist(record.Documents), nil
}

func (s *IntakeService) view(ctx context.Context, sessionID string, form *admission.Form) *dto.SessionView {
	missing := form.MissingRequirements()
	if missing == nil {
		missing = []string{}
	}
	v := &dto.SessionView{
		SessionID:           sessionID,
		State:               form.State,
		Fields:              form.Fields,
		Declarations:        form.Declarations[:],
		Photo:               form.Photo,
		ApplicationID:       form.ApplicationID,
		AllRequiredFilled:   form.AllRequiredFilled(),
		CanSubmit:           (form.State == admission.StateEditing || form.State == admission.StateSubmitting) && len(missing) == 0,
		MissingRequirements: missing,
	}
	if form.ApplicationID != "" {
		checklist, err := s.checklist(ctx, form.ApplicationID)
		if err != nil {
			s.logger.Warn("checklist unavailable", zap.String("application_id", form.ApplicationID), zap.Error(err))
		} else {
			v.Checklist = &checklist
		}
	}
	return v
}

// orderedFieldNames applies the admission level before anything that depends on it.
func orderedFieldNames(fields map[string]string) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if (names[i] == admission.FieldAdmissionFor) != (names[j] == admission.FieldAdmissionFor) {
			return names[i] == admission.FieldAdmissionFor
		}
		return names[i] < names[j]
	})
	return names
}

func intakeError(err error) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	var incomplete *admission.IncompleteError
	if errors.As(err, &incomplete) {
		return appErrors.Clone(appErrors.ErrValidation, incomplete.Error())
	}
	var invalid *admission.ValidationError
	if errors.As(err, &invalid) {
		return appErrors.Clone(appErrors.ErrValidation, invalid.Error())
	}
	if errors.Is(err, admission.ErrNotEditable) || errors.Is(err, admission.ErrInvalidState) {
		return appErrors.Clone(appErrors.ErrConflict, err.Error())
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "intake request failed")
}

func uploadError(err error) error {
	switch {
	case errors.Is(err, storage.ErrTooLarge):
		return appErrors.Clone(appErrors.ErrValidation, err.Error())
	case errors.Is(err, storage.ErrUnsupportedType):
		return appErrors.Clone(appErrors.ErrValidation, "only JPG, JPEG, PNG or PDF files are accepted")
	default:
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to process file")
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || errors.Is(err, appErrors.ErrNotFound)
}
