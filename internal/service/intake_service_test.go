package service

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dbos-admissions-api/internal/admission"
	"github.com/noah-isme/dbos-admissions-api/internal/dto"
	"github.com/noah-isme/dbos-admissions-api/internal/models"
	appErrors "github.com/noah-isme/dbos-admissions-api/pkg/errors"
	"github.com/noah-isme/dbos-admissions-api/pkg/jobs"
	"github.com/noah-isme/dbos-admissions-api/pkg/storage"
)

type memDrafts struct {
	mu     sync.Mutex
	forms  map[string][]byte
	photos map[string][]byte
}

func newMemDrafts() *memDrafts {
	return &memDrafts{forms: map[string][]byte{}, photos: map[string][]byte{}}
}

func (m *memDrafts) Save(_ context.Context, id string, form *admission.Form, _ time.Duration) error {
	raw, err := json.Marshal(form)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forms[id] = raw
	return nil
}

func (m *memDrafts) Load(_ context.Context, id string) (*admission.Form, error) {
	m.mu.Lock()
	raw, ok := m.forms[id]
	m.mu.Unlock()
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "intake session not found or expired")
	}
	var form admission.Form
	if err := json.Unmarshal(raw, &form); err != nil {
		return nil, err
	}
	return &form, nil
}

func (m *memDrafts) SavePhoto(_ context.Context, id string, data []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.photos[id] = data
	return nil
}

func (m *memDrafts) LoadPhoto(_ context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.photos[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "chosen photo expired, please choose it again")
	}
	return data, nil
}

func (m *memDrafts) DeletePhoto(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.photos, id)
	return nil
}

type memApplications struct {
	mu      sync.Mutex
	byToken map[string]*models.Application
	err     error
}

func (m *memApplications) Create(_ context.Context, app *models.Application) (*models.Application, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, false, m.err
	}
	if m.byToken == nil {
		m.byToken = map[string]*models.Application{}
	}
	if existing, ok := m.byToken[app.SubmissionToken]; ok {
		if existing.Status == models.StatusPending {
			existing.ApplicationFields = app.ApplicationFields
		}
		return existing, false, nil
	}
	stored := *app
	stored.ID = uuid.NewString()
	stored.CreatedAt = time.Now()
	m.byToken[app.SubmissionToken] = &stored
	return &stored, true, nil
}

func (m *memApplications) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byToken)
}

type memUploads struct {
	mu      sync.Mutex
	records map[string]*models.UploadRecord
}

func newMemUploads() *memUploads {
	return &memUploads{records: map[string]*models.UploadRecord{}}
}

func (m *memUploads) record(id string) *models.UploadRecord {
	rec, ok := m.records[id]
	if !ok {
		rec = &models.UploadRecord{ID: uuid.NewString(), ApplicantID: id, Documents: models.DocumentList{}}
		m.records[id] = rec
	}
	return rec
}

func (m *memUploads) UpsertPhoto(_ context.Context, applicantID, fileID, url string) (*models.UploadRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.record(applicantID)
	rec.PhotoFileID, rec.PhotoURL = fileID, url
	out := *rec
	return &out, nil
}

func (m *memUploads) AppendDocument(_ context.Context, applicantID string, doc models.DocumentRef, signature bool) (*models.UploadRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.record(applicantID)
	rec.Documents = append(rec.Documents, doc)
	if signature {
		rec.SignatureFileID, rec.SignatureURL = doc.FileID, doc.URL
	}
	out := *rec
	out.Documents = append(models.DocumentList{}, rec.Documents...)
	return &out, nil
}

func (m *memUploads) FindByApplicant(_ context.Context, applicantID string) (*models.UploadRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[applicantID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	out := *rec
	return &out, nil
}

type memObjectStore struct {
	mu      sync.Mutex
	objects map[string]storage.Object
	putErr  error
}

func newMemObjectStore() *memObjectStore {
	return &memObjectStore{objects: map[string]storage.Object{}}
}

func (m *memObjectStore) Put(_ context.Context, obj storage.Object) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return "", m.putErr
	}
	id := storage.NewFileID(obj.Folder, obj.ContentType)
	m.objects[id] = obj
	return id, nil
}

func (m *memObjectStore) URL(_ context.Context, fileID string, mode storage.URLMode) (string, error) {
	return fmt.Sprintf("https://files.test/%s?mode=%s", fileID, mode), nil
}

func (m *memObjectStore) Delete(_ context.Context, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, fileID)
	return nil
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []jobs.Job
}

func (q *recordingQueue) TryEnqueue(job jobs.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, job)
	return nil
}

type intakeFixture struct {
	svc     *IntakeService
	drafts  *memDrafts
	apps    *memApplications
	uploads *memUploads
	store   *memObjectStore
	queue   *recordingQueue
}

func newIntakeFixture() *intakeFixture {
	f := &intakeFixture{
		drafts:  newMemDrafts(),
		apps:    &memApplications{},
		uploads: newMemUploads(),
		store:   newMemObjectStore(),
		queue:   &recordingQueue{},
	}
	f.svc = NewIntakeService(f.drafts, f.apps, f.uploads, f.store, f.queue, nil, nil, nil, nil, IntakeConfig{
		Policy: storage.UploadPolicy{MaxImageBytes: 200 * 1024, MaxDocumentBytes: 300 * 1024},
	})
	return f
}

func samplePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 50))
	for x := 0; x < 40; x++ {
		for y := 0; y < 50; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 5), G: 120, B: uint8(y * 4), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func samplePDF() []byte {
	return []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")
}

func tenthLevelFields() map[string]string {
	return map[string]string{
		admission.FieldStudentName: "Asha Kumari", admission.FieldFatherName: "Ramesh Kumar",
		admission.FieldMotherName: "Sita Devi", admission.FieldDOB: "2008-04-12",
		admission.FieldGender: "Female", admission.FieldNationality: "Indian",
		admission.FieldCaste: "General", admission.FieldReligion: "Hindu",
		admission.FieldMaritalStatus: "Unmarried", admission.FieldAdmissionFor: string(models.LevelSecondary),
		admission.FieldPermanentAddress: "12 Lake Road", admission.FieldPermanentPin: "110001",
		admission.FieldPresentAddress: "12 Lake Road", admission.FieldPresentPin: "110001",
		admission.FieldMobile: "9876543210", admission.FieldEmail: "asha@example.com",
		admission.FieldAadhaar: "123412341234", admission.FieldExamName: "Class IX",
		admission.FieldBoard: "CBSE", admission.FieldYearOfPassing: "2023",
		admission.FieldRollNumber: "R-77", admission.FieldMarks: "420",
		admission.FieldPercentage: "84", admission.FieldSession: "2024-25",
		admission.FieldMedium: "Hindi", admission.FieldMode: "Regular",
	}
}

func (f *intakeFixture) readyTenthSession(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	session, err := f.svc.StartSession(ctx)
	require.NoError(t, err)
	id := session.SessionID

	_, err = f.svc.UpdateFields(ctx, id, dto.UpdateFieldsRequest{Fields: tenthLevelFields()})
	require.NoError(t, err)
	_, err = f.svc.ToggleSubject(ctx, id, dto.ToggleSubjectRequest{Category: admission.CategoryLanguage, Subject: "English"})
	require.NoError(t, err)
	_, err = f.svc.ToggleSubject(ctx, id, dto.ToggleSubjectRequest{Category: admission.CategoryNonLanguage, Subject: "Mathematics"})
	require.NoError(t, err)
	_, err = f.svc.SetDeclarations(ctx, id, dto.SetDeclarationsRequest{Declarations: []bool{true, true, true, true, true, true}})
	require.NoError(t, err)
	view, err := f.svc.ChoosePhoto(ctx, id, "asha.png", samplePNG(t))
	require.NoError(t, err)
	require.True(t, view.CanSubmit, "missing: %v", view.MissingRequirements)
	return id
}

func TestIntakeServiceMinimalTenthSubmit(t *testing.T) {
	f := newIntakeFixture()
	id := f.readyTenthSession(t)

	res, err := f.svc.SubmitStage1(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, admission.StateAwaitingDocuments, res.Session.State)
	assert.NotEmpty(t, res.ApplicationID)
	assert.Equal(t, 1, f.apps.count())

	var created *models.Application
	for _, app := range f.apps.byToken {
		created = app
	}
	require.NotNil(t, created)
	assert.Equal(t, models.StatusPending, created.Status)
	assert.Equal(t, "Asha Kumari", created.StudentName)
	assert.Equal(t, []string{"English"}, []string(created.LangSubjects))

	rec, err := f.uploads.FindByApplicant(context.Background(), res.ApplicationID)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.PhotoFileID)
	assert.Contains(t, rec.PhotoURL, rec.PhotoFileID)
	assert.Equal(t, "image/jpeg", f.store.objects[rec.PhotoFileID].ContentType)

	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, JobTypeConfirmation, f.queue.jobs[0].Type)

	_, err = f.drafts.LoadPhoto(context.Background(), id)
	assert.Error(t, err, "draft photo should be dropped after submit")
}

func TestIntakeServiceSubmitIncomplete(t *testing.T) {
	f := newIntakeFixture()
	session, err := f.svc.StartSession(context.Background())
	require.NoError(t, err)

	_, err = f.svc.SubmitStage1(context.Background(), session.SessionID)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	assert.Zero(t, f.apps.count())
}

func TestIntakeServiceSubmitRetryReusesApplication(t *testing.T) {
	f := newIntakeFixture()
	id := f.readyTenthSession(t)
	f.store.putErr = errors.New("bucket unavailable")

	_, err := f.svc.SubmitStage1(context.Background(), id)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrStorage)

	view, err := f.svc.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, admission.StateEditing, view.State)
	assert.Equal(t, "Asha Kumari", view.Fields.StudentName)
	assert.Equal(t, 1, f.apps.count())
	assert.Empty(t, f.queue.jobs)

	_, err = f.svc.UpdateFields(context.Background(), id, dto.UpdateFieldsRequest{Fields: map[string]string{
		admission.FieldStudentName: "Asha Corrected",
	}})
	require.NoError(t, err)

	f.store.putErr = nil
	res, err := f.svc.SubmitStage1(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, f.apps.count())
	assert.Equal(t, admission.StateAwaitingDocuments, res.Session.State)

	for _, app := range f.apps.byToken {
		assert.Equal(t, res.ApplicationID, app.ID)
		assert.Equal(t, "Asha Corrected", app.StudentName)
	}
	require.Len(t, f.queue.jobs, 1, "the retried submit opens stage two and sends the confirmation")
	assert.Equal(t, JobTypeConfirmation, f.queue.jobs[0].Type)
}

func TestIntakeServiceSubmitPersistenceFailure(t *testing.T) {
	f := newIntakeFixture()
	id := f.readyTenthSession(t)
	f.apps.err = errors.New("connection reset")

	_, err := f.svc.SubmitStage1(context.Background(), id)
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrPersistence)

	view, err := f.svc.GetSession(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, admission.StateEditing, view.State)
}

func TestIntakeServiceUpdateFieldsIsAllOrNothing(t *testing.T) {
	f := newIntakeFixture()
	session, err := f.svc.StartSession(context.Background())
	require.NoError(t, err)

	_, err = f.svc.UpdateFields(context.Background(), session.SessionID, dto.UpdateFieldsRequest{Fields: map[string]string{
		admission.FieldStudentName: "Asha",
		"shoeSize":                 "7",
	}})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	view, err := f.svc.GetSession(context.Background(), session.SessionID)
	require.NoError(t, err)
	assert.Empty(t, view.Fields.StudentName)
}

func TestIntakeServiceLevelChangeReportsDroppedSelections(t *testing.T) {
	f := newIntakeFixture()
	ctx := context.Background()
	session, err := f.svc.StartSession(ctx)
	require.NoError(t, err)
	id := session.SessionID

	_, err = f.svc.UpdateFields(ctx, id, dto.UpdateFieldsRequest{Fields: map[string]string{
		admission.FieldAdmissionFor: string(models.LevelSeniorSecondary),
		admission.FieldStream:       "Science",
	}})
	require.NoError(t, err)
	_, err = f.svc.ToggleSubject(ctx, id, dto.ToggleSubjectRequest{Category: admission.CategoryNonLanguage, Subject: "Physics"})
	require.NoError(t, err)

	res, err := f.svc.UpdateFields(ctx, id, dto.UpdateFieldsRequest{Fields: map[string]string{
		admission.FieldAdmissionFor: string(models.LevelSecondary),
	}})
	require.NoError(t, err)
	assert.Empty(t, res.Session.Fields.NonLangSubjects)
	require.Len(t, res.Adjustment.DroppedSubjects, 1)
	assert.Equal(t, "Physics", res.Adjustment.DroppedSubjects[0].Subject)
}

func TestIntakeServiceUploadRequiresApplicant(t *testing.T) {
	f := newIntakeFixture()
	session, err := f.svc.StartSession(context.Background())
	require.NoError(t, err)

	_, err = f.svc.UploadDocument(context.Background(), session.SessionID, dto.UploadDocumentRequest{Type: "Aadhaar Card"}, "aadhaar.pdf", samplePDF())
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrMissingApplicant)
}

func TestIntakeServiceUploadDocumentsAndChecklist(t *testing.T) {
	f := newIntakeFixture()
	ctx := context.Background()
	id := f.readyTenthSession(t)
	res, err := f.svc.SubmitStage1(ctx, id)
	require.NoError(t, err)

	up, err := f.svc.UploadDocument(ctx, id, dto.UploadDocumentRequest{Type: "aadhar card"}, "scan.pdf", samplePDF())
	require.NoError(t, err)
	assert.Equal(t, string(admission.DocAadhaarCard), up.Document.Type)
	assert.Equal(t, 1, up.Checklist.Satisfied)

	_, err = f.svc.UploadDocument(ctx, id, dto.UploadDocumentRequest{Type: "Signature"}, "sign.png", samplePNG(t))
	require.NoError(t, err)

	rec, err := f.uploads.FindByApplicant(ctx, res.ApplicationID)
	require.NoError(t, err)
	assert.NotEmpty(t, rec.SignatureURL)

	checklist, err := f.svc.Checklist(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, checklist.Satisfied)
	assert.Equal(t, len(admission.RequiredDocuments), checklist.Required)
	assert.False(t, checklist.Complete)

	view, err := f.svc.Finish(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, admission.StateComplete, view.State)
}

func TestIntakeServiceUploadRejectsUnknownTypeAndContent(t *testing.T) {
	f := newIntakeFixture()
	ctx := context.Background()
	id := f.readyTenthSession(t)
	_, err := f.svc.SubmitStage1(ctx, id)
	require.NoError(t, err)

	_, err = f.svc.UploadDocument(ctx, id, dto.UploadDocumentRequest{Type: "Library Card"}, "card.pdf", samplePDF())
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = f.svc.UploadDocument(ctx, id, dto.UploadDocumentRequest{Title: "notes"}, "notes.txt", []byte("plain text notes"))
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestIntakeServiceConcurrentUploadsAreAllKept(t *testing.T) {
	f := newIntakeFixture()
	ctx := context.Background()
	id := f.readyTenthSession(t)
	res, err := f.svc.SubmitStage1(ctx, id)
	require.NoError(t, err)

	types := []string{"Aadhaar Card", "Birth Certificate", "10th Marksheet", "10th Admit Card"}
	var wg sync.WaitGroup
	errs := make(chan error, len(types))
	for _, docType := range types {
		wg.Add(1)
		go func(docType string) {
			defer wg.Done()
			_, err := f.svc.UploadDocument(ctx, id, dto.UploadDocumentRequest{Type: docType}, "doc.pdf", samplePDF())
			errs <- err
		}(docType)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	rec, err := f.uploads.FindByApplicant(ctx, res.ApplicationID)
	require.NoError(t, err)
	assert.Len(t, rec.Documents, len(types))
}

func TestIntakeServiceResetStartsOver(t *testing.T) {
	f := newIntakeFixture()
	ctx := context.Background()
	id := f.readyTenthSession(t)
	before, err := f.drafts.Load(ctx, id)
	require.NoError(t, err)

	view, err := f.svc.Reset(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, admission.StateEditing, view.State)
	assert.Empty(t, view.Fields.StudentName)
	assert.Nil(t, view.Photo)

	after, err := f.drafts.Load(ctx, id)
	require.NoError(t, err)
	assert.NotEqual(t, before.SubmissionToken, after.SubmissionToken)
}

func TestIntakeServiceUnknownSession(t *testing.T) {
	f := newIntakeFixture()
	_, err := f.svc.GetSession(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	_, err = f.svc.GetSession(context.Background(), uuid.NewString())
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestIntakeServiceCatalog(t *testing.T) {
	f := newIntakeFixture()
	all, err := f.svc.Catalog("")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	one, err := f.svc.Catalog(string(models.LevelSecondary))
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.False(t, one[0].StreamRequired)

	_, err = f.svc.Catalog("Graduate")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}
