package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/dbos-admissions-api/internal/models"
)

const uploadColumns = `id, applicant_id, photo_file_id, photo_url, signature_file_id, signature_url, documents, created_at, updated_at`

// UploadRepository stores the files attached to each application. Every
// mutation is a single statement keyed by applicant_id so concurrent writers
// never overwrite each other.
type UploadRepository struct {
	db *sqlx.DB
	sb squirrel.StatementBuilderType
}

// NewUploadRepository creates a new UploadRepository.
func NewUploadRepository(db *sqlx.DB) *UploadRepository {
	return &UploadRepository{
		db: db,
		sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// UpsertPhoto creates the upload record for applicantID or replaces its photo.
func (r *UploadRepository) UpsertPhoto(ctx context.Context, applicantID, fileID, url string) (*models.UploadRecord, error) {
	const query = `INSERT INTO application_uploads (id, applicant_id, photo_file_id, photo_url, documents, created_at, updated_at)
VALUES ($1, $2, $3, $4, '[]'::jsonb, $5, $5)
ON CONFLICT (applicant_id) DO UPDATE SET photo_file_id = EXCLUDED.photo_file_id, photo_url = EXCLUDED.photo_url, updated_at = EXCLUDED.updated_at
RETURNING ` + uploadColumns
	var record models.UploadRecord
	if err := r.db.GetContext(ctx, &record, query, uuid.NewString(), applicantID, fileID, url, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("upsert upload photo: %w", err)
	}
	return &record, nil
}

// AppendDocument appends doc to the documents array, creating the record when
// needed. When signature is set the signature reference is replaced too.
func (r *UploadRepository) AppendDocument(ctx context.Context, applicantID string, doc models.DocumentRef, signature bool) (*models.UploadRecord, error) {
	const query = `INSERT INTO application_uploads (id, applicant_id, signature_file_id, signature_url, documents, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5::jsonb, $6, $6)
ON CONFLICT (applicant_id) DO UPDATE SET
documents = application_uploads.documents || EXCLUDED.documents,
signature_file_id = CASE WHEN EXCLUDED.signature_file_id <> '' THEN EXCLUDED.signature_file_id ELSE application_uploads.signature_file_id END,
signature_url = CASE WHEN EXCLUDED.signature_url <> '' THEN EXCLUDED.signature_url ELSE application_uploads.signature_url END,
updated_at = EXCLUDED.updated_at
RETURNING ` + uploadColumns
	var sigFileID, sigURL string
	if signature {
		sigFileID, sigURL = doc.FileID, doc.URL
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	var record models.UploadRecord
	err := r.db.GetContext(ctx, &record, query,
		uuid.NewString(), applicantID, sigFileID, sigURL, models.DocumentList{doc}, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("append upload document: %w", err)
	}
	return &record, nil
}

// FindByApplicant returns the upload record for an application.
func (r *UploadRepository) FindByApplicant(ctx context.Context, applicantID string) (*models.UploadRecord, error) {
	query := `SELECT ` + uploadColumns + ` FROM application_uploads WHERE applicant_id = $1 LIMIT 1`
	var record models.UploadRecord
	if err := r.db.GetContext(ctx, &record, query, applicantID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find upload record: %w", err)
	}
	return &record, nil
}

// FindByApplicants returns upload records keyed by applicant id.
func (r *UploadRepository) FindByApplicants(ctx context.Context, applicantIDs []string) (map[string]models.UploadRecord, error) {
	out := make(map[string]models.UploadRecord, len(applicantIDs))
	if len(applicantIDs) == 0 {
		return out, nil
	}
	query, args, err := r.sb.Select(uploadColumns).
		From("application_uploads").
		Where(squirrel.Eq{"applicant_id": applicantIDs}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find upload records: %w", err)
	}
	var records []models.UploadRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("find upload records: %w", err)
	}
	for _, rec := range records {
		out[rec.ApplicantID] = rec
	}
	return out, nil
}
