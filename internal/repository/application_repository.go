package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/dbos-admissions-api/internal/models"
)

var applicationColumns = []string{
	"id", "submission_token",
	"student_name", "father_name", "mother_name", "dob", "gender", "nationality", "caste", "religion", "marital_status",
	"admission_for", "stream", "lang_subjects", "non_lang_subjects", "add_subjects",
	"permanent_address", "permanent_pin", "present_address", "present_pin", "mobile", "email", "aadhaar",
	"exam_name", "board", "year_of_passing", "roll_number", "marks", "percentage", "session", "medium", "mode",
	"admission_channel", "center_name", "center_code", "state", "district",
	"status", "created_at", "updated_at",
}

// ApplicationRepository persists admission applications.
type ApplicationRepository struct {
	db *sqlx.DB
	sb squirrel.StatementBuilderType
}

// NewApplicationRepository creates a new ApplicationRepository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{
		db: db,
		sb: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// fieldValues maps every applicant supplied column to its value.
func fieldValues(f models.ApplicationFields) map[string]interface{} {
	f.Normalize()
	return map[string]interface{}{
		"student_name":      f.StudentName,
		"father_name":       f.FatherName,
		"mother_name":       f.MotherName,
		"dob":               f.DOB,
		"gender":            f.Gender,
		"nationality":       f.Nationality,
		"caste":             f.Caste,
		"religion":          f.Religion,
		"marital_status":    f.MaritalStatus,
		"admission_for":     f.AdmissionFor,
		"stream":            f.Stream,
		"lang_subjects":     f.LangSubjects,
		"non_lang_subjects": f.NonLangSubjects,
		"add_subjects":      f.AddSubjects,
		"permanent_address": f.PermanentAddress,
		"permanent_pin":     f.PermanentPin,
		"present_address":   f.PresentAddress,
		"present_pin":       f.PresentPin,
		"mobile":            f.Mobile,
		"email":             f.Email,
		"aadhaar":           f.Aadhaar,
		"exam_name":         f.ExamName,
		"board":             f.Board,
		"year_of_passing":   f.YearOfPassing,
		"roll_number":       f.RollNumber,
		"marks":             f.Marks,
		"percentage":        f.Percentage,
		"session":           f.Session,
		"medium":            f.Medium,
		"mode":              f.Mode,
		"admission_channel": f.AdmissionChannel,
		"center_name":       f.CenterName,
		"center_code":       f.CenterCode,
		"state":             f.State,
		"district":          f.District,
	}
}

// Create inserts the application under its submission token. When a row with
// the same token exists and is still Pending, its applicant fields are
// overwritten with the draft's current values. It returns the stored row and
// whether it was newly created.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application) (*models.Application, bool, error) {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	if app.SubmissionToken == "" {
		return nil, false, fmt.Errorf("create application: submission token is required")
	}
	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = now
	if app.Status == "" {
		app.Status = models.StatusPending
	}

	fields := fieldValues(app.ApplicationFields)
	values := make(map[string]interface{}, len(fields)+5)
	for k, v := range fields {
		values[k] = v
	}
	values["id"] = app.ID
	values["submission_token"] = app.SubmissionToken
	values["status"] = app.Status
	values["created_at"] = app.CreatedAt
	values["updated_at"] = app.UpdatedAt

	query, args, err := r.sb.Insert("applications").
		SetMap(values).
		Suffix(resubmitClause(fields)).
		ToSql()
	if err != nil {
		return nil, false, fmt.Errorf("build create application: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return nil, false, fmt.Errorf("create application: %w", err)
	}

	stored, err := r.getOne(ctx, squirrel.Eq{"submission_token": app.SubmissionToken})
	if err != nil {
		return nil, false, fmt.Errorf("load created application: %w", err)
	}
	return stored, stored.ID == app.ID, nil
}

// resubmitClause refreshes a pending row written by an earlier failed attempt.
func resubmitClause(fields map[string]interface{}) string {
	cols := make([]string, 0, len(fields))
	for col := range fields {
		cols = append(cols, col)
	}
	sort.Strings(cols)

	sets := make([]string, 0, len(cols)+1)
	for _, col := range cols {
		sets = append(sets, col+" = EXCLUDED."+col)
	}
	sets = append(sets, "updated_at = EXCLUDED.updated_at")
	return "ON CONFLICT (submission_token) DO UPDATE SET " + strings.Join(sets, ", ") +
		" WHERE applications.status = '" + string(models.StatusPending) + "'"
}

// GetByID returns an application by identifier.
func (r *ApplicationRepository) GetByID(ctx context.Context, id string) (*models.Application, error) {
	app, err := r.getOne(ctx, squirrel.Eq{"id": id})
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get application: %w", err)
	}
	return app, nil
}

func (r *ApplicationRepository) getOne(ctx context.Context, where squirrel.Eq) (*models.Application, error) {
	query, args, err := r.sb.Select(applicationColumns...).From("applications").Where(where).Limit(1).ToSql()
	if err != nil {
		return nil, err
	}
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, args...); err != nil {
		return nil, err
	}
	return &app, nil
}

// List returns every application in creation order.
func (r *ApplicationRepository) List(ctx context.Context) ([]models.Application, error) {
	query, args, err := r.sb.Select(applicationColumns...).
		From("applications").
		OrderBy("created_at ASC", "id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list applications: %w", err)
	}
	apps := []models.Application{}
	if err := r.db.SelectContext(ctx, &apps, query, args...); err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	return apps, nil
}

// Update overwrites every applicant supplied field. Identity, status and
// timestamps other than updated_at are left untouched.
func (r *ApplicationRepository) Update(ctx context.Context, id string, fields models.ApplicationFields) error {
	values := fieldValues(fields)
	values["updated_at"] = time.Now().UTC()
	query, args, err := r.sb.Update("applications").SetMap(values).Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build update application: %w", err)
	}
	return r.execOne(ctx, "update application", query, args)
}

// UpdateStatus changes the review status of an application.
func (r *ApplicationRepository) UpdateStatus(ctx context.Context, id string, status models.ApplicationStatus) error {
	query, args, err := r.sb.Update("applications").
		Set("status", status).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update application status: %w", err)
	}
	return r.execOne(ctx, "update application status", query, args)
}

func (r *ApplicationRepository) execOne(ctx context.Context, op, query string, args []interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
