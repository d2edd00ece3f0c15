package service

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/dbos-admissions-api/internal/dto"
	"github.com/noah-isme/dbos-admissions-api/internal/models"
	appErrors "github.com/noah-isme/dbos-admissions-api/pkg/errors"
	"github.com/noah-isme/dbos-admissions-api/pkg/jobs"
	"github.com/noah-isme/dbos-admissions-api/pkg/mailer"
)

// JobTypeConfirmation identifies queued confirmation mails.
const JobTypeConfirmation = "admission.confirmation"

const (
	applicantSubject = "DBOS - Admission Form Submission Confirmation"
	adminSubject     = "DBOS - New Admission Form Received"
)

type mailTransport interface {
	Send(ctx context.Context, msg mailer.Message) error
	Configured() bool
}

// NotificationConfig controls recipients and the assets linked from mails.
type NotificationConfig struct {
	AdminEmail string
	PublicURL  string
}

// NotificationService renders and sends admission confirmation mails.
type NotificationService struct {
	sender    mailTransport
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       NotificationConfig
}

// NewNotificationService constructs the service.
func NewNotificationService(sender mailTransport, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, cfg NotificationConfig) *NotificationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PublicURL == "" {
		cfg.PublicURL = "http://localhost:8080"
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	return &NotificationService{sender: sender, metrics: metrics, validator: validate, logger: logger, cfg: cfg}
}

// SendConfirmation sends the applicant acknowledgement and, when configured,
// the admin alert. Used by the relay endpoint, so failures are reported.
func (s *NotificationService) SendConfirmation(ctx context.Context, req dto.ConfirmationRequest) (*dto.ConfirmationResponse, error) {
	req.ApplicantEmail = strings.TrimSpace(req.ApplicantEmail)
	req.ApplicantName = strings.TrimSpace(req.ApplicantName)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "studentEmail and studentName are required")
	}
	if s.sender == nil || !s.sender.Configured() {
		return nil, appErrors.Clone(appErrors.ErrInternal, "Email credentials are not configured")
	}
	adminSent, err := s.deliver(ctx, &ConfirmationDelivery{Request: req})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "Failed to send email")
	}
	return &dto.ConfirmationResponse{OK: true, AdminAlert: adminSent}, nil
}

// ConfirmationDelivery is the queued confirmation payload. ApplicantSent
// survives retries so a failed admin alert does not resend the applicant mail.
type ConfirmationDelivery struct {
	Request       dto.ConfirmationRequest
	ApplicantSent bool
}

// ConfirmationJob builds the queued confirmation mail for a new application.
func ConfirmationJob(app *models.Application) jobs.Job {
	return jobs.Job{
		ID:   app.ID,
		Type: JobTypeConfirmation,
		Payload: &ConfirmationDelivery{Request: dto.ConfirmationRequest{
			ApplicantEmail: app.Email,
			ApplicantName:  app.StudentName,
			Details:        SummaryFromApplication(app),
		}},
	}
}

func (s *NotificationService) deliver(ctx context.Context, d *ConfirmationDelivery) (bool, error) {
	req := d.Request
	view := mailView{
		LogoURL: s.cfg.PublicURL + "/DBOS-logo-300x300.png",
		Name:    req.ApplicantName,
		Email:   req.ApplicantEmail,
		Summary: req.Summary,
		Details: req.Details,
	}

	if !d.ApplicantSent {
		body, err := render(applicantTemplate, view)
		if err != nil {
			return false, err
		}
		if err := s.sender.Send(ctx, mailer.Message{To: req.ApplicantEmail, Subject: applicantSubject, HTML: body}); err != nil {
			s.metrics.RecordMail(ResultFailure)
			s.logger.Error("send applicant confirmation", zap.String("to", req.ApplicantEmail), zap.Error(err))
			return false, err
		}
		s.metrics.RecordMail(ResultSuccess)
		d.ApplicantSent = true
	}

	if s.cfg.AdminEmail == "" {
		return false, nil
	}
	body, err := render(adminTemplate, view)
	if err != nil {
		return false, err
	}
	if err := s.sender.Send(ctx, mailer.Message{To: s.cfg.AdminEmail, Subject: adminSubject, HTML: body}); err != nil {
		s.metrics.RecordMail(ResultFailure)
		s.logger.Error("send admin alert", zap.String("to", s.cfg.AdminEmail), zap.Error(err))
		return false, err
	}
	s.metrics.RecordMail(ResultSuccess)
	return true, nil
}

// SummaryFromApplication lists the submitted values shown in confirmation mails.
func SummaryFromApplication(app *models.Application) []dto.SummaryLine {
	if app == nil {
		return nil
	}
	f := app.ApplicationFields
	lines := []dto.SummaryLine{
		{Label: "Application ID", Value: app.ID},
		{Label: "Admission For", Value: string(f.AdmissionFor)},
		{Label: "Stream", Value: f.Stream},
		{Label: "Session", Value: f.Session},
		{Label: "Medium", Value: f.Medium},
		{Label: "Mode", Value: f.Mode},
		{Label: "Admission Channel", Value: string(f.AdmissionChannel)},
		{Label: "Study Center", Value: f.CenterName},
		{Label: "Student Name", Value: f.StudentName},
		{Label: "Father's Name", Value: f.FatherName},
		{Label: "Mother's Name", Value: f.MotherName},
		{Label: "Date of Birth", Value: f.DOB},
		{Label: "Mobile", Value: f.Mobile},
		{Label: "Language Subjects", Value: strings.Join(f.LangSubjects, ", ")},
		{Label: "Non-Language Subjects", Value: strings.Join(f.NonLangSubjects, ", ")},
		{Label: "Additional Subjects", Value: strings.Join(f.AddSubjects, ", ")},
	}
	out := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line.Value) != "" {
			out = append(out, line)
		}
	}
	return out
}

type mailView struct {
	LogoURL string
	Name    string
	Email   string
	Summary string
	Details []dto.SummaryLine
}

func render(tpl *template.Template, view mailView) (string, error) {
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render %s: %w", tpl.Name(), err)
	}
	return buf.String(), nil
}

const summaryBlock = `{{define "summary"}}{{if .Details}}<table style="margin-top:12px; font-size:13px; color:#222; border-collapse:collapse;">{{range .Details}}<tr><td style="padding:2px 12px 2px 0;"><strong>{{.Label}}</strong></td><td style="padding:2px 0;">{{.Value}}</td></tr>{{end}}</table>{{else if .Summary}}<div style="margin-top:12px; font-size:13px; color:#222; white-space:pre-line;"><strong>Summary:</strong><br/>{{.Summary}}</div>{{end}}{{end}}`

var applicantTemplate = template.Must(template.New("applicant").Parse(summaryBlock + `
<div style="font-family:Arial, Helvetica, sans-serif; color:#0D0D6B;">
  <div style="text-align:center; margin-bottom:16px;">
    <img src="{{.LogoURL}}" alt="DBOS" width="96" height="96" style="border-radius:8px;" />
    <h1 style="margin:8px 0 0; font-size:22px;">Dihing Board of Open Schooling</h1>
    <div style="color:#444; font-weight:600;">A Govt. Recognised Board | An ISO 9001:2015 Certified Board</div>
  </div>
  <div style="border-top:4px solid #FF580A; border-bottom:4px solid #0D0D6B; padding:16px; border-radius:8px; background:#ffffff;">
    <p style="font-size:14px; color:#222;">Dear {{.Name}},</p>
    <p style="font-size:14px; color:#222;">Your admission form has been successfully received by DBOS. This is an acknowledgement of your submission.</p>
    {{template "summary" .}}
    <p style="font-size:13px; color:#222; margin-top:16px;">We will review your application and contact you if anything else is required.</p>
    <p style="font-size:13px; color:#222; margin-top:16px;">Regards,<br/>DBOS Admissions</p>
  </div>
</div>`))

var adminTemplate = template.Must(template.New("admin").Parse(summaryBlock + `
<div style="font-family:Arial, Helvetica, sans-serif; color:#0D0D6B;">
  <div style="text-align:center; margin-bottom:16px;">
    <img src="{{.LogoURL}}" alt="DBOS" width="64" height="64" style="border-radius:8px;" />
    <h2 style="margin:8px 0 0; font-size:18px;">New Admission Form Received</h2>
  </div>
  <div style="padding:12px; background:#fff; border:1px solid #eee; border-radius:8px;">
    <div style="font-size:14px; color:#222;">
      <div><strong>Name:</strong> {{.Name}}</div>
      <div><strong>Email:</strong> {{.Email}}</div>
      {{template "summary" .}}
    </div>
  </div>
</div>`))

// NotificationWorker delivers queued confirmation mails.
type NotificationWorker struct {
	service *NotificationService
	logger  *zap.Logger
}

// NewNotificationWorker constructs a worker.
func NewNotificationWorker(service *NotificationService, logger *zap.Logger) *NotificationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationWorker{service: service, logger: logger}
}

// Handle processes a queue job. Mail is skipped when no relay is configured.
func (w *NotificationWorker) Handle(ctx context.Context, job jobs.Job) error {
	var delivery *ConfirmationDelivery
	switch payload := job.Payload.(type) {
	case *ConfirmationDelivery:
		delivery = payload
	case dto.ConfirmationRequest:
		delivery = &ConfirmationDelivery{Request: payload}
	default:
		w.logger.Error("unexpected confirmation payload", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}
	if w.service.sender == nil || !w.service.sender.Configured() {
		w.logger.Warn("smtp credentials not configured, confirmation skipped", zap.String("job_id", job.ID))
		return nil
	}
	_, err := w.service.deliver(ctx, delivery)
	return err
}
