package models

import (
	"time"

	"github.com/lib/pq"
)

// ApplicationStatus tracks the review state of a submitted application.
type ApplicationStatus string

const (
	StatusPending  ApplicationStatus = "Pending"
	StatusApproved ApplicationStatus = "Approved"
	StatusRejected ApplicationStatus = "Rejected"
)

// AdmissionLevel identifies the class an applicant is applying for.
type AdmissionLevel string

const (
	LevelSecondary       AdmissionLevel = "Secondary (10th)"
	LevelSeniorSecondary AdmissionLevel = "Sr. Secondary (12th)"
)

// AdmissionChannel records how the applicant reached the institution.
type AdmissionChannel string

const (
	ChannelDirect      AdmissionChannel = "Direct"
	ChannelStudyCenter AdmissionChannel = "Study Center"
	ChannelCoordinator AdmissionChannel = "Coordinator"
)

// RequiresCenter reports whether the channel must name a study center.
func (c AdmissionChannel) RequiresCenter() bool {
	return c == ChannelStudyCenter || c == ChannelCoordinator
}

// ApplicationFields is the applicant supplied part of an application. It is
// exactly the field set that is persisted and editable by admins.
type ApplicationFields struct {
	StudentName   string `db:"student_name" json:"studentName"`
	FatherName    string `db:"father_name" json:"fatherName"`
	MotherName    string `db:"mother_name" json:"motherName"`
	DOB           string `db:"dob" json:"dob"`
	Gender        string `db:"gender" json:"gender"`
	Nationality   string `db:"nationality" json:"nationality"`
	Caste         string `db:"caste" json:"caste"`
	Religion      string `db:"religion" json:"religion"`
	MaritalStatus string `db:"marital_status" json:"maritalStatus"`

	AdmissionFor    AdmissionLevel `db:"admission_for" json:"admissionFor"`
	Stream          string         `db:"stream" json:"stream"`
	LangSubjects    pq.StringArray `db:"lang_subjects" json:"langSubject"`
	NonLangSubjects pq.StringArray `db:"non_lang_subjects" json:"nonLangSubject"`
	AddSubjects     pq.StringArray `db:"add_subjects" json:"addSubject"`

	PermanentAddress string `db:"permanent_address" json:"permanentAddress"`
	PermanentPin     string `db:"permanent_pin" json:"permanentPin"`
	PresentAddress   string `db:"present_address" json:"presentAddress"`
	PresentPin       string `db:"present_pin" json:"presentPin"`
	Mobile           string `db:"mobile" json:"mobile"`
	Email            string `db:"email" json:"email"`
	Aadhaar          string `db:"aadhaar" json:"aadhaar"`

	ExamName      string `db:"exam_name" json:"examName"`
	Board         string `db:"board" json:"board"`
	YearOfPassing string `db:"year_of_passing" json:"yearOfPassing"`
	RollNumber    string `db:"roll_number" json:"rollNumber"`
	Marks         string `db:"marks" json:"marks"`
	Percentage    string `db:"percentage" json:"percentage"`
	Session       string `db:"session" json:"session"`
	Medium        string `db:"medium" json:"medium"`
	Mode          string `db:"mode" json:"mode"`

	AdmissionChannel AdmissionChannel `db:"admission_channel" json:"admissionChannel"`
	CenterName       string           `db:"center_name" json:"centerName"`
	CenterCode       string           `db:"center_code" json:"centerCode"`
	State            string           `db:"state" json:"state"`
	District         string           `db:"district" json:"district"`
}

// Normalize replaces nil subject arrays with empty ones so they persist as '{}'.
func (f *ApplicationFields) Normalize() {
	if f.LangSubjects == nil {
		f.LangSubjects = pq.StringArray{}
	}
	if f.NonLangSubjects == nil {
		f.NonLangSubjects = pq.StringArray{}
	}
	if f.AddSubjects == nil {
		f.AddSubjects = pq.StringArray{}
	}
}

// Application is a persisted admission application.
type Application struct {
	ID              string `db:"id" json:"id"`
	SubmissionToken string `db:"submission_token" json:"-"`
	ApplicationFields
	Status    ApplicationStatus `db:"status" json:"status"`
	CreatedAt time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time         `db:"updated_at" json:"updatedAt"`
}

// EffectiveStatus falls back to Pending for rows without a status.
func (a Application) EffectiveStatus() ApplicationStatus {
	if a.Status == "" {
		return StatusPending
	}
	return a.Status
}

// ApplicationSortField names the columns the admin list can sort on.
type ApplicationSortField string

const (
	SortByCreatedAt   ApplicationSortField = "createdAt"
	SortByStudentName ApplicationSortField = "studentName"
)

// ApplicationQuery captures the admin list search and sort parameters.
type ApplicationQuery struct {
	Search    string
	SortBy    ApplicationSortField
	SortOrder string
}
