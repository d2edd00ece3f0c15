package admission

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/noah-isme/dbos-admissions-api/internal/models"
)

// State is a step of the two stage intake flow.
type State string

const (
	StateEditing           State = "EDITING"
	StateSubmitting        State = "SUBMITTING"
	StateAwaitingDocuments State = "AWAITING_DOCUMENTS"
	StateComplete          State = "COMPLETE"
)

// DeclarationCount is the number of declarations an applicant must accept.
const DeclarationCount = 6

// Field names accepted by UpdateField.
const (
	FieldStudentName      = "studentName"
	FieldFatherName       = "fatherName"
	FieldMotherName       = "motherName"
	FieldDOB              = "dob"
	FieldGender           = "gender"
	FieldNationality      = "nationality"
	FieldCaste            = "caste"
	FieldReligion         = "religion"
	FieldMaritalStatus    = "maritalStatus"
	FieldAdmissionFor     = "admissionFor"
	FieldStream           = "stream"
	FieldPermanentAddress = "permanentAddress"
	FieldPermanentPin     = "permanentPin"
	FieldPresentAddress   = "presentAddress"
	FieldPresentPin       = "presentPin"
	FieldMobile           = "mobile"
	FieldEmail            = "email"
	FieldAadhaar          = "aadhaar"
	FieldExamName         = "examName"
	FieldBoard            = "board"
	FieldYearOfPassing    = "yearOfPassing"
	FieldRollNumber       = "rollNumber"
	FieldMarks            = "marks"
	FieldPercentage       = "percentage"
	FieldSession          = "session"
	FieldMedium           = "medium"
	FieldMode             = "mode"
	FieldAdmissionChannel = "admissionChannel"
	FieldCenterName       = "centerName"
	FieldCenterCode       = "centerCode"
	FieldState            = "state"
	FieldDistrict         = "district"
)

// requiredFields are mandatory regardless of level. Stream, subjects and
// center details are handled separately.
var requiredFields = []string{
	FieldStudentName, FieldFatherName, FieldMotherName, FieldDOB, FieldGender,
	FieldNationality, FieldCaste, FieldReligion, FieldMaritalStatus,
	FieldAdmissionFor,
	FieldPermanentAddress, FieldPermanentPin, FieldPresentAddress, FieldPresentPin,
	FieldMobile, FieldEmail, FieldAadhaar,
	FieldExamName, FieldBoard, FieldYearOfPassing, FieldRollNumber, FieldMarks,
	FieldPercentage, FieldSession, FieldMedium, FieldMode,
}

var subjectFieldNames = map[Category]string{
	CategoryLanguage:    "langSubject",
	CategoryNonLanguage: "nonLangSubject",
	CategoryAdditional:  "addSubject",
}

// Photo describes the passport photo chosen for the form. The bytes are held
// by the caller until stage one is submitted.
type Photo struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
}

// Selection is one subject pick within a category.
type Selection struct {
	Category Category `json:"category"`
	Subject  string   `json:"subject"`
}

// Adjustment reports selections dropped after an admission level change.
type Adjustment struct {
	DroppedSubjects []Selection `json:"droppedSubjects,omitempty"`
	ClearedStream   string      `json:"clearedStream,omitempty"`
}

// Empty reports whether nothing was dropped.
func (a Adjustment) Empty() bool {
	return len(a.DroppedSubjects) == 0 && a.ClearedStream == ""
}

// Form is an applicant draft and the state of its intake flow.
type Form struct {
	State           State                    `json:"state"`
	Fields          models.ApplicationFields `json:"fields"`
	Declarations    [DeclarationCount]bool   `json:"declarations"`
	Photo           *Photo                   `json:"photo,omitempty"`
	ApplicationID   string                   `json:"applicationId,omitempty"`
	SubmissionToken string                   `json:"submissionToken"`
}

// NewForm returns an empty draft in the editing state.
func NewForm(submissionToken string) *Form {
	f := &Form{State: StateEditing, SubmissionToken: submissionToken}
	f.Fields.Normalize()
	return f
}

func (f *Form) editable() error {
	if f.State != StateEditing {
		return fmt.Errorf("%w: form is %s", ErrNotEditable, f.State)
	}
	return nil
}

// UpdateField sets a single named field. Changing the admission level drops
// subject picks and the stream when the new level does not offer them.
func (f *Form) UpdateField(name, value string) (Adjustment, error) {
	if err := f.editable(); err != nil {
		return Adjustment{}, err
	}
	switch name {
	case FieldAdmissionFor:
		level := models.AdmissionLevel(value)
		if value != "" {
			if _, ok := Lookup(level); !ok {
				return Adjustment{}, &ValidationError{Field: name, Err: ErrNotOffered}
			}
		}
		f.Fields.AdmissionFor = level
		return f.revalidateSelections(), nil
	case FieldAdmissionChannel:
		channel := models.AdmissionChannel(value)
		if !validChannel(channel) {
			return Adjustment{}, &ValidationError{Field: name, Err: ErrNotOffered}
		}
		f.Fields.AdmissionChannel = channel
		return Adjustment{}, nil
	case FieldStream:
		if cat, ok := Lookup(f.Fields.AdmissionFor); ok && value != "" && len(cat.Streams) > 0 && !cat.HasStream(value) {
			return Adjustment{}, &ValidationError{Field: name, Err: ErrNotOffered}
		}
	}
	ptr, ok := textFields(&f.Fields)[name]
	if !ok {
		return Adjustment{}, &ValidationError{Field: name, Err: ErrUnknownField}
	}
	*ptr = value
	return Adjustment{}, nil
}

func (f *Form) revalidateSelections() Adjustment {
	var adj Adjustment
	cat, ok := Lookup(f.Fields.AdmissionFor)
	for _, category := range Categories {
		list := subjectsFor(&f.Fields, category)
		kept := pq.StringArray{}
		for _, subject := range *list {
			if ok && cat.Offers(category, subject) && len(kept) < cat.Limit(category) {
				kept = append(kept, subject)
				continue
			}
			adj.DroppedSubjects = append(adj.DroppedSubjects, Selection{Category: category, Subject: subject})
		}
		*list = kept
	}
	if ok && len(cat.Streams) > 0 && f.Fields.Stream != "" && !cat.HasStream(f.Fields.Stream) {
		adj.ClearedStream = f.Fields.Stream
		f.Fields.Stream = ""
	}
	return adj
}

// ToggleSubject adds subject to category when absent and removes it when
// present. It reports whether the subject is selected afterwards.
func (f *Form) ToggleSubject(category Category, subject string) (bool, error) {
	if err := f.editable(); err != nil {
		return false, err
	}
	if !category.Valid() {
		return false, &ValidationError{Field: string(category), Err: ErrUnknownField}
	}
	cat, ok := Lookup(f.Fields.AdmissionFor)
	if !ok {
		return false, &ValidationError{Field: FieldAdmissionFor, Err: ErrLevelRequired}
	}
	list := subjectsFor(&f.Fields, category)
	for i, s := range *list {
		if s == subject {
			*list = append((*list)[:i:i], (*list)[i+1:]...)
			return false, nil
		}
	}
	field := subjectFieldNames[category]
	if !cat.Offers(category, subject) {
		return false, &ValidationError{Field: field, Err: fmt.Errorf("%s %w", subject, ErrNotOffered)}
	}
	if len(*list) >= cat.Limit(category) {
		return false, &ValidationError{Field: field, Err: fmt.Errorf("%w: at most %d subjects", ErrLimitReached, cat.Limit(category))}
	}
	*list = append(*list, subject)
	return true, nil
}

// SetDeclaration records acceptance of the declaration at index.
func (f *Form) SetDeclaration(index int, accepted bool) error {
	if err := f.editable(); err != nil {
		return err
	}
	if index < 0 || index >= DeclarationCount {
		return &ValidationError{Field: "declarations", Err: ErrInvalidDeclaration}
	}
	f.Declarations[index] = accepted
	return nil
}

// ChoosePhoto attaches photo metadata to the draft.
func (f *Form) ChoosePhoto(photo Photo) error {
	if err := f.editable(); err != nil {
		return err
	}
	if photo.Size <= 0 {
		return &ValidationError{Field: "photo", Err: ErrInvalidPhoto}
	}
	f.Photo = &photo
	return nil
}

// ClearPhoto removes the chosen photo.
func (f *Form) ClearPhoto() error {
	if err := f.editable(); err != nil {
		return err
	}
	f.Photo = nil
	return nil
}

// AllRequiredFilled reports whether every required field has a value.
func (f *Form) AllRequiredFilled() bool {
	return len(MissingFields(f.Fields)) == 0
}

// MissingRequirements lists the fields, photo and declarations still needed
// before stage one can be submitted.
func (f *Form) MissingRequirements() []string {
	missing := MissingFields(f.Fields)
	if f.Photo == nil {
		missing = append(missing, "photo")
	}
	for i, accepted := range f.Declarations {
		if !accepted {
			missing = append(missing, fmt.Sprintf("declaration %d", i+1))
		}
	}
	return missing
}

// CanSubmitStage1 reports whether the draft satisfies every stage one gate.
func (f *Form) CanSubmitStage1() bool {
	return len(f.MissingRequirements()) == 0
}

// BeginSubmit moves the form into the submitting state. A form stuck in
// submitting may begin again; the submission token keeps the retry idempotent.
func (f *Form) BeginSubmit() error {
	if f.State != StateEditing && f.State != StateSubmitting {
		return fmt.Errorf("%w: cannot submit from %s", ErrInvalidState, f.State)
	}
	if missing := f.MissingRequirements(); len(missing) > 0 {
		return &IncompleteError{Missing: missing}
	}
	f.State = StateSubmitting
	return nil
}

// CompleteSubmit records the created application id and opens stage two.
func (f *Form) CompleteSubmit(applicationID string) error {
	if f.State != StateSubmitting {
		return fmt.Errorf("%w: cannot complete submit from %s", ErrInvalidState, f.State)
	}
	if applicationID == "" {
		return fmt.Errorf("%w: empty application id", ErrInvalidState)
	}
	f.ApplicationID = applicationID
	f.State = StateAwaitingDocuments
	return nil
}

// FailSubmit returns a submitting form to editing with its values intact.
func (f *Form) FailSubmit() {
	if f.State == StateSubmitting {
		f.State = StateEditing
	}
}

// Finish completes the flow. The document checklist is advisory.
func (f *Form) Finish() error {
	if f.State != StateAwaitingDocuments {
		return fmt.Errorf("%w: cannot finish from %s", ErrInvalidState, f.State)
	}
	f.State = StateComplete
	return nil
}

// Reset clears everything and starts a fresh draft under a new token.
func (f *Form) Reset(submissionToken string) {
	*f = *NewForm(submissionToken)
}

// Persisted returns the field set written to the applications table.
func (f *Form) Persisted() models.ApplicationFields {
	fields := f.Fields
	fields.LangSubjects = append(pq.StringArray{}, fields.LangSubjects...)
	fields.NonLangSubjects = append(pq.StringArray{}, fields.NonLangSubjects...)
	fields.AddSubjects = append(pq.StringArray{}, fields.AddSubjects...)
	return fields
}

// MissingFields lists required fields that are blank for the given values.
// Stream is required unless the level says otherwise and study center
// details are required for center based channels.
func MissingFields(fields models.ApplicationFields) []string {
	values := textFields(&fields)
	var missing []string
	for _, name := range requiredFields {
		var value string
		if name == FieldAdmissionFor {
			value = string(fields.AdmissionFor)
		} else {
			value = *values[name]
		}
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}

	cat, ok := Lookup(fields.AdmissionFor)
	if (!ok || cat.StreamRequired) && strings.TrimSpace(fields.Stream) == "" {
		missing = append(missing, FieldStream)
	}
	if ok {
		for _, category := range cat.Required {
			if len(*subjectsFor(&fields, category)) == 0 {
				missing = append(missing, subjectFieldNames[category])
			}
		}
	}
	if fields.AdmissionChannel.RequiresCenter() {
		if strings.TrimSpace(fields.CenterName) == "" {
			missing = append(missing, FieldCenterName)
		}
		if strings.TrimSpace(fields.CenterCode) == "" {
			missing = append(missing, FieldCenterCode)
		}
	}
	return missing
}

// Validate checks a complete field set, as used when an admin saves an edit.
func Validate(fields models.ApplicationFields) error {
	if missing := MissingFields(fields); len(missing) > 0 {
		return &IncompleteError{Missing: missing}
	}
	cat, ok := Lookup(fields.AdmissionFor)
	if !ok {
		return &ValidationError{Field: FieldAdmissionFor, Err: ErrNotOffered}
	}
	if !validChannel(fields.AdmissionChannel) {
		return &ValidationError{Field: FieldAdmissionChannel, Err: ErrNotOffered}
	}
	if len(cat.Streams) > 0 && !cat.HasStream(fields.Stream) {
		return &ValidationError{Field: FieldStream, Err: ErrNotOffered}
	}
	for _, category := range Categories {
		list := *subjectsFor(&fields, category)
		field := subjectFieldNames[category]
		if len(list) > cat.Limit(category) {
			return &ValidationError{Field: field, Err: fmt.Errorf("%w: at most %d subjects", ErrLimitReached, cat.Limit(category))}
		}
		seen := make(map[string]struct{}, len(list))
		for _, subject := range list {
			if !cat.Offers(category, subject) {
				return &ValidationError{Field: field, Err: fmt.Errorf("%s %w", subject, ErrNotOffered)}
			}
			if _, dup := seen[subject]; dup {
				return &ValidationError{Field: field, Err: fmt.Errorf("%s selected twice", subject)}
			}
			seen[subject] = struct{}{}
		}
	}
	return nil
}

func validChannel(c models.AdmissionChannel) bool {
	switch c {
	case "", models.ChannelDirect, models.ChannelStudyCenter, models.ChannelCoordinator:
		return true
	}
	return false
}

func subjectsFor(fields *models.ApplicationFields, category Category) *pq.StringArray {
	switch category {
	case CategoryLanguage:
		return &fields.LangSubjects
	case CategoryNonLanguage:
		return &fields.NonLangSubjects
	default:
		return &fields.AddSubjects
	}
}

// textFields maps plain string fields to their storage. Typed fields such as
// the admission level and channel are handled by UpdateField directly.
func textFields(f *models.ApplicationFields) map[string]*string {
	return map[string]*string{
		FieldStudentName:      &f.StudentName,
		FieldFatherName:       &f.FatherName,
		FieldMotherName:       &f.MotherName,
		FieldDOB:              &f.DOB,
		FieldGender:           &f.Gender,
		FieldNationality:      &f.Nationality,
		FieldCaste:            &f.Caste,
		FieldReligion:         &f.Religion,
		FieldMaritalStatus:    &f.MaritalStatus,
		FieldStream:           &f.Stream,
		FieldPermanentAddress: &f.PermanentAddress,
		FieldPermanentPin:     &f.PermanentPin,
		FieldPresentAddress:   &f.PresentAddress,
		FieldPresentPin:       &f.PresentPin,
		FieldMobile:           &f.Mobile,
		FieldEmail:            &f.Email,
		FieldAadhaar:          &f.Aadhaar,
		FieldExamName:         &f.ExamName,
		FieldBoard:            &f.Board,
		FieldYearOfPassing:    &f.YearOfPassing,
		FieldRollNumber:       &f.RollNumber,
		FieldMarks:            &f.Marks,
		FieldPercentage:       &f.Percentage,
		FieldSession:          &f.Session,
		FieldMedium:           &f.Medium,
		FieldMode:             &f.Mode,
		FieldCenterName:       &f.CenterName,
		FieldCenterCode:       &f.CenterCode,
		FieldState:            &f.State,
		FieldDistrict:         &f.District,
	}
}
