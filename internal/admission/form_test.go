package admission

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dbos-admissions-api/internal/models"
)

func fillTenthForm(t *testing.T) *Form {
	t.Helper()
	f := NewForm("token-1")
	values := map[string]string{
		FieldStudentName: "Asha Kumari", FieldFatherName: "Ramesh Kumar", FieldMotherName: "Sita Devi",
		FieldDOB: "2008-04-12", FieldGender: "Female", FieldNationality: "Indian", FieldCaste: "General",
		FieldReligion: "Hindu", FieldMaritalStatus: "Unmarried",
		FieldPermanentAddress: "12 Lake Road", FieldPermanentPin: "110001",
		FieldPresentAddress: "12 Lake Road", FieldPresentPin: "110001",
		FieldMobile: "9876543210", FieldEmail: "asha@example.com", FieldAadhaar: "123412341234",
		FieldExamName: "Class IX", FieldBoard: "CBSE", FieldYearOfPassing: "2023", FieldRollNumber: "R-77",
		FieldMarks: "420", FieldPercentage: "84", FieldSession: "2024-25", FieldMedium: "Hindi", FieldMode: "Regular",
	}
	for name, value := range values {
		_, err := f.UpdateField(name, value)
		require.NoError(t, err, name)
	}
	_, err := f.UpdateField(FieldAdmissionFor, string(models.LevelSecondary))
	require.NoError(t, err)
	_, err = f.ToggleSubject(CategoryLanguage, "English")
	require.NoError(t, err)
	_, err = f.ToggleSubject(CategoryNonLanguage, "Mathematics")
	require.NoError(t, err)
	return f
}

func acceptAll(t *testing.T, f *Form) {
	t.Helper()
	for i := 0; i < DeclarationCount; i++ {
		require.NoError(t, f.SetDeclaration(i, true))
	}
}

func TestUpdateFieldUnknownName(t *testing.T) {
	f := NewForm("t")
	_, err := f.UpdateField("favouriteColour", "blue")
	require.Error(t, err)
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "favouriteColour", vErr.Field)
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestUpdateFieldRejectsUnknownLevelAndChannel(t *testing.T) {
	f := NewForm("t")
	_, err := f.UpdateField(FieldAdmissionFor, "Graduate")
	assert.ErrorIs(t, err, ErrNotOffered)
	_, err = f.UpdateField(FieldAdmissionChannel, "Walk-in")
	assert.ErrorIs(t, err, ErrNotOffered)
	_, err = f.UpdateField(FieldAdmissionChannel, string(models.ChannelCoordinator))
	assert.NoError(t, err)
}

func TestToggleSubjectRequiresLevel(t *testing.T) {
	f := NewForm("t")
	_, err := f.ToggleSubject(CategoryLanguage, "English")
	assert.ErrorIs(t, err, ErrLevelRequired)
}

func TestToggleSubjectNeverExceedsLimit(t *testing.T) {
	for _, cat := range Levels() {
		f := NewForm("t")
		_, err := f.UpdateField(FieldAdmissionFor, string(cat.Level))
		require.NoError(t, err)
		for _, category := range Categories {
			limit := cat.Limit(category)
			for i, subject := range cat.Subjects[category] {
				selected, err := f.ToggleSubject(category, subject)
				if i < limit {
					require.NoError(t, err)
					assert.True(t, selected)
					continue
				}
				assert.ErrorIs(t, err, ErrLimitReached, "%s %s", cat.Level, category)
				assert.False(t, selected)
			}
			assert.Len(t, *subjectsFor(&f.Fields, category), limit)
		}
	}
}

func TestToggleSubjectRemovesAndRejectsUnoffered(t *testing.T) {
	f := NewForm("t")
	_, err := f.UpdateField(FieldAdmissionFor, string(models.LevelSecondary))
	require.NoError(t, err)

	selected, err := f.ToggleSubject(CategoryLanguage, "Hindi")
	require.NoError(t, err)
	assert.True(t, selected)
	selected, err = f.ToggleSubject(CategoryLanguage, "Hindi")
	require.NoError(t, err)
	assert.False(t, selected)
	assert.Empty(t, f.Fields.LangSubjects)

	_, err = f.ToggleSubject(CategoryNonLanguage, "Physics")
	assert.ErrorIs(t, err, ErrNotOffered)
}

func TestCanSubmitStage1TruthTable(t *testing.T) {
	cases := []struct {
		name         string
		fields       bool
		photo        bool
		declarations bool
		want         bool
	}{
		{"all satisfied", true, true, true, true},
		{"missing photo", true, false, true, false},
		{"missing declaration", true, true, false, false},
		{"missing field", false, true, true, false},
		{"nothing", false, false, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := fillTenthForm(t)
			if !tc.fields {
				_, err := f.UpdateField(FieldAadhaar, "")
				require.NoError(t, err)
			}
			if tc.photo {
				require.NoError(t, f.ChoosePhoto(Photo{FileName: "me.jpg", ContentType: "image/jpeg", Size: 1024}))
			}
			acceptAll(t, f)
			if !tc.declarations {
				require.NoError(t, f.SetDeclaration(5, false))
			}
			assert.Equal(t, tc.want, f.CanSubmitStage1())
			assert.Equal(t, tc.fields, f.AllRequiredFilled())
		})
	}
}

func TestMissingRequirementsListsEverything(t *testing.T) {
	f := fillTenthForm(t)
	require.NoError(t, f.SetDeclaration(0, true))
	missing := f.MissingRequirements()
	assert.Contains(t, missing, "photo")
	assert.Contains(t, missing, "declaration 2")
	assert.NotContains(t, missing, "declaration 1")
	assert.NotContains(t, missing, FieldStream)
}

func TestLevelChangeRevalidatesStreamAndSubjects(t *testing.T) {
	f := NewForm("t")
	_, err := f.UpdateField(FieldAdmissionFor, string(models.LevelSeniorSecondary))
	require.NoError(t, err)
	_, err = f.UpdateField(FieldStream, "Science")
	require.NoError(t, err)
	_, err = f.ToggleSubject(CategoryNonLanguage, "Physics")
	require.NoError(t, err)
	_, err = f.ToggleSubject(CategoryNonLanguage, "Mathematics")
	require.NoError(t, err)
	_, err = f.ToggleSubject(CategoryLanguage, "English")
	require.NoError(t, err)
	assert.Contains(t, MissingFields(f.Fields), FieldStudentName)
	assert.NotContains(t, MissingFields(f.Fields), FieldStream)

	_, err = f.UpdateField(FieldStream, "")
	require.NoError(t, err)
	assert.Contains(t, MissingFields(f.Fields), FieldStream)

	adj, err := f.UpdateField(FieldAdmissionFor, string(models.LevelSecondary))
	require.NoError(t, err)
	assert.Equal(t, []Selection{{Category: CategoryNonLanguage, Subject: "Physics"}}, adj.DroppedSubjects)
	assert.Equal(t, []string{"Mathematics"}, []string(f.Fields.NonLangSubjects))
	assert.Equal(t, []string{"English"}, []string(f.Fields.LangSubjects))
	assert.NotContains(t, MissingFields(f.Fields), FieldStream)
}

func TestLevelChangeClearsUnknownStream(t *testing.T) {
	f := NewForm("t")
	_, err := f.UpdateField(FieldStream, "Vocational")
	require.NoError(t, err)
	adj, err := f.UpdateField(FieldAdmissionFor, string(models.LevelSeniorSecondary))
	require.NoError(t, err)
	assert.Equal(t, "Vocational", adj.ClearedStream)
	assert.Empty(t, f.Fields.Stream)
}

func TestCenterChannelRequiresCenterDetails(t *testing.T) {
	f := fillTenthForm(t)
	_, err := f.UpdateField(FieldAdmissionChannel, string(models.ChannelStudyCenter))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{FieldCenterName, FieldCenterCode}, MissingFields(f.Fields))

	_, err = f.UpdateField(FieldCenterName, "North Center")
	require.NoError(t, err)
	_, err = f.UpdateField(FieldCenterCode, "NC-01")
	require.NoError(t, err)
	assert.Empty(t, MissingFields(f.Fields))
}

func TestSubmitLifecycle(t *testing.T) {
	f := fillTenthForm(t)
	var incomplete *IncompleteError
	require.True(t, errors.As(f.BeginSubmit(), &incomplete))
	assert.Contains(t, incomplete.Missing, "photo")

	require.NoError(t, f.ChoosePhoto(Photo{FileName: "me.png", Size: 10}))
	acceptAll(t, f)
	require.NoError(t, f.BeginSubmit())
	assert.Equal(t, StateSubmitting, f.State)

	_, err := f.UpdateField(FieldStudentName, "Other")
	assert.ErrorIs(t, err, ErrNotEditable)

	f.FailSubmit()
	assert.Equal(t, StateEditing, f.State)
	assert.Equal(t, "Asha Kumari", f.Fields.StudentName)

	require.NoError(t, f.BeginSubmit())
	require.NoError(t, f.BeginSubmit(), "a stalled submit may be retried")
	require.NoError(t, f.CompleteSubmit("app-1"))
	assert.Equal(t, StateAwaitingDocuments, f.State)
	assert.Equal(t, "app-1", f.ApplicationID)

	assert.ErrorIs(t, f.BeginSubmit(), ErrInvalidState)
	require.NoError(t, f.Finish())
	assert.Equal(t, StateComplete, f.State)
	assert.ErrorIs(t, f.Finish(), ErrInvalidState)

	f.Reset("token-2")
	assert.Equal(t, StateEditing, f.State)
	assert.Empty(t, f.ApplicationID)
	assert.Empty(t, f.Fields.StudentName)
	assert.Nil(t, f.Photo)
	assert.Equal(t, "token-2", f.SubmissionToken)
	assert.False(t, f.Declarations[0])
}

func TestCompleteSubmitRequiresSubmitting(t *testing.T) {
	f := NewForm("t")
	assert.ErrorIs(t, f.CompleteSubmit("app-1"), ErrInvalidState)
}

func TestSetDeclarationBounds(t *testing.T) {
	f := NewForm("t")
	assert.ErrorIs(t, f.SetDeclaration(DeclarationCount, true), ErrInvalidDeclaration)
	assert.ErrorIs(t, f.SetDeclaration(-1, true), ErrInvalidDeclaration)
}

func TestChoosePhotoRejectsEmpty(t *testing.T) {
	f := NewForm("t")
	assert.ErrorIs(t, f.ChoosePhoto(Photo{FileName: "x.jpg"}), ErrInvalidPhoto)
	require.NoError(t, f.ChoosePhoto(Photo{FileName: "x.jpg", Size: 1}))
	require.NoError(t, f.ClearPhoto())
	assert.Nil(t, f.Photo)
}

func TestPersistedCopiesSubjects(t *testing.T) {
	f := fillTenthForm(t)
	fields := f.Persisted()
	fields.LangSubjects[0] = "Changed"
	assert.Equal(t, "English", f.Fields.LangSubjects[0])
}

func TestValidate(t *testing.T) {
	f := fillTenthForm(t)
	require.NoError(t, Validate(f.Persisted()))

	fields := f.Persisted()
	fields.NonLangSubjects = append(fields.NonLangSubjects, "Physics")
	assert.ErrorIs(t, Validate(fields), ErrNotOffered)

	fields = f.Persisted()
	fields.LangSubjects = append(fields.LangSubjects, "Hindi", "Urdu")
	assert.ErrorIs(t, Validate(fields), ErrLimitReached)

	fields = f.Persisted()
	fields.Email = " "
	var incomplete *IncompleteError
	require.True(t, errors.As(Validate(fields), &incomplete))
	assert.Equal(t, []string{FieldEmail}, incomplete.Missing)
}
