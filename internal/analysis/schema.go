// Package analysis holds the resume/job match schema, the prompts sent to
// the model and the strict parser that turns raw model output into a
// validated result.
package analysis

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

type FeedbackStatus string

const (
	StatusPass    FeedbackStatus = "pass"
	StatusFail    FeedbackStatus = "fail"
	StatusWarning FeedbackStatus = "warning"
)

type FeedbackItem struct {
	Issue  string         `json:"issue" validate:"required"`
	Status FeedbackStatus `json:"status" validate:"required,oneof=pass fail warning"`
	Tip    string         `json:"tip,omitempty"`
}

// CategoryScores are 0-100 inclusive. Pointers distinguish a real 0 from a
// missing field.
type CategoryScores struct {
	Searchability *float64 `json:"searchability" validate:"required,min=0,max=100"`
	HardSkills    *float64 `json:"hardSkills" validate:"required,min=0,max=100"`
	SoftSkills    *float64 `json:"softSkills" validate:"required,min=0,max=100"`
	RecruiterTips *float64 `json:"recruiterTips" validate:"required,min=0,max=100"`
	Formatting    *float64 `json:"formatting" validate:"required,min=0,max=100"`
}

// CategoryFeedback arrays must be present; an empty array is allowed.
type CategoryFeedback struct {
	Searchability []FeedbackItem `json:"searchability" validate:"required,dive"`
	HardSkills    []FeedbackItem `json:"hardSkills" validate:"required,dive"`
	SoftSkills    []FeedbackItem `json:"softSkills" validate:"required,dive"`
	RecruiterTips []FeedbackItem `json:"recruiterTips" validate:"required,dive"`
	Formatting    []FeedbackItem `json:"formatting" validate:"required,dive"`
	Experience    []FeedbackItem `json:"experience" validate:"required,dive"`
}

type ScanResult struct {
	OverallMatch    string   `json:"overallMatch" validate:"required"`
	HardSkills      []string `json:"hardSkills" validate:"required"`
	SoftSkills      []string `json:"softSkills" validate:"required"`
	ExperienceMatch string   `json:"experienceMatch" validate:"required"`
	Qualifications  []string `json:"qualifications" validate:"required"`
	MissingKeywords []string `json:"missingKeywords" validate:"required"`

	MatchScore       *float64          `json:"matchScore" validate:"required,min=0,max=100"`
	CategoryScores   *CategoryScores   `json:"categoryScores" validate:"required"`
	CategoryFeedback *CategoryFeedback `json:"categoryFeedback" validate:"required"`
}

var (
	// ErrEmptyResponse means the model returned nothing usable.
	ErrEmptyResponse = errors.New("empty model response")
	// ErrMalformedJSON means the extracted body is not valid JSON for the schema.
	ErrMalformedJSON = errors.New("malformed JSON in model response")
	// ErrSchemaViolation means the JSON parsed but failed validation.
	ErrSchemaViolation = errors.New("model response does not match schema")
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks a decoded result against the schema. It never repairs
// input; any violation rejects the whole result.
func Validate(r *ScanResult) error {
	if r == nil {
		return fmt.Errorf("%w: result is nil", ErrSchemaViolation)
	}

	err := validatorInstance().Struct(r)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}

	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, describe(fe))
	}
	return fmt.Errorf("%w: %s", ErrSchemaViolation, strings.Join(problems, "; "))
}

func describe(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:] // drop "ScanResult."
	}

	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min", "max":
		return field + " must be between 0 and 100"
	case "oneof":
		return fmt.Sprintf("%s must be one of pass|fail|warning (got %v)", field, fe.Value())
	default:
		return field + " failed " + fe.Tag()
	}
}
