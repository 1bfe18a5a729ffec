package analysis

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/jobhound/backend/internal/models"
)

// JobExtraction is the structured form of a pasted job listing.
type JobExtraction struct {
	Company        string            `json:"company"`
	Title          string            `json:"title"`
	Location       string            `json:"location"`
	SalaryMin      *float64          `json:"salary_min"`
	SalaryMax      *float64          `json:"salary_max"`
	SalaryCurrency string            `json:"salary_currency"`
	EmploymentType string            `json:"employment_type"`
	Description    string            `json:"description"`
	Requirements   models.StringList `json:"requirements"`
	Benefits       models.StringList `json:"benefits"`
	HardSkills     models.StringList `json:"hard_skills"`
	SoftSkills     models.StringList `json:"soft_skills"`
	Confidence     *float64          `json:"confidence"`
}

// ParseJobExtraction decodes model output for a job listing. List fields go
// through StringList normalization; a result with neither title nor company
// is rejected.
func ParseJobExtraction(raw string) (*JobExtraction, error) {
	body := ExtractJSON(raw)
	if body == "" {
		return nil, ErrEmptyResponse
	}

	var out JobExtraction
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedJSON, err)
	}

	out.Company = strings.TrimSpace(out.Company)
	out.Title = strings.TrimSpace(out.Title)
	if out.Company == "" && out.Title == "" {
		return nil, fmt.Errorf("%w: neither title nor company found", ErrSchemaViolation)
	}
	if out.SalaryMin != nil && out.SalaryMax != nil && *out.SalaryMin > *out.SalaryMax {
		out.SalaryMin, out.SalaryMax = out.SalaryMax, out.SalaryMin
	}

	c := out.confidence()
	out.Confidence = &c
	return &out, nil
}

// confidence clamps the model's self-reported confidence to [0,1], or
// estimates it from field coverage when absent.
func (j *JobExtraction) confidence() float64 {
	if j.Confidence != nil && !math.IsNaN(*j.Confidence) {
		return math.Min(1, math.Max(0, *j.Confidence))
	}

	filled, total := 0, 6
	for _, ok := range []bool{
		j.Company != "",
		j.Title != "",
		j.Location != "",
		j.Description != "",
		len(j.Requirements) > 0,
		len(j.HardSkills) > 0,
	} {
		if ok {
			filled++
		}
	}
	return math.Round(float64(filled)/float64(total)*100) / 100
}
