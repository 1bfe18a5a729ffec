package analysis

import (
	"fmt"
	"strings"
)

// DefaultTemperature keeps scoring stable across runs.
const DefaultTemperature float32 = 0.2

// MaxJobListingChars bounds the pasted text sent for job extraction.
const MaxJobListingChars = 20000

const scanPromptTemplate = `You are an expert recruiter and applicant tracking system (ATS) analyst.
Compare the attached resume against the job description below and score how well the candidate matches.

Return ONLY a JSON object with exactly this shape:
{
  "overallMatch": string,             // 2-3 sentence summary of the fit
  "hardSkills": [string],             // hard skills from the job found in the resume
  "softSkills": [string],             // soft skills from the job found in the resume
  "experienceMatch": string,          // how the candidate's experience lines up
  "qualifications": [string],         // qualifications the candidate meets
  "missingKeywords": [string],        // important job keywords absent from the resume
  "matchScore": number,               // 0-100
  "categoryScores": {
    "searchability": number,          // 0-100
    "hardSkills": number,             // 0-100
    "softSkills": number,             // 0-100
    "recruiterTips": number,          // 0-100
    "formatting": number              // 0-100
  },
  "categoryFeedback": {
    "searchability": [{"issue": string, "status": "pass"|"fail"|"warning", "tip": string}],
    "hardSkills":    [...same item shape...],
    "softSkills":    [...],
    "recruiterTips": [...],
    "formatting":    [...],
    "experience":    [...]
  }
}

Fill every field. Use empty arrays when nothing applies; never omit a key or use null.
Base every statement only on the resume and the job description.

JOB DESCRIPTION:
%s
`

// ScanPrompt builds the match-analysis prompt. The resume travels as an
// attachment; resumeText is appended only when no file bytes are available.
func ScanPrompt(jobText, resumeText string) string {
	p := fmt.Sprintf(scanPromptTemplate, strings.TrimSpace(jobText))
	if strings.TrimSpace(resumeText) != "" {
		p += "\nRESUME:\n" + strings.TrimSpace(resumeText) + "\n"
	}
	return p
}

const resumeTextPrompt = `Extract all text from the attached resume.
Preserve the reading order and section headings. Return plain text only, no commentary and no Markdown.`

func ResumeTextPrompt() string { return resumeTextPrompt }

const jobExtractionTemplate = `You are a job data extraction assistant. Analyze the job posting below and extract structured data.
Ignore navigation menus, footers, similar-job lists and advertisements.

Return ONLY a JSON object:
{
  "company": string,
  "title": string,
  "location": string,                 // or "Remote"
  "salary_min": number|null,          // yearly, in salary_currency
  "salary_max": number|null,
  "salary_currency": string,          // ISO code, empty if unknown
  "employment_type": string,          // full-time|part-time|contract|internship|temporary, empty if unknown
  "description": string,              // clean summary of responsibilities
  "requirements": [string],
  "benefits": [string],
  "hard_skills": [string],
  "soft_skills": [string],
  "confidence": number                // 0-1, how complete and unambiguous the posting was
}

If a value is missing use null or an empty string/array. Do not guess.

JOB POSTING:
%s
`

// JobExtractionPrompt builds the job-listing prompt, truncating very long
// input.
func JobExtractionPrompt(text string) string {
	text = strings.TrimSpace(text)
	if r := []rune(text); len(r) > MaxJobListingChars {
		text = string(r[:MaxJobListingChars])
	}
	return fmt.Sprintf(jobExtractionTemplate, text)
}
