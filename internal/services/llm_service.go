package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"go.uber.org/zap"

	"github.com/justsurfingit/campus-job-board/internal/errors"
	"github.com/justsurfingit/campus-job-board/internal/models"
)

// CoverLetterRequest is the context a cover letter is written from.
type CoverLetterRequest struct {
	Student *models.Student
	Job     *models.Job
	CV      *models.CV
}

// CoverLetterGenerator writes the cover letter for an application.
// It runs synchronously inside the submission; an error aborts the submission.
type CoverLetterGenerator interface {
	Generate(ctx context.Context, req CoverLetterRequest) (string, error)
}

type LLMService struct {
	// Held so the client is not recreated per request
	Client llms.Model
	log    *zap.SugaredLogger
}

// NewLLMService initializes a Gemini-backed cover letter writer.
func NewLLMService(ctx context.Context, apiKey, model string, log *zap.SugaredLogger) (*LLMService, error) {
	if apiKey == "" {
		return nil, errors.WithHint(errors.New("LLM API key is empty"), "set GEMINI_API_KEY or JOBBOARD_LLM_API_KEY")
	}

	llm, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(model),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Gemini client")
	}

	return &LLMService{Client: llm, log: log}, nil
}

const coverLetterPrompt = `
You are writing a short cover letter for a university student applying to a job through the campus careers office.

### INSTRUCTIONS:
1. Write 3 short paragraphs, plain text, no markdown, no placeholders in brackets.
2. Mention the student's studies and the skills that overlap with the job.
3. Do not invent experience, employers or qualifications that are not listed below.
4. Sign off with the student's name.

### STUDENT:
Name: %s
Institution: %s
Field of study: %s
Skills: %s
CV title: %s

### JOB:
Title: %s
Company: %s
Required skills: %s
Preferred skills: %s
Description:
%s
`

// maxPromptDescription bounds the job description in bytes.
const maxPromptDescription = 8000

// truncateUTF8 cuts s to at most limit bytes without splitting a rune.
func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// Generate asks the model for a cover letter.
func (s *LLMService) Generate(ctx context.Context, req CoverLetterRequest) (string, error) {
	description := truncateUTF8(req.Job.Description, maxPromptDescription)

	prompt := fmt.Sprintf(coverLetterPrompt,
		req.Student.Name, req.Student.Institution, req.Student.FieldOfStudy, req.Student.Skills, req.CV.Title,
		req.Job.Title, req.Job.CompanyName(), req.Job.RequiredSkills, req.Job.PreferredSkills, description,
	)

	resp, err := llms.GenerateFromSinglePrompt(ctx, s.Client, prompt, llms.WithTemperature(0.4))
	if err != nil {
		return "", errors.Wrap(err, "cover letter generation failed")
	}

	letter := strings.TrimSpace(resp)
	if letter == "" {
		return "", errors.New("cover letter generation returned an empty response")
	}
	s.log.Debugw("Generated cover letter", "student_id", req.Student.ID, "job_id", req.Job.ID, "chars", len(letter))
	return letter, nil
}

// TemplateCoverLetters writes a fixed-form cover letter. Used when no LLM is configured.
type TemplateCoverLetters struct{}

func (TemplateCoverLetters) Generate(_ context.Context, req CoverLetterRequest) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Dear Hiring Manager,\n\n")
	fmt.Fprintf(&sb, "I am writing to apply for the %s position at %s.", req.Job.Title, req.Job.CompanyName())
	if req.Student.FieldOfStudy != "" || req.Student.Institution != "" {
		fmt.Fprintf(&sb, " I am studying %s at %s.", fallback(req.Student.FieldOfStudy, "my degree"), fallback(req.Student.Institution, "university"))
	}
	if skills := strings.TrimSpace(req.Student.Skills); skills != "" {
		fmt.Fprintf(&sb, " My skills include %s.", strings.ReplaceAll(skills, ",", ", "))
	}
	fmt.Fprintf(&sb, "\n\nMy CV (%s) is linked below. Thank you for considering my application.\n\nKind regards,\n%s", fallback(req.CV.Title, "attached"), req.Student.Name)
	return sb.String(), nil
}

func fallback(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
