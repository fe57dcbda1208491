// Package report flattens a session into its exportable form.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/pavelanni/docexam/internal/model"
)

// Format is an export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat accepts "json", "yaml" and "yml".
func ParseFormat(s string) (Format, error) {
	switch s {
	case "json", "":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

// Build returns the export view of s. It does not modify s.
func Build(s *model.Session) model.SessionReport {
	tally := model.TallyMarks(s.Marks)
	return model.SessionReport{
		SessionID:        s.ID,
		StartedAt:        s.StartedAt,
		DocumentTitle:    s.DocumentTitle,
		DocumentAnalysis: s.DocumentAnalysis,
		TotalQuestions:   s.TotalQuestions,
		QuestionsAsked:   len(s.Questions),
		Questions:        slices.Clone(s.Questions),
		Answers:          slices.Clone(s.Answers),
		Evaluations:      slices.Clone(s.Evaluations),
		Marks:            slices.Clone(s.Marks),
		TotalMarks:       tally.Total,
		MaxMarks:         tally.Max,
		Percentage:       tally.Percentage,
		Status:           tally.Status,
		FinalEvaluation:  s.FinalEvaluation,
		LifelinesUsed:    len(s.LifelinesUsed),
		LifelinesTotal:   s.LifelinesTotal,
		LifelineLog:      slices.Clone(s.LifelinesUsed),
	}
}

// Encode writes v as JSON or YAML. v is a report or a list of reports.
func Encode(w io.Writer, v any, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	}
	return fmt.Errorf("unsupported export format %q", format)
}
