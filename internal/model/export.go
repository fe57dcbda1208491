package model

import "time"

// SessionReport is the flat export view of a session.
type SessionReport struct {
	SessionID        string    `json:"session_id" yaml:"session_id"`
	StartedAt        time.Time `json:"started_at" yaml:"started_at"`
	DocumentTitle    string    `json:"document_title" yaml:"document_title"`
	DocumentAnalysis string    `json:"document_analysis" yaml:"document_analysis"`
	TotalQuestions   int       `json:"total_questions" yaml:"total_questions"`
	QuestionsAsked   int       `json:"questions_asked" yaml:"questions_asked"`
	Questions        []string  `json:"questions" yaml:"questions"`
	Answers          []string  `json:"answers" yaml:"answers"`
	Evaluations      []string  `json:"evaluations" yaml:"evaluations"`
	Marks            []int     `json:"marks" yaml:"marks"`
	TotalMarks       int       `json:"total_marks" yaml:"total_marks"`
	MaxMarks         int       `json:"max_marks" yaml:"max_marks"`
	Percentage       float64   `json:"percentage" yaml:"percentage"`
	Status           Status    `json:"status" yaml:"status"`
	FinalEvaluation  string    `json:"final_evaluation" yaml:"final_evaluation"`
	LifelinesUsed    int       `json:"lifelines_used" yaml:"lifelines_used"`
	LifelinesTotal   int       `json:"lifelines_total" yaml:"lifelines_total"`

	LifelineLog []LifelineUse `json:"lifeline_log,omitempty" yaml:"lifeline_log,omitempty"`
}

// ReportSummary is one row of the report archive listing.
type ReportSummary struct {
	SessionID     string    `json:"session_id" yaml:"session_id"`
	DocumentTitle string    `json:"document_title" yaml:"document_title"`
	Percentage    float64   `json:"percentage" yaml:"percentage"`
	Status        Status    `json:"status" yaml:"status"`
	ArchivedAt    time.Time `json:"archived_at" yaml:"archived_at"`
}
