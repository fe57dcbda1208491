package model

import (
	"time"

	"github.com/google/uuid"
)

// Question count bounds and defaults for a session.
const (
	MinQuestions     = 1
	MaxQuestions     = 10
	DefaultQuestions = 5
	MaxMarks         = 10
	PassPercentage   = 50.0

	DefaultTitle = "Unknown Document"
)

// LifelineKind represents the kind of help an examinee can request.
type LifelineKind string

const (
	// LifelineRephrase asks for a clearer wording of the current question.
	LifelineRephrase LifelineKind = "rephrase"
	// LifelineNew replaces the current question with a fresh one.
	LifelineNew LifelineKind = "new"
)

// Valid reports whether k is a known lifeline kind.
func (k LifelineKind) Valid() bool {
	return k == LifelineRephrase || k == LifelineNew
}

// Status is the pass/fail outcome of a session.
type Status string

const (
	StatusPass Status = "PASS"
	StatusFail Status = "FAIL"
)

// LifelineUse is one entry of the lifeline audit log.
type LifelineUse struct {
	QuestionIndex int          `json:"question_index" yaml:"question_index"`
	Kind          LifelineKind `json:"kind" yaml:"kind"`
}

// Session is the mutable record of one examination.
// It is owned by a single examiner and must not be shared between goroutines.
type Session struct {
	ID        string
	StartedAt time.Time

	DocumentText     string
	DocumentTitle    string
	DocumentAnalysis string

	Questions   []string
	Answers     []string
	Evaluations []string
	Marks       []int

	CurrentIndex   int
	TotalQuestions int

	LifelinesTotal     int
	LifelinesRemaining int
	LifelinesUsed      []LifelineUse
	AwaitingLifeline   bool
	PendingLifeline    LifelineKind

	FinalEvaluation string
}

// NewSession returns a session with default settings.
func NewSession() *Session {
	s := &Session{
		ID:            uuid.NewString(),
		StartedAt:     time.Now(),
		DocumentTitle: DefaultTitle,
	}
	s.SetTotalQuestions(DefaultQuestions)
	return s
}

// LifelinesFor returns the lifeline budget for a question count:
// 20% of the questions, at least one.
func LifelinesFor(total int) int {
	return max(1, total*2/10)
}

// SetTotalQuestions sets the question target and resets the lifeline budget.
// The caller validates the range.
func (s *Session) SetTotalQuestions(total int) {
	s.TotalQuestions = total
	s.LifelinesTotal = LifelinesFor(total)
	s.LifelinesRemaining = s.LifelinesTotal
}

// Progress returns the number of questions issued and the target.
func (s *Session) Progress() (int, int) {
	return s.CurrentIndex, s.TotalQuestions
}

// Complete reports whether every configured question has been issued.
func (s *Session) Complete() bool {
	return s.CurrentIndex >= s.TotalQuestions
}

// LifelineStatus returns remaining and total lifelines.
func (s *Session) LifelineStatus() (int, int) {
	return s.LifelinesRemaining, s.LifelinesTotal
}

// LastQuestion returns the most recently issued question, or "".
func (s *Session) LastQuestion() string {
	if len(s.Questions) == 0 {
		return ""
	}
	return s.Questions[len(s.Questions)-1]
}

// HasOpenQuestion reports whether the last issued question still awaits an answer.
func (s *Session) HasOpenQuestion() bool {
	return len(s.Questions) > len(s.Answers)
}

// Tally is the aggregate score over a list of marks.
type Tally struct {
	Total      int
	Max        int
	Percentage float64
	Status     Status
}

// TallyMarks sums marks out of MaxMarks each.
// An empty list yields 0% and a failing status.
func TallyMarks(marks []int) Tally {
	t := Tally{Max: MaxMarks * len(marks)}
	for _, m := range marks {
		t.Total += m
	}
	if t.Max > 0 {
		t.Percentage = float64(t.Total) * 100 / float64(t.Max)
	}
	t.Status = StatusFail
	if t.Percentage >= PassPercentage {
		t.Status = StatusPass
	}
	return t
}
