// Package examiner drives one examination session: document analysis,
// question generation with lifelines, answer evaluation and the final summary.
package examiner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/pavelanni/docexam/internal/i18n"
	"github.com/pavelanni/docexam/internal/llm"
	"github.com/pavelanni/docexam/internal/llm/prompts"
	"github.com/pavelanni/docexam/internal/model"
)

// DefaultMarks is recorded when an evaluation carries no usable marks marker.
const DefaultMarks = 5

var marksRegex = regexp.MustCompile(`\*\*Marks:\s*(\d+)/10\*\*`)

var (
	ErrInvalidQuestionCount = errors.New("question count out of range")
	ErrNoLifelines          = errors.New("no lifelines remaining")
	ErrUnknownLifeline      = errors.New("unknown lifeline kind")
	ErrNoActiveQuestion     = errors.New("no unanswered question to apply a lifeline to")
	ErrLifelinePending      = errors.New("a lifeline is already pending")
)

// Generator produces text for a prompt at a tier. *llm.Gateway implements it.
type Generator interface {
	Generate(ctx context.Context, prompt string, tier llm.Tier) (llm.Result, error)
}

// Evaluation is the outcome of Evaluate.
type Evaluation struct {
	Text     string
	Marks    int
	Recorded bool // false for informational replies that changed nothing
}

// Examiner owns one session. Its methods must not be called concurrently.
type Examiner struct {
	gen     Generator
	session *model.Session
}

// New creates an examiner with a fresh session.
func New(gen Generator) *Examiner {
	return &Examiner{gen: gen, session: model.NewSession()}
}

// Session returns the session state. Callers must treat it as read-only.
func (e *Examiner) Session() *model.Session {
	return e.session
}

// Reset replaces the session with a fresh one.
func (e *Examiner) Reset() {
	e.session = model.NewSession()
	slog.Debug("session reset", "session_id", e.session.ID)
}

// Configure sets the number of questions and resets the lifeline budget.
// History is kept. Counts outside [1,10], or below the number of questions
// already issued, are rejected without changing state.
func (e *Examiner) Configure(total int) error {
	if total < model.MinQuestions || total > model.MaxQuestions {
		return fmt.Errorf("%w: %d not in [%d,%d]", ErrInvalidQuestionCount, total, model.MinQuestions, model.MaxQuestions)
	}
	if total < e.session.CurrentIndex {
		return fmt.Errorf("%w: %d questions already issued", ErrInvalidQuestionCount, e.session.CurrentIndex)
	}
	if e.session.CurrentIndex > 0 {
		slog.Warn("reconfiguring a session in progress", "issued", e.session.CurrentIndex, "total", total)
	}
	e.session.SetTotalQuestions(total)
	return nil
}

// Analyze stores the document and asks for a short analysis of it.
func (e *Examiner) Analyze(ctx context.Context, documentText, documentTitle string) (string, error) {
	e.session.DocumentText = documentText
	e.session.DocumentTitle = documentTitle

	prompt, err := prompts.BuildAnalysisPrompt(documentText)
	if err != nil {
		return "", err
	}
	res, err := e.gen.Generate(ctx, prompt, llm.TierStandard)
	if err != nil {
		return "", err
	}
	e.session.DocumentAnalysis = res.Text
	return res.Text, nil
}

// NextQuestion issues the next question. ok is false, with a nil error, once
// every configured question has been issued. A pending lifeline is honoured
// before anything else.
func (e *Examiner) NextQuestion(ctx context.Context) (question string, ok bool, err error) {
	s := e.session

	if s.AwaitingLifeline {
		switch s.PendingLifeline {
		case model.LifelineRephrase:
			return e.rephrase(ctx)
		case model.LifelineNew:
			return e.replace(ctx)
		default:
			s.AwaitingLifeline = false
		}
	}

	if s.Complete() {
		return "", false, nil
	}
	return e.generateQuestion(ctx)
}

func (e *Examiner) generateQuestion(ctx context.Context) (string, bool, error) {
	s := e.session

	prompt, err := prompts.BuildQuestionPrompt(s.DocumentAnalysis, s.DocumentText, e.history(), s.CurrentIndex)
	if err != nil {
		return "", false, err
	}
	res, err := e.gen.Generate(ctx, prompt, llm.TierStandard)
	if err != nil {
		return "", false, err
	}

	q := strings.TrimSpace(res.Text)
	s.Questions = append(s.Questions, q)
	s.CurrentIndex++
	slog.Debug("question issued", "session_id", s.ID, "index", s.CurrentIndex, "backend", res.Backend)
	return q, true, nil
}

// history pairs answered questions with their answers.
func (e *Examiner) history() []prompts.Exchange {
	s := e.session
	n := min(len(s.Questions), len(s.Answers))
	out := make([]prompts.Exchange, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, prompts.Exchange{Question: s.Questions[i], Answer: s.Answers[i]})
	}
	return out
}

// rephrase restates the last question in place.
func (e *Examiner) rephrase(ctx context.Context) (string, bool, error) {
	s := e.session
	s.AwaitingLifeline = false
	defer func() { s.PendingLifeline = "" }()

	prompt, err := prompts.BuildRephrasePrompt(s.LastQuestion(), s.DocumentText)
	if err != nil {
		return "", false, err
	}
	res, err := e.gen.Generate(ctx, prompt, llm.TierStandard)
	if err != nil {
		return "", false, err
	}

	q := strings.TrimSpace(res.Text)
	if len(s.Questions) > 0 {
		s.Questions[len(s.Questions)-1] = q
	}
	slog.Debug("question rephrased", "session_id", s.ID, "index", s.CurrentIndex)
	return q, true, nil
}

// replace swaps the last question for a fresh one at the same position.
// The session is only touched once generation succeeds; on failure the
// lifeline stays pending so the call can be retried.
func (e *Examiner) replace(ctx context.Context) (string, bool, error) {
	s := e.session
	index := max(s.CurrentIndex-1, 0)

	prompt, err := prompts.BuildQuestionPrompt(s.DocumentAnalysis, s.DocumentText, e.history(), index)
	if err != nil {
		return "", false, err
	}
	res, err := e.gen.Generate(ctx, prompt, llm.TierStandard)
	if err != nil {
		return "", false, err
	}

	q := strings.TrimSpace(res.Text)
	if len(s.Questions) > 0 {
		s.Questions[len(s.Questions)-1] = q
	} else {
		s.Questions = append(s.Questions, q)
		s.CurrentIndex++
	}
	s.AwaitingLifeline = false
	s.PendingLifeline = ""
	slog.Debug("question replaced", "session_id", s.ID, "index", s.CurrentIndex, "backend", res.Backend)
	return q, true, nil
}

// UseLifeline spends a lifeline on the current unanswered question. The next
// NextQuestion call then rephrases or replaces it.
func (e *Examiner) UseLifeline(kind model.LifelineKind) error {
	s := e.session
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownLifeline, kind)
	}
	if s.AwaitingLifeline {
		return ErrLifelinePending
	}
	if s.LifelinesRemaining <= 0 {
		return ErrNoLifelines
	}
	if !s.HasOpenQuestion() {
		return ErrNoActiveQuestion
	}

	s.LifelinesRemaining--
	s.LifelinesUsed = append(s.LifelinesUsed, model.LifelineUse{
		QuestionIndex: s.CurrentIndex - 1,
		Kind:          kind,
	})
	s.AwaitingLifeline = true
	s.PendingLifeline = kind
	slog.Info("lifeline used", "session_id", s.ID, "kind", kind, "remaining", s.LifelinesRemaining)
	return nil
}

// Evaluate grades answer against the last question. When no question is
// waiting for an answer it returns an informational Evaluation and records
// nothing. On a generation failure the answer is not kept.
func (e *Examiner) Evaluate(ctx context.Context, answer string) (Evaluation, error) {
	s := e.session
	switch {
	case len(s.Questions) == 0:
		return Evaluation{Text: i18n.T(ctx, "NoQuestionAsked")}, nil
	case s.AwaitingLifeline:
		return Evaluation{Text: i18n.T(ctx, "LifelinePending")}, nil
	case !s.HasOpenQuestion():
		return Evaluation{Text: i18n.T(ctx, "QuestionAlreadyAnswered")}, nil
	}

	s.Answers = append(s.Answers, answer)
	text, marks, err := e.grade(ctx, s.LastQuestion(), answer)
	if err != nil {
		s.Answers = s.Answers[:len(s.Answers)-1]
		return Evaluation{}, err
	}

	s.Evaluations = append(s.Evaluations, text)
	s.Marks = append(s.Marks, marks)
	slog.Debug("answer evaluated", "session_id", s.ID, "index", len(s.Answers), "marks", marks)
	return Evaluation{Text: text, Marks: marks, Recorded: true}, nil
}

func (e *Examiner) grade(ctx context.Context, question, answer string) (string, int, error) {
	prompt, err := prompts.BuildEvalPrompt(e.session.DocumentText, question, answer)
	if err != nil {
		return "", 0, err
	}
	res, err := e.gen.Generate(ctx, prompt, llm.TierStandard)
	if err != nil {
		return "", 0, err
	}
	text, marks := parseMarks(res.Text)
	return text, marks, nil
}

// parseMarks extracts the score from an evaluation. A missing or out of range
// marker scores DefaultMarks and the canonical marker is prepended.
func parseMarks(evaluation string) (string, int) {
	if m := marksRegex.FindStringSubmatch(evaluation); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n >= 0 && n <= model.MaxMarks {
			return strings.TrimSpace(evaluation), n
		}
	}
	return strings.TrimSpace(marksMarker(DefaultMarks) + "\n\n" + evaluation), DefaultMarks
}

func marksMarker(n int) string {
	return fmt.Sprintf("**Marks: %d/%d**", n, model.MaxMarks)
}

// Finalize asks the premium tier for a closing assessment and returns it
// under a results banner. After a successful call the stored assessment is
// reused and no further generation happens.
func (e *Examiner) Finalize(ctx context.Context) (string, error) {
	s := e.session
	if len(s.Questions) == 0 {
		return i18n.T(ctx, "NoQuestionsInSession"), nil
	}

	tally := model.TallyMarks(s.Marks)
	if s.FinalEvaluation != "" {
		return composeReport(ctx, tally, s.FinalEvaluation), nil
	}

	n := min(len(s.Questions), len(s.Answers), len(s.Evaluations), len(s.Marks))
	entries := make([]prompts.SummaryEntry, 0, n)
	for i := 0; i < n; i++ {
		entries = append(entries, prompts.SummaryEntry{
			Question:   s.Questions[i],
			Answer:     s.Answers[i],
			Evaluation: s.Evaluations[i],
			Marks:      s.Marks[i],
		})
	}

	prompt, err := prompts.BuildSummaryPrompt(s.DocumentAnalysis, entries, tally.Total, tally.Max, tally.Percentage)
	if err != nil {
		return "", err
	}
	res, err := e.gen.Generate(ctx, prompt, llm.TierPremium)
	if err != nil {
		return "", err
	}

	s.FinalEvaluation = strings.TrimSpace(res.Text)
	slog.Info("session finalized",
		"session_id", s.ID,
		"total", tally.Total,
		"max", tally.Max,
		"status", tally.Status,
		"backend", res.Backend,
	)
	return composeReport(ctx, tally, s.FinalEvaluation), nil
}

func composeReport(ctx context.Context, tally model.Tally, assessment string) string {
	status := i18n.T(ctx, "ResultsStatusFail")
	if tally.Status == model.StatusPass {
		status = i18n.T(ctx, "ResultsStatusPass")
	}

	var sb strings.Builder
	sb.WriteString(i18n.T(ctx, "ResultsHeading") + "\n\n")
	sb.WriteString(i18n.Td(ctx, "ResultsTotal", map[string]any{
		"Total":      tally.Total,
		"Max":        tally.Max,
		"Percentage": fmt.Sprintf("%.1f", tally.Percentage),
	}) + "\n")
	sb.WriteString(status + "\n\n---\n\n")
	sb.WriteString(i18n.T(ctx, "ResultsFinal") + "\n\n")
	sb.WriteString(assessment)
	return sb.String()
}
