package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"
)

// Character limits for document excerpts and transcript answers.
const (
	AnalysisExcerptChars = 3000
	ContextExcerptChars  = 2000
	SummaryAnswerChars   = 100

	maxAnswerRunes = 10000
)

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	loadOnce  sync.Once
	loadErr   error
	templates *template.Template
)

// Persona is the examiner voice shared by every prompt.
const Persona = `You are a professional academic examiner with a friendly yet formal demeanor.
Your role is to:
- Ask insightful questions about documents
- Evaluate answers constructively
- Provide specific, actionable feedback
- Acknowledge good answers without over-praising
- Be encouraging but maintain academic rigor
Keep responses concise and focused.`

// FocusTopics are the thematic angles questions progress through.
var FocusTopics = []string{
	"the problem statement and motivation - what problem does this address and why is it important?",
	"the scope and boundaries of the project - what is included and what is explicitly out of scope?",
	"the objectives and expected outcomes - what specific goals are being pursued?",
	"the methodology and approach - how will the objectives be achieved?",
	"the innovation, feasibility, and potential impact - what makes this unique and realistic?",
}

// FocusFor returns the focus topic for a question index. Indexes past the
// end reuse the last topic.
func FocusFor(index int) string {
	return FocusTopics[min(max(index, 0), len(FocusTopics)-1)]
}

// Exchange is one answered question in a transcript.
type Exchange struct {
	Question string
	Answer   string
}

// AnalysisData holds template data for the document analysis prompt.
type AnalysisData struct {
	Persona string
	Excerpt string
}

// QuestionData holds template data for the question prompt.
type QuestionData struct {
	Persona  string
	Analysis string
	Excerpt  string
	History  []Exchange
	Focus    string
}

// RephraseData holds template data for the rephrase prompt.
type RephraseData struct {
	Persona  string
	Question string
	Excerpt  string
}

// EvalData holds template data for the answer evaluation prompt.
type EvalData struct {
	Persona  string
	Excerpt  string
	Question string
	Answer   string
}

// SummaryEntry is one graded exchange in the final summary.
type SummaryEntry struct {
	Question   string
	Answer     string
	Evaluation string
	Marks      int
}

// SummaryData holds template data for the final summary prompt.
type SummaryData struct {
	Persona    string
	Analysis   string
	Entries    []SummaryEntry
	Total      int
	Max        int
	Percentage float64
}

func load() error {
	loadOnce.Do(func() {
		templates, loadErr = template.New("prompts").Funcs(template.FuncMap{
			"inc": func(i int) int { return i + 1 },
		}).ParseFS(templateFS, "templates/*.tmpl")
		if loadErr != nil {
			loadErr = fmt.Errorf("parse prompt templates: %w", loadErr)
		}
	})
	return loadErr
}

func execute(name string, data any) (string, error) {
	if err := load(); err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("execute %s: %w", name, err)
	}
	return buf.String(), nil
}

// BuildAnalysisPrompt builds the document analysis prompt.
func BuildAnalysisPrompt(documentText string) (string, error) {
	return execute("analyze.tmpl", AnalysisData{
		Persona: Persona,
		Excerpt: Excerpt(documentText, AnalysisExcerptChars),
	})
}

// BuildQuestionPrompt builds the prompt for a fresh question at index.
// history pairs each answered question with its answer, in order.
func BuildQuestionPrompt(analysis, documentText string, history []Exchange, index int) (string, error) {
	sanitized := make([]Exchange, len(history))
	for i, h := range history {
		sanitized[i] = Exchange{Question: h.Question, Answer: sanitizeAnswer(h.Answer)}
	}
	return execute("question.tmpl", QuestionData{
		Persona:  Persona,
		Analysis: analysis,
		Excerpt:  Excerpt(documentText, ContextExcerptChars),
		History:  sanitized,
		Focus:    FocusFor(index),
	})
}

// BuildRephrasePrompt builds the prompt that restates question more clearly.
func BuildRephrasePrompt(question, documentText string) (string, error) {
	return execute("rephrase.tmpl", RephraseData{
		Persona:  Persona,
		Question: question,
		Excerpt:  Excerpt(documentText, ContextExcerptChars),
	})
}

// BuildEvalPrompt builds the rubric evaluation prompt for one answer.
func BuildEvalPrompt(documentText, question, answer string) (string, error) {
	return execute("evaluate.tmpl", EvalData{
		Persona:  Persona,
		Excerpt:  Excerpt(documentText, ContextExcerptChars),
		Question: question,
		Answer:   sanitizeAnswer(answer),
	})
}

// BuildSummaryPrompt builds the final assessment prompt.
func BuildSummaryPrompt(analysis string, entries []SummaryEntry, total, maxMarks int, percentage float64) (string, error) {
	trimmed := make([]SummaryEntry, len(entries))
	for i, e := range entries {
		e.Answer = Excerpt(sanitizeAnswer(e.Answer), SummaryAnswerChars)
		trimmed[i] = e
	}
	return execute("summary.tmpl", SummaryData{
		Persona:    Persona,
		Analysis:   analysis,
		Entries:    trimmed,
		Total:      total,
		Max:        maxMarks,
		Percentage: percentage,
	})
}

// Excerpt returns the first n characters of s.
func Excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		runes = runes[:maxAnswerRunes]
		answer = string(runes) + "\n\n[Answer truncated due to length]"
	}

	return answer
}
