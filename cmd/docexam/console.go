package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/pavelanni/docexam/internal/examiner"
	"github.com/pavelanni/docexam/internal/i18n"
	"github.com/pavelanni/docexam/internal/llm"
	"github.com/pavelanni/docexam/internal/model"
)

const maxLineBytes = 1 << 20

// console runs one examination over a line-oriented reader and writer.
type console struct {
	ex      *examiner.Examiner
	in      *bufio.Scanner
	out     io.Writer
	timeout time.Duration
}

func newConsole(ex *examiner.Examiner, in io.Reader, out io.Writer, timeout time.Duration) *console {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &console{ex: ex, in: sc, out: out, timeout: timeout}
}

// call bounds a single generation request.
func (c *console) call(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *console) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}

func (c *console) failure(ctx context.Context, err error) {
	c.printf("%s\n\n", llm.Describe(ctx, err))
}

// run analyzes the document, then alternates questions and answers until
// the questions run out, input ends, or the examinee quits. It returns the
// final report text, or "" when the closing assessment failed.
func (c *console) run(ctx context.Context, text, title string) (string, error) {
	actx, cancel := c.call(ctx)
	analysis, err := c.ex.Analyze(actx, text, title)
	cancel()
	if err != nil {
		return "", err
	}
	c.printf("%s\n%s\n\n%s\n\n", i18n.T(ctx, "DocumentAnalysis"), strings.TrimSpace(analysis), i18n.T(ctx, "ConsoleHelp"))

	if done := c.next(ctx); !done {
		c.loop(ctx)
	}

	fctx, cancel := c.call(ctx)
	defer cancel()
	out, err := c.ex.Finalize(fctx)
	if err != nil {
		c.failure(ctx, err)
		return "", nil
	}
	c.printf("%s\n", out)
	return out, nil
}

func (c *console) loop(ctx context.Context) {
	for c.in.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(c.in.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := c.command(ctx, line); quit {
				return
			}
			continue
		}
		if done := c.answer(ctx, line); done {
			return
		}
	}
	if err := c.in.Err(); err != nil {
		slog.Warn("read input", "error", err)
	}
}

// command handles a slash command. It reports whether the session should end.
func (c *console) command(ctx context.Context, line string) bool {
	name := strings.ToLower(strings.Fields(line)[0])
	switch name {
	case "/quit", "/exit":
		return true
	case "/status":
		c.status(ctx)
	case "/next":
		if s := c.ex.Session(); s.HasOpenQuestion() && !s.AwaitingLifeline {
			c.printf("%s\n\n", i18n.T(ctx, "QuestionAlreadyAnswered"))
			return false
		}
		return c.next(ctx)
	case "/rephrase", "/new":
		kind := model.LifelineRephrase
		if name == "/new" {
			kind = model.LifelineNew
		}
		if err := c.ex.UseLifeline(kind); err != nil {
			c.lifelineError(ctx, err)
			return false
		}
		return c.next(ctx)
	default:
		c.printf("%s\n%s\n\n", i18n.Td(ctx, "UnknownCommand", map[string]any{"Command": name}), i18n.T(ctx, "ConsoleHelp"))
	}
	return false
}

func (c *console) lifelineError(ctx context.Context, err error) {
	switch {
	case errors.Is(err, examiner.ErrNoLifelines):
		c.printf("%s\n\n", i18n.T(ctx, "NoLifelinesLeft"))
	case errors.Is(err, examiner.ErrLifelinePending):
		c.printf("%s\n\n", i18n.T(ctx, "LifelinePending"))
	case errors.Is(err, examiner.ErrNoActiveQuestion):
		c.printf("%s\n\n", i18n.T(ctx, "LifelineNeedsQuestion"))
	default:
		c.printf("%v\n\n", err)
	}
}

func (c *console) status(ctx context.Context) {
	s := c.ex.Session()
	issued, total := s.Progress()
	remaining, _ := s.LifelineStatus()
	c.printf("%s\n%s\n\n",
		i18n.Td(ctx, "QuestionN", map[string]any{"Number": issued, "Total": total}),
		i18n.Tp(ctx, "LifelinesLeft", remaining),
	)
}

// answer evaluates line and moves on. It reports whether the session is over.
func (c *console) answer(ctx context.Context, line string) bool {
	ectx, cancel := c.call(ctx)
	ev, err := c.ex.Evaluate(ectx, line)
	cancel()
	if err != nil {
		c.failure(ctx, err)
		return false
	}
	c.printf("%s\n\n", ev.Text)
	if !ev.Recorded {
		return false
	}
	return c.next(ctx)
}

// next prints the next question. It reports whether every question has
// been issued and answered.
func (c *console) next(ctx context.Context) bool {
	qctx, cancel := c.call(ctx)
	q, ok, err := c.ex.NextQuestion(qctx)
	cancel()
	if err != nil {
		c.failure(ctx, err)
		return false
	}
	if !ok {
		c.printf("%s\n\n", i18n.T(ctx, "ExamComplete"))
		return true
	}
	issued, total := c.ex.Session().Progress()
	c.printf("**%s**\n%s\n\n", i18n.Td(ctx, "QuestionN", map[string]any{"Number": issued, "Total": total}), q)
	return false
}
