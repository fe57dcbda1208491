package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pavelanni/docexam/internal/examiner"
	appI18n "github.com/pavelanni/docexam/internal/i18n"
	"github.com/pavelanni/docexam/internal/llm"
	"github.com/pavelanni/docexam/internal/model"
	"github.com/pavelanni/docexam/internal/report"
	"github.com/pavelanni/docexam/internal/store"
)

func main() {
	loadDotEnv()
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// loadDotEnv reads .env from the working directory if present.
// Variables already set in the environment win.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "warning: reading .env: %v\n", err)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "docexam",
		Short: "Oral examination on a document, driven by generative models",
	}

	exam := examCmd()
	root.AddCommand(exam, exportCmd())

	// Make "exam" the default when no subcommand is given.
	root.RunE = exam.RunE

	// Register exam flags on root so bare `docexam --document ...` still works.
	root.Flags().AddFlagSet(exam.Flags())

	return root
}

func examCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exam",
		Short: "Run an interactive examination on a text document",
		RunE:  runExam,
	}
	f := cmd.Flags()
	f.StringP("document", "f", "", "Path to the plain-text document (required)")
	f.StringP("title", "t", "", "Document title (default: "+model.DefaultTitle+")")
	f.IntP("questions", "n", model.DefaultQuestions, fmt.Sprintf("Number of questions (%d-%d)", model.MinQuestions, model.MaxQuestions))
	f.String("db", "docexam.db", "Report archive: SQLite path or postgres:// DSN")
	f.Bool("no-archive", false, "Do not archive the final report")
	f.String("provider", llm.ProviderGemini, "Generation provider (gemini, openai)")
	f.String("api-key", "", "API key for the generation service (or set DOCEXAM_API_KEY / GEMINI_API_KEY)")
	f.String("base-url", "", "OpenAI-compatible API base URL (openai provider only)")
	f.StringSlice("models", nil, "Standard models as name[=limit], primary first (repeatable)")
	f.String("premium-model", "", "Premium model for the final assessment as name[=limit]")
	f.Duration("timeout", 0, "Per-request timeout (0 = none)")
	f.StringP("lang", "l", "en", "Output language (en, ru)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export archived reports as JSON or YAML",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "docexam.db", "Report archive: SQLite path or postgres:// DSN")
	f.String("id", "", "Session ID to export (\"latest\" for the most recent, empty for all)")
	f.Bool("list", false, "Export report summaries instead of full reports")
	f.String("format", "json", "Output format (json, yaml)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("DOCEXAM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("api-key", "DOCEXAM_API_KEY", "GEMINI_API_KEY")

	v.SetConfigName("docexam")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/docexam")
	v.AddConfigPath("/etc/docexam")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// gatewayConfig assembles the gateway settings from flags, env and config.
func gatewayConfig(v *viper.Viper) (llm.Config, error) {
	cfg := llm.Config{
		Provider: strings.ToLower(strings.TrimSpace(v.GetString("provider"))),
		APIKey:   v.GetString("api-key"),
		BaseURL:  v.GetString("base-url"),
	}
	standard, err := llm.ParseModelSpecs(v.GetStringSlice("models"))
	if err != nil {
		return cfg, fmt.Errorf("parse --models: %w", err)
	}
	cfg.Standard = standard
	if p := strings.TrimSpace(v.GetString("premium-model")); p != "" {
		cfg.Premium, err = llm.ParseModelSpec(p)
		if err != nil {
			return cfg, fmt.Errorf("parse --premium-model: %w", err)
		}
	}
	return cfg, nil
}

func runExam(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = appI18n.WithLang(ctx, lang)

	docPath := v.GetString("document")
	if docPath == "" {
		return errors.New("--document is required")
	}
	text, err := os.ReadFile(docPath)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}
	title := strings.TrimSpace(v.GetString("title"))
	if title == "" {
		title = model.DefaultTitle
	}

	cfg, err := gatewayConfig(v)
	if err != nil {
		return err
	}
	gw, err := llm.NewFromConfig(ctx, cfg)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), llm.Describe(ctx, err))
		return err
	}
	defer gw.Close()

	ex := examiner.New(gw)
	if err := ex.Configure(v.GetInt("questions")); err != nil {
		return err
	}

	slog.Info("starting examination",
		"session_id", ex.Session().ID,
		"document", docPath,
		"title", title,
		"questions", ex.Session().TotalQuestions,
		"provider", cfg.Provider,
		"backend", gw.ActiveBackend(),
		"lang", lang,
	)

	con := newConsole(ex, cmd.InOrStdin(), cmd.OutOrStdout(), v.GetDuration("timeout"))
	if _, err := con.run(ctx, string(text), title); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), llm.Describe(ctx, err))
		return err
	}

	if v.GetBool("no-archive") || len(ex.Session().Questions) == 0 {
		return nil
	}
	return archive(ctx, cmd.OutOrStdout(), v.GetString("db"), report.Build(ex.Session()))
}

func archive(ctx context.Context, w io.Writer, dsn string, r model.SessionReport) error {
	db, err := store.New(dsn)
	if err != nil {
		return fmt.Errorf("open report archive: %w", err)
	}
	defer db.Close()

	if err := db.SaveReport(r); err != nil {
		return fmt.Errorf("archive report: %w", err)
	}
	slog.Info("report archived", "session_id", r.SessionID, "status", r.Status, "percentage", r.Percentage)
	_, _ = fmt.Fprintln(w, appI18n.Td(ctx, "ReportArchived", map[string]any{"ID": r.SessionID}))
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	format, err := report.ParseFormat(strings.ToLower(v.GetString("format")))
	if err != nil {
		return err
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open report archive: %w", err)
	}
	defer db.Close()

	payload, err := exportPayload(db, v.GetString("id"), v.GetBool("list"))
	if err != nil {
		return err
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if err := report.Encode(w, payload, format); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// exportPayload selects what to export: one report, the latest, every
// report, or the summary listing.
func exportPayload(db *store.Store, id string, list bool) (any, error) {
	switch {
	case list:
		summaries, err := db.ListReports()
		if err != nil {
			return nil, fmt.Errorf("list reports: %w", err)
		}
		return summaries, nil
	case id == "latest":
		return db.LatestReport()
	case id != "":
		return db.GetReport(id)
	}

	summaries, err := db.ListReports()
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	reports := make([]model.SessionReport, 0, len(summaries))
	for _, rs := range summaries {
		r, err := db.GetReport(rs.SessionID)
		if err != nil {
			return nil, fmt.Errorf("get report %s: %w", rs.SessionID, err)
		}
		reports = append(reports, r)
	}
	return reports, nil
}
