package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/shopspring/decimal"

	"github.com/zombor/expense-scanner/internal/auth"
	"github.com/zombor/expense-scanner/internal/expense"
	"github.com/zombor/expense-scanner/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

type config struct {
	port               int
	dbPath             string
	jwtSecret          string
	tokenTTL           time.Duration
	bcryptCost         int
	engine             string
	tesseractLang      string
	geminiKey          string
	geminiModel        string
	ollamaURL          string
	ollamaModel        string
	recognitionTimeout time.Duration
	threshold          int
	adaptiveBlock      int
	adaptiveOffset     int
	minHeight          int
	categoriesPath     string
	logLevel           string
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("expense-scanner")
	var (
		port               = fs.IntLong("port", 8000, "HTTP server port")
		dbPath             = fs.StringLong("db", "expense-scanner.db", "Database file path")
		jwtSecret          = fs.StringLong("jwt-secret", "", "Secret used to sign access tokens (required)")
		tokenTTL           = fs.DurationLong("token-ttl", 30*time.Minute, "Access token lifetime")
		bcryptCost         = fs.IntLong("bcrypt-cost", 12, "bcrypt cost for password hashes")
		engine             = fs.StringLong("engine", "tesseract", "Text recognition engine: 'tesseract', 'gemini' or 'ollama'")
		tesseractLang      = fs.StringLong("tesseract-lang", "eng", "Comma separated Tesseract languages")
		geminiKey          = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel        = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL          = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel        = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2-vl)")
		recognitionTimeout = fs.DurationLong("recognition-timeout", 60*time.Second, "Limit for a single recognition call (0 disables)")
		threshold          = fs.IntLong("threshold", 150, "Simple threshold cutoff (0-255)")
		adaptiveBlock      = fs.IntLong("adaptive-block", 11, "Adaptive threshold neighbourhood size (odd)")
		adaptiveOffset     = fs.IntLong("adaptive-offset", 2, "Adaptive threshold offset")
		minHeight          = fs.IntLong("min-height", 0, "Upscale images shorter than this many pixels (0 disables)")
		categoriesPath     = fs.StringLong("categories", "", "YAML keyword table replacing the built-in categories")
		logLevel           = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		showVersion        = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("EXPENSE_SCANNER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	cfg := config{
		port:               *port,
		dbPath:             *dbPath,
		jwtSecret:          *jwtSecret,
		tokenTTL:           *tokenTTL,
		bcryptCost:         *bcryptCost,
		engine:             *engine,
		tesseractLang:      *tesseractLang,
		geminiKey:          *geminiKey,
		geminiModel:        *geminiModel,
		ollamaURL:          *ollamaURL,
		ollamaModel:        *ollamaModel,
		recognitionTimeout: *recognitionTimeout,
		threshold:          *threshold,
		adaptiveBlock:      *adaptiveBlock,
		adaptiveOffset:     *adaptiveOffset,
		minHeight:          *minHeight,
		categoriesPath:     *categoriesPath,
		logLevel:           *logLevel,
	}
	if err := run(cfg); err != nil {
		slog.Error("Exiting", "error", err)
		os.Exit(1)
	}
}

func run(cfg config) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.logLevel)); err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// Amounts leave the API as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	if cfg.threshold < 0 || cfg.threshold > 255 {
		return fmt.Errorf("threshold must be between 0 and 255, got %d", cfg.threshold)
	}

	tokens, err := auth.NewTokens(cfg.jwtSecret, cfg.tokenTTL)
	if err != nil {
		return fmt.Errorf("configuring tokens: %w", err)
	}

	table := scanning.DefaultKeywordTable()
	if cfg.categoriesPath != "" {
		slog.Info("Loading keyword table", "path", cfg.categoriesPath)
		if table, err = scanning.LoadKeywordTable(cfg.categoriesPath); err != nil {
			return err
		}
	}
	classifier, err := scanning.NewClassifier(table)
	if err != nil {
		return err
	}

	source, err := newTextSource(cfg)
	if err != nil {
		return err
	}
	defer source.Close()

	preprocessor := scanning.NewPreprocessor(scanning.PreprocessOptions{
		Threshold: uint8(cfg.threshold),
		BlockSize: cfg.adaptiveBlock,
		Offset:    cfg.adaptiveOffset,
		MinHeight: cfg.minHeight,
	})
	pipeline := scanning.NewPipeline(preprocessor, source, classifier,
		scanning.WithRecognitionTimeout(cfg.recognitionTimeout),
	)

	slog.Info("Initializing database...", "path", cfg.dbPath)
	db, err := expense.NewBoltDB(cfg.dbPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	service := expense.NewService(db, pipeline, tokens, cfg.bcryptCost)
	server := expense.NewServer(service)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf(":%d", cfg.port)
	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "engine", cfg.engine, "version", version)
	return server.Run(ctx, addr)
}

// newTextSource builds the configured recognition engine
func newTextSource(cfg config) (scanning.TextSource, error) {
	switch cfg.engine {
	case "tesseract":
		langs := strings.Split(cfg.tesseractLang, ",")
		slog.Info("Initializing Tesseract...", "languages", langs)
		return scanning.NewTesseract(langs...), nil
	case "gemini":
		apiKey := cfg.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini...", "model", cfg.geminiModel)
		source, err := scanning.NewGemini(apiKey, cfg.geminiModel)
		if err != nil {
			return nil, fmt.Errorf("initializing Gemini: %w", err)
		}
		return source, nil
	case "ollama":
		slog.Info("Initializing Ollama...", "url", cfg.ollamaURL, "model", cfg.ollamaModel)
		source, err := scanning.NewOllama(cfg.ollamaURL, cfg.ollamaModel)
		if err != nil {
			return nil, fmt.Errorf("initializing Ollama: %w", err)
		}
		return source, nil
	default:
		return nil, fmt.Errorf("invalid engine %q: want tesseract, gemini or ollama", cfg.engine)
	}
}
