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

	"github.com/joho/godotenv"
	"github.com/line/line-bot-sdk-go/v8/linebot"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/kkdai/linebot-receipt-gemini/internal/receipt"
	"github.com/kkdai/linebot-receipt-gemini/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Load .env if present; real deployments set env vars directly
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded configuration from .env file")
	}

	fs := ff.NewFlagSet("linebot-receipt-gemini")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		channelSecret = fs.StringLong("channel-secret", "", "LINE channel secret")
		channelToken  = fs.StringLong("channel-token", "", "LINE channel access token")
		modelProvider = fs.StringLong("model", "gemini", "Model provider: 'gemini' or 'ollama'")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "gemini-1.5-flash", "Google Gemini model name")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama vision model name (e.g., llava, qwen2-vl)")
		storeType     = fs.StringLong("store", "firebase", "Record store: 'firebase' or 'bolt'")
		firebaseURL   = fs.StringLong("firebase-url", "", "Firebase Realtime Database URL (or set FIREBASE_URL env var)")
		firebaseAuth  = fs.StringLong("firebase-auth", "", "Firebase auth token (optional)")
		dbPath        = fs.StringLong("db", "receipts.db", "Bolt database file path (store=bolt)")
		archivePath   = fs.StringLong("archive", "", "Directory for archiving receipt images (optional)")
		noTranslate   = fs.BoolLong("no-translate", "Disable the zh-TW translation pass")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("LINEBOT"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if *channelSecret == "" || *channelToken == "" {
		slog.Error("LINE credentials are required. Set --channel-secret and --channel-token flags or LINEBOT_CHANNEL_SECRET / LINEBOT_CHANNEL_TOKEN environment variables")
		os.Exit(1)
	}

	// Initialize record store
	var store receipt.RecordStore
	var err error
	switch *storeType {
	case "firebase":
		url := *firebaseURL
		if url == "" {
			url = os.Getenv("FIREBASE_URL")
		}
		if url == "" {
			slog.Error("Firebase URL is required. Set --firebase-url flag or FIREBASE_URL environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Firebase record store...")
		store, err = receipt.NewFirebaseStore(url, *firebaseAuth)
		if err != nil {
			slog.Error("Failed to initialize Firebase store", "error", err)
			os.Exit(1)
		}
	case "bolt":
		slog.Info("Initializing Bolt record store...", "path", *dbPath)
		store, err = receipt.NewBoltStore(*dbPath)
		if err != nil {
			slog.Error("Failed to initialize Bolt store", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid store type", "type", *storeType, "valid", "firebase or bolt")
		os.Exit(1)
	}
	defer store.Close()

	// Initialize model provider; both providers implement Scanner and Completer
	var scanner scanning.Scanner
	var completer scanning.Completer
	switch *modelProvider {
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini...", "model", *geminiModel)
		gemini, err := scanning.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
		scanner, completer = gemini, gemini
	case "ollama":
		slog.Info("Initializing Ollama...", "url", *ollamaURL, "model", *ollamaModel)
		ollama, err := scanning.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
		scanner, completer = ollama, ollama
	default:
		slog.Error("Invalid model provider", "type", *modelProvider, "valid", "gemini or ollama")
		os.Exit(1)
	}
	defer scanner.Close()

	// Optional image archive
	var archive receipt.Archive
	if *archivePath != "" {
		slog.Info("Initializing image archive...", "path", *archivePath)
		archive, err = receipt.NewLocalArchive(*archivePath)
		if err != nil {
			slog.Error("Failed to initialize archive", "error", err)
			os.Exit(1)
		}
	}

	// Initialize LINE client
	bot, err := linebot.New(*channelSecret, *channelToken)
	if err != nil {
		slog.Error("Failed to initialize LINE client", "error", err)
		os.Exit(1)
	}

	service := receipt.NewServiceWithOptions(store, scanner, completer, archive, !*noTranslate)
	server := receipt.NewServer(service, receipt.NewLineMessenger(bot), *channelSecret)

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Forced shutdown", "error", err)
	}
}
