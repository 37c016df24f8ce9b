// Package main is the MindLink CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mindhub/mindlink/internal/assistant"
	"github.com/mindhub/mindlink/internal/auth"
	"github.com/mindhub/mindlink/internal/cli"
	"github.com/mindhub/mindlink/internal/config"
	"github.com/mindhub/mindlink/internal/drive"
	"github.com/mindhub/mindlink/internal/editor"
	"github.com/mindhub/mindlink/internal/embedding"
	"github.com/mindhub/mindlink/internal/indexer"
	"github.com/mindhub/mindlink/internal/keyword"
	"github.com/mindhub/mindlink/internal/knowledge"
	"github.com/mindhub/mindlink/internal/llm"
	"github.com/mindhub/mindlink/internal/models"
	"github.com/mindhub/mindlink/internal/progress"
	"github.com/mindhub/mindlink/internal/retrieval"
	"github.com/mindhub/mindlink/internal/server"
	"github.com/mindhub/mindlink/internal/storage"
	"github.com/mindhub/mindlink/internal/vector"
	"github.com/mindhub/mindlink/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/mindlink/config.yaml"

// cliSession is the conversation used by one-shot "ask" invocations.
const cliSession = "cli"

// loadConfig loads config from path. When path is the default, a config.yaml in the current
// directory wins so that running from the project dir uses the project's config.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "reindex":
		runReindex()
	case "ask":
		runAsk()
	case "edit":
		runEdit()
	case "status":
		runStatus()
	case "seed-users":
		runSeedUsers()
	case "check-inactivity":
		runCheckInactivity()
	case "version", "--version", "-v":
		fmt.Printf("mindlink version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// argsReorder moves flags that appear after positional arguments to the front so that
// flag.Parse sees them ("mindlink ask qual o prazo? --output json").
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// joinArgs joins positional args so multi-word input works with or without quotes.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// editRoles converts configured role names, skipping unknown ones.
func editRoles(names []string) []models.Role {
	roles := make([]models.Role, 0, len(names))
	for _, n := range names {
		r := models.Role(strings.ToLower(strings.TrimSpace(n)))
		if r.Valid() {
			roles = append(roles, r)
		}
	}
	return roles
}

// setup loads config and the logger. debug forces debug logging.
func setup(configPath string, debug bool) (*config.Config, *zap.Logger, string) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug || debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return cfg, logger, resolved
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, resolved := setup(*configPath, *debug)
	defer logger.Sync()
	logger.Info("config loaded", zap.String("config_path", resolved), zap.Bool("debug", cfg.Debug || *debug))

	c, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer c.Close()

	if ld, ok := c.Drive.(*drive.LocalDrive); ok && cfg.Drive.Watch {
		if err := c.Knowledge.Watch(ld, cfg.Drive.Extensions, 0); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
	}
	go func() {
		if err := c.Knowledge.Ensure(context.Background()); err != nil {
			logger.Warn("initial index build failed", zap.Error(err))
		}
	}()
	go purgeSessions(c, logger)

	srv := server.NewServer(server.Deps{
		Auth:      c.Auth,
		Assistant: c.Assistant,
		Editor:    c.Editor,
		Knowledge: c.Knowledge,
		Progress:  c.Progress,
		Edits:     c.Storage,
	}, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// purgeSessions deletes expired sessions once an hour for the life of the process.
func purgeSessions(c *Components, logger *zap.Logger) {
	t := time.NewTicker(time.Hour)
	defer t.Stop()
	for range t.C {
		n, err := c.Auth.PurgeSessions(context.Background())
		if err != nil {
			logger.Warn("session purge failed", zap.Error(err))
			continue
		}
		if n > 0 {
			logger.Debug("expired sessions purged", zap.Int64("count", n))
		}
	}
}

func runReindex() {
	fs := flag.NewFlagSet("reindex", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := mustFormat(*output)

	cfg, logger, _ := setup(*configPath, false)
	defer logger.Sync()
	c, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer c.Close()

	stats, err := c.Knowledge.ForceRefresh(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Reindex failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteStats(os.Stdout, stats, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	format := mustFormat(*output)

	question := joinArgs(fs.Args())
	if question == "" {
		fmt.Println("Usage: mindlink ask [flags] <question>")
		os.Exit(1)
	}

	cfg, logger, _ := setup(*configPath, false)
	defer logger.Sync()
	c, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer c.Close()

	ctx := context.Background()
	if err := c.Knowledge.Ensure(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Knowledge base unavailable: %v\n", err)
		os.Exit(1)
	}
	ans, err := c.Assistant.Ask(ctx, cliSession, question)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteAnswer(os.Stdout, ans, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runEdit() {
	fs := flag.NewFlagSet("edit", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	fileID := fs.String("file-id", "", "target file ID")
	fileName := fs.String("file-name", "", "target file name, used when the ID is unknown")
	user := fs.String("user", "cli", "e-mail recorded in the edit log")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	format := mustFormat(*output)

	instruction := joinArgs(fs.Args())
	if instruction == "-" {
		data, err := readStdin()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Read stdin failed: %v\n", err)
			os.Exit(1)
		}
		instruction = data
	}
	if instruction == "" {
		fmt.Println(`Usage: mindlink edit [flags] <instruction | ->`)
		os.Exit(1)
	}

	cfg, logger, _ := setup(*configPath, false)
	defer logger.Sync()
	c, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer c.Close()

	out, err := c.Editor.Apply(context.Background(), editor.Request{
		FileID:      *fileID,
		FileName:    *fileName,
		Instruction: instruction,
		User:        *user,
		Role:        models.RoleAdmin,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Edit failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteOutcome(os.Stdout, out, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := mustFormat(*output)

	cfg, logger, resolved := setup(*configPath, false)
	defer logger.Sync()
	c, err := initializeComponents(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer c.Close()

	st, err := c.Knowledge.Status(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	diskBytes, _ := storage.Footprint(cfg.Storage.DatabasePath, cfg.Storage.BleveIndexPath, cfg.Storage.VectorIndexPath)
	if format == cli.OutputJSON {
		_ = cli.WriteJSON(os.Stdout, map[string]interface{}{
			"config_path":      resolved,
			"index":            st,
			"disk_usage_bytes": diskBytes,
		})
		return
	}
	fmt.Printf("Config:    %s\n", resolved)
	fmt.Printf("Drive:     %s\n", cfg.Drive.Provider)
	fmt.Printf("Embedding: %s (%s, %d dims)\n", cfg.Embedding.Provider, cfg.Embedding.Model, cfg.Embedding.Dimensions)
	fmt.Printf("LLM:       %s (%s)\n", cfg.LLM.Provider, cfg.LLM.Model)
	fmt.Printf("Vectors:   %s\n", cfg.Vector.Backend)
	fmt.Printf("Documents: %d\nChunks:    %d\nVectors:   %d\nKeyword:   %d\n", st.Documents, st.Chunks, st.Vectors, st.KeywordDocs)
	fmt.Printf("Disk:      %s\n", formatBytes(diskBytes))
}

func runSeedUsers() {
	fs := flag.NewFlagSet("seed-users", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	reset := fs.Bool("reset", false, "reset passwords of existing test accounts")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, _ := setup(*configPath, false)
	defer logger.Sync()
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.Error(err))
	}
	defer store.Close()

	svc := auth.New(store, store, nil, auth.OptionsFromConfig(&cfg.Auth), auth.WithLogger(logger))
	results, err := svc.SeedTestAccounts(context.Background(), *reset)
	for _, r := range results {
		state := "updated"
		if r.Created {
			state = "created"
		}
		fmt.Printf("%-8s %-8s %s\n", state, r.Role, r.Email)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Seed failed: %v\n", err)
		os.Exit(1)
	}
}

func runCheckInactivity() {
	fs := flag.NewFlagSet("check-inactivity", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	days := fs.Int("days", 0, "days without submissions (default from config)")
	score := fs.Int("score", 0, "score applied to inactive students (default from config)")
	dryRun := fs.Bool("dry-run", false, "report without recording scores")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := mustFormat(*output)

	cfg, logger, _ := setup(*configPath, false)
	defer logger.Sync()
	if *days <= 0 {
		*days = cfg.Progress.InactivityDays
	}
	if *score == 0 {
		*score = cfg.Progress.InactivityScore
	}
	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.Error(err))
	}
	defer store.Close()

	svc := progress.New(store, store, progress.Options{InactivityDays: cfg.Progress.InactivityDays}, progress.WithLogger(logger))
	report, err := svc.CheckInactivity(context.Background(), *days, *score, *dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Inactivity check failed: %v\n", err)
		os.Exit(1)
	}
	if format == cli.OutputJSON {
		_ = cli.WriteJSON(os.Stdout, report)
		return
	}
	verb := "scored"
	if report.DryRun {
		verb = "would score"
	}
	fmt.Printf("%d inactive student(s) (%d days), %s %d\n", len(report.Students), report.Days, verb, report.Score)
	for _, s := range report.Students {
		since := "never submitted"
		if s.DaysInactive >= 0 {
			since = fmt.Sprintf("%d days", s.DaysInactive)
		}
		fmt.Printf("  %-30s %-16s previous score %d\n", s.Email, since, s.PreviousScore)
	}
}

func mustFormat(s string) cli.OutputFormat {
	f, err := cli.ParseFormat(s)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	return f
}

// formatBytes returns a human-readable size (e.g. "1.5 MB").
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Components holds initialized services.
type Components struct {
	Storage      *storage.SQLiteStorage
	Drive        drive.Drive
	Embedder     embedding.Embedder
	VectorIndex  vector.VectorIndex
	KeywordIndex keyword.KeywordIndex
	Knowledge    *knowledge.Manager
	Assistant    *assistant.Assistant
	Editor       *editor.Editor
	Auth         *auth.Service
	Progress     *progress.Service
}

// Close stops the knowledge manager before closing the stores it writes to.
func (c *Components) Close() {
	if c.Knowledge != nil {
		c.Knowledge.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.VectorIndex != nil {
		_ = c.VectorIndex.Close()
	}
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func newDrive(ctx context.Context, cfg *config.Config, logger *zap.Logger) (drive.Drive, string, error) {
	switch cfg.Drive.Provider {
	case "local":
		ld, err := drive.NewLocalDrive(cfg.Drive.LocalRoot, cfg.Drive.RootName, utils.Component(logger, "drive"))
		if err != nil {
			return nil, "", err
		}
		return ld, ld.RootID(), nil
	default:
		gd, err := drive.NewGoogleDrive(ctx, cfg.Drive.CredentialsFile, utils.Component(logger, "drive"))
		if err != nil {
			return nil, "", err
		}
		return gd, cfg.Drive.RootFolderID, nil
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{}
	fail := func(err error) (*Components, error) {
		c.Close()
		return nil, err
	}

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = store

	d, rootID, err := newDrive(ctx, cfg, logger)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize drive: %w", err))
	}
	c.Drive = d

	c.Embedder, err = embedding.New(ctx, cfg.Embedding, utils.Component(logger, "embedding"))
	if err != nil {
		return fail(fmt.Errorf("failed to initialize embedder: %w", err))
	}

	c.VectorIndex, err = vector.New(ctx, cfg.Vector, c.Embedder.Dimensions(), utils.Component(logger, "vector"))
	if err != nil {
		return fail(fmt.Errorf("failed to initialize vector index: %w", err))
	}
	if cfg.Storage.VectorIndexPath != "" {
		if loadErr := c.VectorIndex.Load(cfg.Storage.VectorIndexPath); loadErr != nil {
			logger.Warn("vector index load skipped, next refresh rebuilds it",
				zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(loadErr))
		}
	}

	c.KeywordIndex, err = keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize keyword index: %w", err))
	}

	idx := indexer.NewIndexer(d, store, c.Embedder, c.VectorIndex, c.KeywordIndex, nil, indexer.Options{
		RootID:          rootID,
		RootName:        cfg.Drive.RootName,
		Extensions:      cfg.Drive.Extensions,
		BatchSize:       cfg.Embedding.BatchSize,
		ChunkSize:       cfg.Retrieval.ChunkSize,
		ChunkOverlap:    cfg.Retrieval.ChunkOverlap,
		Separators:      cfg.Retrieval.Separators,
		VectorIndexPath: cfg.Storage.VectorIndexPath,
	}, indexer.WithLogger(utils.Component(logger, "indexer")))

	client, err := llm.New(ctx, cfg.LLM, utils.Component(logger, "llm"))
	if err != nil {
		return fail(fmt.Errorf("failed to initialize llm: %w", err))
	}
	retriever := retrieval.NewRetriever(store, c.Embedder, c.VectorIndex, c.KeywordIndex, retrieval.Options{
		TopK:           cfg.Retrieval.TopK,
		SemanticWeight: cfg.Retrieval.SemanticWeight,
		KeywordWeight:  cfg.Retrieval.KeywordWeight,
	}, retrieval.WithLogger(utils.Component(logger, "retrieval")))
	c.Assistant = assistant.New(retriever, client, assistant.Options{
		TopK:            cfg.Retrieval.TopK,
		MaxHistoryTurns: cfg.LLM.MaxHistoryTurns,
		Condense:        cfg.LLM.CondenseQuestions,
	}, assistant.WithLogger(utils.Component(logger, "assistant")))

	c.Knowledge = knowledge.New(idx, store, c.VectorIndex, c.KeywordIndex,
		knowledge.WithLogger(utils.Component(logger, "knowledge")),
		knowledge.OnRefresh(c.Assistant.Clear))

	c.Editor = editor.New(d, store, store, editor.Options{
		Enabled:      cfg.Edit.EnabledOrDefault(),
		AllowedRoles: editRoles(cfg.Edit.AllowedRoles),
	}, editor.WithRefresher(c.Knowledge), editor.WithLogger(utils.Component(logger, "editor")))

	mailer, err := auth.NewMailer(&cfg.Auth, utils.Component(logger, "mailer"))
	if err != nil {
		return fail(fmt.Errorf("failed to initialize mailer: %w", err))
	}
	c.Auth = auth.New(store, store, mailer, auth.OptionsFromConfig(&cfg.Auth),
		auth.WithLogger(utils.Component(logger, "auth")))
	c.Progress = progress.New(store, store, progress.Options{InactivityDays: cfg.Progress.InactivityDays},
		progress.WithLogger(utils.Component(logger, "progress")))
	return c, nil
}

func printUsage() {
	fmt.Println(`mindlink - Corporate knowledge-base assistant

Usage:
  mindlink server [flags]                 Start the HTTP server
  mindlink reindex [flags]                Rebuild the knowledge-base index
  mindlink ask [flags] <question>         Ask the assistant
  mindlink edit [flags] <instruction|->   Apply an edit command to a document
  mindlink status [flags]                 Show index and storage status
  mindlink seed-users [--reset]           Create the test accounts
  mindlink check-inactivity [flags]       Score students without recent submissions
  mindlink version                        Show version
  mindlink help                           Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/mindlink/config.yaml)
  --output string    Output format: text or json (reindex, ask, edit, status, check-inactivity)

Server Flags:
  --debug            Enable debug logging

Edit Flags:
  --file-id string    Target file ID
  --file-name string  Target file name, used when the ID is unknown
  --user string       E-mail recorded in the edit log (default: cli)

Check-inactivity Flags:
  --days int         Days without submissions (default from config)
  --score int        Score applied to inactive students (default from config)
  --dry-run          Report without recording scores

Examples:
  mindlink server
  mindlink ask "Quantos dias de férias eu tenho?"
  mindlink edit --file-id 1AbC '[AÇÃO: SUBSTITUIR | DE: "R$ 30,00" | PARA: "R$ 35,00"]'
  mindlink seed-users --reset
  mindlink check-inactivity --days 10 --dry-run`)
}
