package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/hpungsan/leadcap/internal/config"
	"github.com/hpungsan/leadcap/internal/db"
	"github.com/hpungsan/leadcap/internal/extract"
	"github.com/hpungsan/leadcap/internal/mcp"
	"github.com/hpungsan/leadcap/internal/pipeline"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"capture": true, "list": true, "search": true, "get": true,
	"update": true, "delete": true, "delete-all": true, "queue": true,
	"export": true, "import": true, "backup-status": true, "serve": true,
	"help": true,
}

// globals are the flags read before the database is opened.
type globals struct {
	dataDir string
	offline bool
	command string // first non-global argument, "" if none
}

// parseGlobals scans args (including the program name) for --data-dir and
// --offline ahead of the command.
func parseGlobals(args []string) globals {
	var g globals
	for i := 1; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--offline":
			g.offline = true
		case arg == "--data-dir":
			if i+1 < len(args) {
				g.dataDir = args[i+1]
				i++
			}
		case strings.HasPrefix(arg, "--data-dir="):
			g.dataDir = strings.TrimPrefix(arg, "--data-dir=")
		default:
			g.command = arg
			return g
		}
	}
	return g
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode(args []string) bool {
	arg := parseGlobals(args).command
	if arg == "" {
		return false // No command → MCP server
	}
	if cliCommands[arg] {
		return true
	}
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v"
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion(args []string) bool {
	arg := parseGlobals(args).command
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   _                _
  | | ___  __ _  __| | ___ __ _ _ __
  | |/ _ \/ _' |/ _' |/ __/ _' | '_ \
  | |  __/ (_| | (_| | (_| (_| | |_) |
  |_|\___|\__,_|\__,_|\___\__,_| .__/
                               |_|
  Offline-first lead capture

  Usage: leadcap <command> [options]
         leadcap serve
         leadcap --help

  MCP server mode requires piped input.`)
}

// runtime is the wired capture pipeline shared by every surface.
type runtime struct {
	db      *sql.DB
	cfg     *config.Config
	monitor *pipeline.Monitor
	drainer *pipeline.Drainer
	orch    *pipeline.Orchestrator
}

// newRuntime wires the stores, extraction gateway, monitor, drainer and
// orchestrator. A missing or broken backend configuration forces offline
// mode so captures are queued instead of failing.
func newRuntime(ctx context.Context, database *sql.DB, cfg *config.Config, offline bool) (*runtime, error) {
	backend, err := newBackend(ctx, cfg)
	if err != nil {
		log.Printf("extraction backend unavailable, captures will be queued: %v", err)
		backend = extract.NewHTTPBackend("", "", nil)
		offline = true
	}

	var gwOpts []extract.Option
	gwOpts = append(gwOpts, extract.WithTimeout(cfg.RequestTimeout()))
	if cfg.RateLimitRPS > 0 {
		gwOpts = append(gwOpts, extract.WithRateLimit(cfg.RateLimitRPS))
	}
	gateway := extract.NewGateway(backend, gwOpts...)

	monitor := pipeline.NewMonitor(gateway, cfg.ProbeInterval())
	if offline {
		monitor = pipeline.NewOfflineMonitor()
	}

	images := db.NewImages(database)
	drainer := pipeline.NewDrainer(db.NewPending(database), db.NewLeads(database), gateway, images, monitor)
	n, err := drainer.Recover(ctx)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		log.Printf("recovered %d interrupted capture(s)", n)
	}

	orch := pipeline.NewOrchestrator(db.NewLeads(database), gateway, drainer, monitor,
		pipeline.WithImages(images),
		pipeline.WithUndoWindow(cfg.UndoWindow()),
	)

	return &runtime{
		db:      database,
		cfg:     cfg,
		monitor: monitor,
		drainer: drainer,
		orch:    orch,
	}, nil
}

// startBackground runs the connectivity monitor until ctx is done, drains on
// every reconnect, and kicks a drain for anything already queued. The
// returned func stops the reconnect drains.
func (rt *runtime) startBackground(ctx context.Context) (stop func()) {
	go rt.monitor.Run(ctx)
	unwatch := rt.drainer.Watch(rt.monitor)
	rt.drainer.Kick()
	return unwatch
}

// newBackend builds the configured extraction backend.
func newBackend(ctx context.Context, cfg *config.Config) (extract.Backend, error) {
	switch cfg.Backend {
	case config.BackendGemini:
		return extract.NewGeminiBackend(ctx, extract.GeminiConfig{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.GeminiModel,
		})
	case config.BackendHTTP, "":
		if strings.TrimSpace(cfg.ExtractionURL) == "" {
			return nil, fmt.Errorf("extraction_url is not configured")
		}
		return extract.NewHTTPBackend(cfg.ExtractionURL, cfg.ExtractionKey, &http.Client{}), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion(os.Args) {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	g := parseGlobals(os.Args)
	baseDir := g.dataDir
	if baseDir == "" {
		baseDir = config.DefaultBaseDir()
	}

	cfg, err := config.Load(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	database, err := db.Init(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()
	db.ConfigurePool(database, cfg)

	rt, err := newRuntime(context.Background(), database, cfg, g.offline)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer rt.drainer.Wait()

	// CLI mode: known subcommand
	if isCLIMode(os.Args) {
		app := newCLIApp(rt)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			rt.drainer.Wait()
			database.Close()
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if g.command != "" && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", g.command)
		fmt.Fprintf(os.Stderr, "Run 'leadcap --help' for usage.\n")
		rt.drainer.Wait()
		database.Close()
		os.Exit(1)
	}

	// MCP server mode (default)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer rt.startBackground(ctx)()
	if err := mcp.Run(database, cfg, rt.orch, Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		cancel()
		rt.drainer.Wait()
		database.Close()
		os.Exit(1)
	}
}
