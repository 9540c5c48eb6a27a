package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/hpungsan/salon/internal/capsule"
	"github.com/hpungsan/salon/internal/config"
	"github.com/hpungsan/salon/internal/db"
	"github.com/hpungsan/salon/internal/discussion"
	"github.com/hpungsan/salon/internal/lexicon"
	"github.com/hpungsan/salon/internal/logging"
	"github.com/hpungsan/salon/internal/mcp"
	"github.com/hpungsan/salon/internal/ops"
	"github.com/hpungsan/salon/internal/persona"
	"github.com/hpungsan/salon/internal/tasks"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"topic": true, "contribute": true, "discuss": true,
	"insights": true, "capsule": true, "personas": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
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
   ___  __ _| | ___  _ __
  / __|/ _' | |/ _ \| '_ \
  \__ \ (_| | | (_) | | | |
  |___/\__,_|_|\___/|_| |_|

  Discussions in, knowledge capsules out

  Usage: salon <command> [options]
         salon --help

  MCP server mode requires piped input.`)
}

// runtime is everything a command or tool call runs against.
type runtime struct {
	db        *sql.DB
	cfg       *config.Config
	catalog   *persona.FileCatalog
	generator *capsule.Generator
	extractor *discussion.Extractor
	voices    persona.Voices
}

// discussionDeps bundles the collaborators of a scripted discussion run.
func (rt *runtime) discussionDeps() ops.Discussion {
	return ops.Discussion{
		Catalog:   rt.catalog,
		Voices:    rt.voices,
		Extractor: rt.extractor,
	}
}

// newRuntime loads the lexicon and persona catalog named by cfg, falling back
// to the built-in tables.
func newRuntime(database *sql.DB, cfg *config.Config) (*runtime, error) {
	lex, err := lexicon.Load(cfg.LexiconPath)
	if err != nil {
		return nil, err
	}
	catalog, err := persona.LoadCatalog(cfg.PersonaCatalogPath)
	if err != nil {
		return nil, err
	}
	return &runtime{
		db:        database,
		cfg:       cfg,
		catalog:   catalog,
		generator: capsule.NewGenerator(lex),
		extractor: discussion.NewExtractor(lex),
		voices:    persona.ScriptedVoices(),
	}, nil
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fail("%v", err)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fail("could not determine home directory: %v", err)
	}
	baseDir := filepath.Join(homeDir, ".salon")

	cwd, err := os.Getwd()
	if err != nil {
		cwd = ""
	}
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		fail("failed to load config: %v", err)
	}
	logging.Setup(cfg.LogLevel, os.Stderr)

	database, err := db.Init(baseDir)
	if err != nil {
		fail("failed to initialize database: %v", err)
	}
	defer database.Close()
	db.ConfigurePool(database, cfg)

	rt, err := newRuntime(database, cfg)
	if err != nil {
		database.Close()
		fail("%v", err)
	}

	if isCLIMode() {
		app := newCLIApp(rt)
		if err := app.Run(os.Args); err != nil {
			database.Close()
			fail("%v", err)
		}
		return
	}

	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'salon --help' for usage.\n")
		database.Close()
		os.Exit(1)
	}

	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		log.Warn().Strs("tools", unknown).Msg("ignoring unknown disabled_tools entries")
	}

	manager := tasks.NewManager(cfg.TaskWorkers)
	defer manager.Close()
	tasks.RegisterDefaults(manager, tasks.Deps{
		DB:         database,
		Config:     cfg,
		Discussion: rt.discussionDeps(),
	})

	log.Info().Str("version", Version).Msg("mcp server starting")
	if err := mcp.Run(mcp.Deps{
		DB:        database,
		Config:    cfg,
		Catalog:   rt.catalog,
		Generator: rt.generator,
		Extractor: rt.extractor,
		Tasks:     manager,
	}, Version); err != nil {
		manager.Close()
		database.Close()
		fail("%v", err)
	}
}
