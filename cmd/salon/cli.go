package main

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/salon/internal/capsule"
	"github.com/hpungsan/salon/internal/errors"
	"github.com/hpungsan/salon/internal/ops"
)

// newCLIApp creates the CLI application with all commands. rt may be nil
// when only help or version output is needed.
func newCLIApp(rt *runtime) *cli.App {
	app := &cli.App{
		Name:    "salon",
		Usage:   "Run topic discussions and turn them into scored knowledge capsules",
		Version: Version,
		Commands: []*cli.Command{
			topicCmd(rt),
			contributeCmd(rt),
			discussCmd(rt),
			insightsCmd(rt),
			capsuleCmd(rt),
			personasCmd(rt),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// Topics

func topicCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "topic",
		Usage: "Create topics and move them through their phases",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create a topic in the setup phase",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "title", Aliases: []string{"t"}, Required: true, Usage: "Topic title"},
					&cli.StringFlag{Name: "description", Aliases: []string{"d"}, Usage: "What the discussion is about"},
					&cli.StringFlag{Name: "category", Aliases: []string{"c"}, Usage: "Topic category (default: interdisciplinary)"},
					&cli.IntFlag{Name: "max-participants", Usage: "Participant cap (default: 5)"},
					&cli.IntFlag{Name: "max-rounds", Usage: "Round cap (default: 3)"},
				},
				Action: func(c *cli.Context) error {
					return run(ops.CreateTopic(c.Context, rt.db, rt.cfg, ops.CreateTopicInput{
						Title:           c.String("title"),
						Description:     c.String("description"),
						Category:        c.String("category"),
						MaxParticipants: c.Int("max-participants"),
						MaxRounds:       c.Int("max-rounds"),
					}))
				},
			},
			{
				Name:      "get",
				Usage:     "Show a topic with its participants",
				ArgsUsage: "<topic-id>",
				Action: func(c *cli.Context) error {
					return run(ops.GetTopic(c.Context, rt.db, rt.cfg, ops.TopicInput{TopicID: c.Args().First()}))
				},
			},
			{
				Name:  "list",
				Usage: "List topics, newest first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "phase", Aliases: []string{"p"}, Usage: "Only topics in this phase"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Maximum items to return"},
					&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
				},
				Action: func(c *cli.Context) error {
					return run(ops.ListTopics(c.Context, rt.db, rt.cfg, ops.ListTopicsInput{
						Phase:  c.String("phase"),
						Limit:  c.Int("limit"),
						Offset: c.Int("offset"),
					}))
				},
			},
			{
				Name:      "delete",
				Usage:     "Delete a topic with its contributions and insights (capsules are kept)",
				ArgsUsage: "<topic-id>",
				Action: func(c *cli.Context) error {
					return run(ops.DeleteTopic(c.Context, rt.db, rt.cfg, ops.TopicInput{TopicID: c.Args().First()}))
				},
			},
			{
				Name:      "assign",
				Usage:     "Assign participants to a topic in setup",
				ArgsUsage: "[--participants=ids] [--auto-fill] <topic-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "participants", Aliases: []string{"p"}, Usage: "Comma-separated persona ids, used first"},
					&cli.BoolFlag{Name: "auto-fill", Aliases: []string{"a"}, Usage: "Top up from the persona catalog by category"},
				},
				Action: func(c *cli.Context) error {
					topicID, err := idArg(c)
					if err != nil {
						return outputError(err)
					}
					return run(ops.AssignParticipants(c.Context, rt.db, rt.cfg, rt.catalog, ops.AssignParticipantsInput{
						TopicID:        topicID,
						ParticipantIDs: parseList(c.String("participants")),
						AutoFill:       c.Bool("auto-fill"),
					}))
				},
			},
			{
				Name:      "start",
				Usage:     "Move a topic from setup to introduction",
				ArgsUsage: "<topic-id>",
				Action: func(c *cli.Context) error {
					return run(ops.StartTopic(c.Context, rt.db, rt.cfg, ops.TopicInput{TopicID: c.Args().First()}))
				},
			},
			{
				Name:      "advance",
				Usage:     "Advance a topic to its next phase",
				ArgsUsage: "<topic-id>",
				Action: func(c *cli.Context) error {
					return run(ops.AdvancePhase(c.Context, rt.db, rt.cfg, ops.TopicInput{TopicID: c.Args().First()}))
				},
			},
			{
				Name:      "summary",
				Usage:     "Contribution counts by phase and contributor, and insight count",
				ArgsUsage: "<topic-id>",
				Action: func(c *cli.Context) error {
					return run(ops.SummarizeTopic(c.Context, rt.db, rt.cfg, ops.TopicInput{TopicID: c.Args().First()}))
				},
			},
			{
				Name:      "contributions",
				Usage:     "List a topic's contributions in recorded order",
				ArgsUsage: "<topic-id>",
				Action: func(c *cli.Context) error {
					items, err := ops.ListContributions(c.Context, rt.db, rt.cfg, ops.TopicInput{TopicID: c.Args().First()})
					return run(map[string]any{"items": items}, err)
				},
			},
		},
	}
}

// contributeCmd reads the contribution text from stdin.
func contributeCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "contribute",
		Usage:     "Record a contribution (reads text from stdin)",
		ArgsUsage: "--contributor=id [--role=r] [--round=n] <topic-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "contributor", Aliases: []string{"c"}, Usage: "Participant persona id (required)"},
			&cli.StringFlag{Name: "role", Aliases: []string{"r"}, Usage: "Role for this contribution (default: the participant's role)"},
			&cli.IntFlag{Name: "round", Usage: "Round number (default: current round)"},
		},
		Action: func(c *cli.Context) error {
			topicID, err := idArg(c)
			if err != nil {
				return outputError(err)
			}
			if !stdinHasData() {
				return outputError(errors.NewInvalidInput("contribution text must be piped via stdin"))
			}
			text, err := readStdin()
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			return run(ops.RecordContribution(c.Context, rt.db, rt.cfg, ops.RecordContributionInput{
				TopicID:       topicID,
				ContributorID: c.String("contributor"),
				Text:          text,
				Role:          c.String("role"),
				Round:         c.Int("round"),
			}))
		},
	}
}

// discussCmd runs a scripted discussion in the foreground.
func discussCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "discuss",
		Usage:     "Run every round of a started topic with scripted participants",
		ArgsUsage: "[--prompt=text] <topic-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "prompt", Aliases: []string{"p"}, Usage: "Opening prompt (default: topic title and description)"},
		},
		Action: func(c *cli.Context) error {
			topicID, err := idArg(c)
			if err != nil {
				return outputError(err)
			}
			progress := func(pct int) {
				log.Debug().Str("topic_id", topicID).Int("progress", pct).Msg("discussion progress")
			}
			return run(ops.RunDiscussion(c.Context, rt.db, rt.cfg, rt.discussionDeps(), ops.RunDiscussionInput{
				TopicID: topicID,
				Prompt:  c.String("prompt"),
			}, progress))
		},
	}
}

func insightsCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "insights",
		Usage: "Extract and list topic insights",
		Subcommands: []*cli.Command{
			{
				Name:      "extract",
				Usage:     "Extract insights from a topic's contributions, replacing earlier ones",
				ArgsUsage: "<topic-id>",
				Action: func(c *cli.Context) error {
					items, err := ops.ExtractInsights(c.Context, rt.db, rt.cfg, rt.extractor, ops.TopicInput{TopicID: c.Args().First()})
					return run(map[string]any{"items": items}, err)
				},
			},
			{
				Name:      "list",
				Usage:     "List the stored insights of a topic",
				ArgsUsage: "<topic-id>",
				Action: func(c *cli.Context) error {
					items, err := ops.ListInsights(c.Context, rt.db, rt.cfg, ops.TopicInput{TopicID: c.Args().First()})
					return run(map[string]any{"items": items}, err)
				},
			},
		},
	}
}

// Capsules

func capsuleCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "capsule",
		Usage: "Generate, browse, version and export knowledge capsules",
		Subcommands: []*cli.Command{
			{
				Name:      "generate",
				Usage:     "Generate, grade and store a capsule from a topic",
				ArgsUsage: "<topic-id>",
				Action: func(c *cli.Context) error {
					return run(ops.GenerateCapsule(c.Context, rt.db, rt.cfg, rt.generator, ops.TopicInput{TopicID: c.Args().First()}))
				},
			},
			{
				Name:  "save",
				Usage: "Insert or replace a capsule (reads capsule JSON from stdin)",
				Action: func(c *cli.Context) error {
					if !stdinHasData() {
						return outputError(errors.NewInvalidInput("capsule JSON must be piped via stdin"))
					}
					raw, err := readStdin()
					if err != nil {
						return outputError(errors.NewInternal(err))
					}
					var in capsule.Capsule
					if err := json.Unmarshal([]byte(raw), &in); err != nil {
						return outputError(errors.NewInvalidInput("invalid capsule JSON: " + err.Error()))
					}
					return run(ops.SaveCapsule(c.Context, rt.db, rt.cfg, in))
				},
			},
			{
				Name:      "get",
				Usage:     "Show a capsule",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					return run(ops.GetCapsule(c.Context, rt.db, rt.cfg, ops.CapsuleInput{ID: c.Args().First()}))
				},
			},
			{
				Name:      "evaluate",
				Usage:     "Grade a capsule and suggest improvements",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					return run(ops.EvaluateCapsule(c.Context, rt.db, rt.cfg, ops.CapsuleInput{ID: c.Args().First()}))
				},
			},
			{
				Name:  "list",
				Usage: "List capsules by quality, best first",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "Filter by status"},
					&cli.StringFlag{Name: "category", Aliases: []string{"c"}, Usage: "Filter by category"},
					&cli.Float64Flag{Name: "min-quality", Usage: "Minimum quality score"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Maximum items to return"},
					&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
				},
				Action: func(c *cli.Context) error {
					return run(ops.ListCapsules(c.Context, rt.db, rt.cfg, ops.ListCapsulesInput{
						Status:     c.String("status"),
						Category:   c.String("category"),
						MinQuality: c.Float64("min-quality"),
						Limit:      c.Int("limit"),
						Offset:     c.Int("offset"),
					}))
				},
			},
			{
				Name:      "search",
				Usage:     "Full-text search over capsules",
				ArgsUsage: "[--limit=n] <query words...>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 10, Usage: "Maximum items to return"},
				},
				Action: func(c *cli.Context) error {
					if _, err := idArg(c); err != nil {
						return outputError(err)
					}
					return run(ops.SearchCapsules(c.Context, rt.db, rt.cfg, ops.SearchCapsulesInput{
						Query: strings.Join(c.Args().Slice(), " "),
						Limit: c.Int("limit"),
					}))
				},
			},
			{
				Name:      "status",
				Usage:     "Set a capsule's review status",
				ArgsUsage: "<id> <draft|review|approved|rejected>",
				Action: func(c *cli.Context) error {
					return run(ops.UpdateStatus(c.Context, rt.db, rt.cfg, ops.UpdateStatusInput{
						ID:     c.Args().Get(0),
						Status: c.Args().Get(1),
					}))
				},
			},
			{
				Name:  "stats",
				Usage: "Capsule counts by category and status, and average quality",
				Action: func(c *cli.Context) error {
					return run(ops.Stats(c.Context, rt.db, rt.cfg))
				},
			},
			{
				Name:      "version",
				Usage:     "Snapshot a capsule as its next version",
				ArgsUsage: "[--changes=text] [--editor=name] <id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "changes", Aliases: []string{"m"}, Usage: "What changed"},
					&cli.StringFlag{Name: "editor", Aliases: []string{"e"}, Usage: "Who made the change (default: system)"},
				},
				Action: func(c *cli.Context) error {
					id, err := idArg(c)
					if err != nil {
						return outputError(err)
					}
					return run(ops.CreateVersion(c.Context, rt.db, rt.cfg, ops.CreateVersionInput{
						ID:      id,
						Changes: c.String("changes"),
						Editor:  c.String("editor"),
					}))
				},
			},
			{
				Name:      "history",
				Usage:     "List a capsule's versions, newest first",
				ArgsUsage: "<id>",
				Action: func(c *cli.Context) error {
					return run(ops.VersionHistory(c.Context, rt.db, rt.cfg, ops.CapsuleInput{ID: c.Args().First()}))
				},
			},
			{
				Name:      "rollback",
				Usage:     "Restore a capsule to an earlier version",
				ArgsUsage: "--version=n [--editor=name] <id>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "version", Usage: "Version to restore (required)"},
					&cli.StringFlag{Name: "editor", Aliases: []string{"e"}, Usage: "Who performed the rollback (default: system)"},
				},
				Action: func(c *cli.Context) error {
					id, err := idArg(c)
					if err != nil {
						return outputError(err)
					}
					return run(ops.Rollback(c.Context, rt.db, rt.cfg, ops.RollbackInput{
						ID:      id,
						Version: c.Int("version"),
						Editor:  c.String("editor"),
					}))
				},
			},
			{
				Name:  "export",
				Usage: "Export one capsule as md or html, or all capsules as jsonl",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Export file path (default: ~/.salon/exports/<name>-<timestamp>.<ext>)"},
					&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "jsonl", Usage: "Export format: md|html|jsonl"},
					&cli.StringFlag{Name: "id", Usage: "Capsule id (required for md and html)"},
				},
				Action: func(c *cli.Context) error {
					return run(ops.Export(c.Context, rt.db, rt.cfg, ops.ExportInput{
						Path:   c.String("path"),
						Format: ops.ExportFormat(c.String("format")),
						ID:     c.String("id"),
					}))
				},
			},
		},
	}
}

func personasCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "personas",
		Usage: "List the persona catalog, optionally only those matching a category",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "category", Aliases: []string{"c"}, Usage: "Topic category to match"},
		},
		Action: func(c *cli.Context) error {
			if category := c.String("category"); category != "" {
				items, err := rt.catalog.FindCandidates(c.Context, capsule.Normalize(category))
				return run(map[string]any{"items": items}, err)
			}
			return outputJSON(map[string]any{"items": rt.catalog.All()})
		},
	}
}

// Helper functions

// run prints an operation's result, or its error.
func run(v any, err error) error {
	if err != nil {
		return outputError(err)
	}
	return outputJSON(v)
}

// idArg returns the first positional argument. Flags are only parsed before
// it, so any flag-looking argument after it is rejected instead of silently
// dropped.
func idArg(c *cli.Context) (string, error) {
	for _, a := range c.Args().Tail() {
		if strings.HasPrefix(a, "-") {
			return "", errors.NewInvalidInput(fmt.Sprintf("flag %s must come before positional arguments", a))
		}
	}
	return c.Args().First(), nil
}

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var sErr *errors.SalonError
	if stderrors.As(err, &sErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", sErr.Code, sErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads all content from stdin.
func readStdin() (string, error) {
	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// parseList splits a comma-separated string into trimmed, non-empty items.
func parseList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	items := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			items = append(items, t)
		}
	}
	return items
}
