package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/aether/internal/api"
	"github.com/MrWong99/aether/internal/app"
	"github.com/MrWong99/aether/internal/config"
	"github.com/MrWong99/aether/internal/journal"
	"github.com/MrWong99/aether/internal/observe"
	"github.com/MrWong99/aether/internal/reconcile"
	"github.com/MrWong99/aether/internal/snapshot"
	"github.com/MrWong99/aether/pkg/event"
	"github.com/MrWong99/aether/pkg/projection"
	"github.com/MrWong99/aether/pkg/types"
)

// errUsage marks a malformed command line.
var errUsage = errors.New("invalid arguments")

// action is one console button: it parses its arguments into a command.
type action struct {
	name  string
	usage string
	label string
	build func(args []string) (app.CommandFunc, error)
}

var actions = []action{
	{
		name: "grant-xp", usage: "AMOUNT", label: "Grant XP",
		build: func(args []string) (app.CommandFunc, error) {
			n, err := intArg(args, 0)
			if err != nil {
				return nil, err
			}
			return func(ctx context.Context, c *api.Client) ([]event.Event, error) { return c.GrantXP(ctx, n) }, nil
		},
	},
	{
		name: "level-up", usage: "LEVELS", label: "Level up",
		build: func(args []string) (app.CommandFunc, error) {
			n, err := intArg(args, 0)
			if err != nil {
				return nil, err
			}
			return func(ctx context.Context, c *api.Client) ([]event.Event, error) { return c.LevelUp(ctx, n) }, nil
		},
	},
	{
		name: "allocate", usage: "STAT POINTS", label: "Allocate stat",
		build: func(args []string) (app.CommandFunc, error) {
			n, err := intArg(args, 1)
			if err != nil {
				return nil, err
			}
			stat := args[0]
			return func(ctx context.Context, c *api.Client) ([]event.Event, error) { return c.AllocateStat(ctx, stat, n) }, nil
		},
	},
	{
		name: "equip", usage: "ITEM SLOT", label: "Equip",
		build: func(args []string) (app.CommandFunc, error) {
			if len(args) != 2 {
				return nil, errUsage
			}
			item, slot := args[0], types.Slot(args[1])
			return func(ctx context.Context, c *api.Client) ([]event.Event, error) {
				if c.Role() == api.RolePlayer {
					return c.RequestEquip(ctx, item, slot)
				}
				return c.Equip(ctx, item, slot)
			}, nil
		},
	},
	{
		name: "assign-quest", usage: "TEMPLATE", label: "Assign quest",
		build: func(args []string) (app.CommandFunc, error) {
			if len(args) != 1 {
				return nil, errUsage
			}
			return func(ctx context.Context, c *api.Client) ([]event.Event, error) { return c.AssignQuest(ctx, args[0]) }, nil
		},
	},
	{
		name: "quest-status", usage: "QUEST STATUS", label: "Quest status",
		build: func(args []string) (app.CommandFunc, error) {
			if len(args) != 2 {
				return nil, errUsage
			}
			quest, status := args[0], types.QuestStatus(args[1])
			return func(ctx context.Context, c *api.Client) ([]event.Event, error) {
				return c.SetQuestStatus(ctx, quest, status)
			}, nil
		},
	},
	{
		name: "freeze", usage: "true|false", label: "Freeze",
		build: func(args []string) (app.CommandFunc, error) {
			if len(args) != 1 {
				return nil, errUsage
			}
			frozen, err := strconv.ParseBool(args[0])
			if err != nil {
				return nil, errUsage
			}
			return func(ctx context.Context, c *api.Client) ([]event.Event, error) { return c.Freeze(ctx, frozen) }, nil
		},
	},
	{
		name: "send-chat", usage: "CHAT TEXT...", label: "Send chat",
		build: func(args []string) (app.CommandFunc, error) {
			if len(args) < 2 {
				return nil, errUsage
			}
			chat, text := args[0], strings.Join(args[1:], " ")
			return func(ctx context.Context, c *api.Client) ([]event.Event, error) {
				return c.SendChatMessage(ctx, chat, api.ChatMessageInput{Text: text})
			}, nil
		},
	},
	{
		name: "accept-request", usage: "REQUEST", label: "Accept request",
		build: func(args []string) (app.CommandFunc, error) {
			if len(args) != 1 {
				return nil, errUsage
			}
			return func(ctx context.Context, c *api.Client) ([]event.Event, error) {
				return c.AcceptFriendRequest(ctx, args[0])
			}, nil
		},
	},
	{
		name: "choose", usage: "MESSAGE OPTION", label: "Choose option",
		build: func(args []string) (app.CommandFunc, error) {
			if len(args) != 2 {
				return nil, errUsage
			}
			return func(ctx context.Context, c *api.Client) ([]event.Event, error) {
				return c.ChooseOption(ctx, args[0], args[1])
			}, nil
		},
	},
}

func findAction(name string) (action, bool) {
	for _, a := range actions {
		if a.name == name {
			return a, true
		}
	}
	return action{}, false
}

// suggestMinScore is the Jaro-Winkler similarity above which a mistyped
// command is answered with a suggestion.
const suggestMinScore = 0.85

// suggestCommand returns the known command closest to name, if any is close
// enough to be a typo.
func suggestCommand(name string) (string, bool) {
	names := []string{"export", "import", "replay", "run"}
	for _, a := range actions {
		names = append(names, a.name)
	}
	best, score := "", 0.0
	for _, n := range names {
		if s := matchr.JaroWinkler(name, n, false); s > score {
			best, score = n, s
		}
	}
	return best, score >= suggestMinScore
}

func commandHelp() string {
	var b strings.Builder
	for _, a := range actions {
		fmt.Fprintf(&b, "  %-29s %s\n", a.name+" "+a.usage, strings.ToLower(a.label))
	}
	return b.String()
}

func intArg(args []string, i int) (int, error) {
	if len(args) != i+1 {
		return 0, errUsage
	}
	n, err := strconv.Atoi(args[i])
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", errUsage, args[i])
	}
	return n, nil
}

// ── One-shot commands ─────────────────────────────────────────────────────────

// oneShot syncs once, runs a single command and prints the resulting status
// and a summary of the projection.
func oneShot(ctx context.Context, cfg *config.Config, level *slog.LevelVar, name string, args []string) int {
	var (
		cmd   app.CommandFunc
		label string
		err   error
	)
	switch name {
	case "export", "import":
	default:
		act, ok := findAction(name)
		if !ok {
			fmt.Fprintf(os.Stderr, "aether: unknown command %q\n", name)
			if s, ok := suggestCommand(name); ok {
				fmt.Fprintf(os.Stderr, "did you mean %q?\n", s)
			}
			fmt.Fprintln(os.Stderr)
			usage()
			return exitUsage
		}
		if cmd, err = act.build(args); err != nil {
			fmt.Fprintf(os.Stderr, "aether: %v\nusage: aether %s %s\n", err, act.name, act.usage)
			return exitUsage
		}
		label = act.label
	}

	application, err := app.New(ctx, cfg, app.WithLogLevel(level), app.WithListenAddr("-"))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return exitError
	}
	defer application.Shutdown(context.WithoutCancel(ctx))

	switch name {
	case "export":
		return exportCampaign(ctx, application, args)
	case "import":
		return importCampaign(ctx, application, args)
	}

	if err := application.Sync(ctx); err != nil {
		fmt.Fprintln(os.Stderr, application.Status().Message)
		return exitError
	}
	if _, err := application.Do(ctx, label, cmd); err != nil {
		fmt.Fprintln(os.Stderr, application.Status().Message)
		return exitError
	}
	fmt.Println(application.Status().Message)
	var sum projection.Summary
	application.View(func(s *projection.Store) { sum = s.Summarize() })
	return printJSON(sum)
}

func exportCampaign(ctx context.Context, a *app.App, args []string) int {
	if len(args) > 1 {
		fmt.Fprintln(os.Stderr, "usage: aether export [FILE]")
		return exitUsage
	}
	f, err := a.Export(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, a.Status().Message)
		return exitError
	}
	if len(args) == 0 {
		if err := snapshot.Encode(os.Stdout, f, snapshot.FormatJSON); err != nil {
			slog.Error("write export", "err", err)
			return exitError
		}
		return exitOK
	}

	out, err := os.Create(args[0])
	if err != nil {
		slog.Error("create export file", "err", err)
		return exitError
	}
	if err := snapshot.Encode(out, f, snapshot.FormatFromPath(args[0])); err != nil {
		out.Close()
		slog.Error("write export", "path", args[0], "err", err)
		return exitError
	}
	if err := out.Close(); err != nil {
		slog.Error("close export file", "err", err)
		return exitError
	}
	fmt.Printf("exported %d events up to seq %d to %s\n", len(f.Events), f.LastSeq, args[0])
	return exitOK
}

func importCampaign(ctx context.Context, a *app.App, args []string) int {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "usage: aether import FILE")
		return exitUsage
	}
	f, err := snapshot.LoadFile(args[0])
	if err != nil {
		slog.Error("read import file", "err", err)
		return exitError
	}
	if err := a.Import(ctx, f); err != nil {
		fmt.Fprintln(os.Stderr, a.Status().Message)
		return exitError
	}
	// Nothing is streaming here, so sync explicitly to verify the result.
	if err := a.Sync(ctx); err != nil {
		fmt.Fprintln(os.Stderr, a.Status().Message)
		return exitError
	}
	fmt.Printf("imported %s, server cursor now %d\n", args[0], a.Reconciler().Cursor())
	return exitOK
}

// ── Offline replay ────────────────────────────────────────────────────────────

// replay rebuilds a projection from an exported campaign file and,
// optionally, a JSONL journal recorded by the file sink. Journal events
// already in the export are dropped by the ledger.
func replay(args []string) int {
	if len(args) < 1 || len(args) > 2 {
		fmt.Fprintln(os.Stderr, "usage: aether replay SNAPSHOT [JOURNAL]")
		return exitUsage
	}
	f, err := snapshot.LoadFile(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "aether: %v\n", err)
		return exitError
	}

	ctx := observe.WithSource(context.Background(), "replay")
	rec := reconcile.New()
	rec.LoadSnapshot(ctx, snapshot.Response{Snapshot: f.Snapshot, LastSeq: f.LastSeq})
	seeded := rec.SeedLog(ctx, f.Events)

	var fromJournal reconcile.Result
	if len(args) == 2 {
		entries, err := journal.ReadFile(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "aether: %v\n", err)
			return exitError
		}
		events := make([]event.Event, 0, len(entries))
		for _, e := range entries {
			events = append(events, e.Event)
		}
		fromJournal = rec.ApplyBatch(ctx, events)
	}

	out := struct {
		Cursor     int64              `json:"cursor"`
		Seeded     int                `json:"seeded"`
		Applied    int                `json:"applied"`
		Duplicates int                `json:"duplicates"`
		Summary    projection.Summary `json:"summary"`
	}{
		Cursor:     rec.Cursor(),
		Seeded:     seeded.Seeded,
		Applied:    seeded.Applied + fromJournal.Applied,
		Duplicates: seeded.Duplicates + fromJournal.Duplicates,
	}
	rec.View(func(s *projection.Store) { out.Summary = s.Summarize() })
	return printJSON(out)
}

func printJSON(v any) int {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		slog.Error("write output", "err", err)
		return exitError
	}
	return exitOK
}
