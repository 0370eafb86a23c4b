package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/Tasour/wikipedia-graph/internal"
	pkgconfig "github.com/Tasour/wikipedia-graph/pkg/config"
)

const defaultConfigPath = "config/config.yaml"

type runFunc func(ctx context.Context, opts ...internal.Option) error

// options loads the config file, falling back to the default path when it
// does not exist, and turns the seed flags into options.
func options(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadWithDefaults(configPath, defaultConfigPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithConfigPath(configPath),
	}

	pages := splitList(cmd.String("pages"), "|")
	ids, err := parsePageIDs(cmd.String("pageids"))
	if err != nil {
		return nil, err
	}
	if len(pages) > 0 || len(ids) > 0 {
		opts = append(opts, internal.WithSeed(pages, ids))
	}
	return opts, nil
}

func action(run runFunc) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		opts, err := options(cmd)
		if err != nil {
			return err
		}
		if err := run(ctx, opts...); err != nil {
			return fmt.Errorf("app run error: %w", err)
		}
		return nil
	}
}

func splitList(s, seps string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool { return strings.ContainsRune(seps, r) })
	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// parsePageIDs parses a "|" or "," separated list of page ids.
func parsePageIDs(s string) ([]int64, error) {
	var ids []int64
	for _, f := range splitList(s, "|,") {
		id, err := strconv.ParseInt(f, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid page id %q", f)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func main() {
	cmd := &cli.Command{
		Name:   "wikigraph",
		Usage:  "Browse Wikipedia while building a graph of the visited articles",
		Action: action(internal.Run),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file (YAML, or TOML by .toml extension)",
				DefaultText: defaultConfigPath,
				Value:       defaultConfigPath,
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:  "pages",
				Usage: "Articles to open at startup, separated by |",
			},
			&cli.StringFlag{
				Name:  "pageids",
				Usage: "Page ids to open at startup, separated by | or ,",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "tui",
				Usage:  "Browse in the terminal",
				Action: action(internal.RunTUI),
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools on stdin/stdout",
				Action: action(internal.RunMCP),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
