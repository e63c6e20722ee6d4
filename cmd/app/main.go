package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/refdeck/internal"
	"github.com/starford/refdeck/internal/draft"
	"github.com/starford/refdeck/internal/mcpserver"
	"github.com/starford/refdeck/internal/picker"
	"github.com/starford/refdeck/internal/reference"
	"github.com/starford/refdeck/internal/refservice"
	"github.com/starford/refdeck/internal/view"
	pkgconfig "github.com/starford/refdeck/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

// openRuntime builds the service for one-shot commands. Logs go to stderr so
// stdout stays free for command output and the MCP transport.
func openRuntime(cmd *cli.Command) (*internal.Runtime, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	return internal.Open(internal.WithConfig(cfg), internal.WithLogger(logger))
}

func docArg(cmd *cli.Command) (string, error) {
	doc := strings.TrimSpace(cmd.Args().First())
	if doc == "" {
		return "", errors.New("document path is required")
	}
	return doc, nil
}

func serveMCP(_ context.Context, cmd *cli.Command) error {
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()
	return mcpserver.New(rt.Service).ServeStdio()
}

func list(ctx context.Context, cmd *cli.Command) error {
	doc, err := docArg(cmd)
	if err != nil {
		return err
	}
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	p, err := rt.Service.Panel(ctx, doc)
	if err != nil {
		return err
	}
	printPanel(p)
	return nil
}

func printPanel(p view.Panel) {
	if len(p.Sections) == 0 {
		fmt.Println("no references")
		return
	}
	for _, sec := range p.Sections {
		if p.ShowHeaders || len(p.Sections) > 1 {
			fmt.Printf("%s:\n", sec.Field)
		}
		for i, e := range sec.Entries {
			fmt.Printf("  %d. %s", i, e.Display)
			if e.Display != e.Raw {
				fmt.Printf("  (%s)", e.Raw)
			}
			fmt.Println()
		}
	}
}

func add(ctx context.Context, cmd *cli.Command) error {
	doc, err := docArg(cmd)
	if err != nil {
		return err
	}
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	svc := rt.Service
	term := picker.New(svc.Docs())

	field := cmd.String("field")
	if field == "" {
		field, err = term.SelectField(svc.Fields(), svc.DefaultField())
		if errors.Is(err, reference.ErrNoValue) {
			return nil
		}
		if err != nil {
			return err
		}
	}

	var entry string
	cv, err := svc.Edit(ctx, doc, field, func(sess *draft.Session) error {
		var flowErr error
		if cmd.Bool("url") {
			entry, _, flowErr = sess.AddURL(ctx, term)
		} else {
			entry, _, flowErr = sess.AddNote(ctx, term, svc.Docs())
		}
		return flowErr
	})
	if err != nil {
		return err
	}
	if len(cv.Result.Written) == 0 {
		fmt.Printf("unchanged: %s\n", doc)
		return nil
	}
	fmt.Printf("added %s to %s of %s\n", entry, field, doc)
	return nil
}

func referrers(ctx context.Context, cmd *cli.Command) error {
	entry := strings.TrimSpace(cmd.Args().First())
	if entry == "" {
		return errors.New("entry is required")
	}
	rt, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	refs, err := rt.Service.Referrers(ctx, entry)
	if err != nil {
		return err
	}
	printReferrers(refs)
	return nil
}

func printReferrers(refs []refservice.Referrer) {
	if len(refs) == 0 {
		fmt.Println("no referrers")
		return
	}
	for _, r := range refs {
		fmt.Printf("%s  %s[%d]  %s\n", r.Source, r.Field, r.Position, r.Entry)
	}
}

func main() {
	cmd := &cli.Command{
		Name:   "refdeck",
		Usage:  "Reference lists for Markdown vaults: panel, editing sessions, HTTP API and MCP tools",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API and vault watcher",
				Action: serve,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the reference tools over MCP stdio",
				Action: serveMCP,
			},
			{
				Name:      "list",
				Usage:     "Print the reference panel of a document",
				ArgsUsage: "<document>",
				Action:    list,
			},
			{
				Name:      "add",
				Usage:     "Interactively add a note or URL reference to a document",
				ArgsUsage: "<document>",
				Action:    add,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "field",
						Aliases: []string{"f"},
						Usage:   "Reference field to edit (prompted when omitted)",
					},
					&cli.BoolFlag{
						Name:  "url",
						Usage: "Add a URL instead of picking a note",
					},
				},
			},
			{
				Name:      "referrers",
				Usage:     "List the documents that reference a note, URL or text entry",
				ArgsUsage: "<entry>",
				Action:    referrers,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
