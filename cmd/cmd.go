package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/urfave/cli/v3"
)

func formatFlag(value string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format (text, csv, markdown, json, yaml)",
		Value:   value,
	}
}

func channelFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:     "channel",
		Usage:    "Channel ID",
		Required: true,
	}
}

// cardFlags identify a single card for bind and detach.
func cardFlags() []cli.Flag {
	return []cli.Flag{
		channelFlag(),
		&cli.StringFlag{
			Name:     "card",
			Usage:    "External card ID",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "name",
			Usage: "Card name",
		},
		&cli.StringFlag{
			Name:  "sheet-type",
			Usage: "Card sheet type",
		},
	}
}

// cardListFlags describe a batch of cards, inline or from a JSON file.
func cardListFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "card",
			Usage: "Card as id[:name[:sheetType]] (repeatable)",
		},
		&cli.StringFlag{
			Name:  "cards-file",
			Usage: "JSON file with an array of {id, name, sheetType}",
		},
	}
}

// templateFieldFlags are shared by create and update.
func templateFieldFlags(required bool) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "name",
			Aliases:  []string{"n"},
			Usage:    "Template name",
			Required: required,
		},
		&cli.StringFlag{
			Name:  "sheet-type",
			Usage: "Sheet type the template applies to",
		},
		&cli.StringFlag{
			Name:  "content",
			Usage: "Template content",
		},
		&cli.StringFlag{
			Name:  "file",
			Usage: "Read template content from a file",
		},
		&cli.BoolFlag{
			Name:  "global-default",
			Usage: "Mark as the global default",
		},
		&cli.BoolFlag{
			Name:  "sheet-default",
			Usage: "Mark as the default for its sheet type",
		},
		formatFlag("text"),
	}
}

// setupCommand handles setup operations for the local database and configuration.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Initialize the local database and run migrations",
				Action: r.SetupDatabase,
			},
			{
				Name:   "status",
				Usage:  "List schema migrations and whether they are applied",
				Action: r.SetupStatus,
			},
			{
				Name:   "rollback",
				Usage:  "Revert the most recent schema migration",
				Action: r.SetupRollback,
			},
			{
				Name:  "config",
				Usage: "Write the default configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Path to write (defaults to --config)",
					},
				},
				Action: r.SetupConfig,
			},
		},
	}
}

// templatesCommand handles template CRUD and export.
func templatesCommand(r *Runner) *cli.Command {
	idArg := []cli.Argument{&cli.StringArg{Name: "id"}}

	return &cli.Command{
		Name:    "templates",
		Aliases: []string{"tpl"},
		Usage:   "Manage character card templates",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List templates",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "sheet-type",
						Usage: "Only templates of this sheet type",
					},
					&cli.StringFlag{
						Name:    "search",
						Aliases: []string{"s"},
						Usage:   "Fuzzy match template names",
					},
					formatFlag("text"),
				},
				Action: r.TemplatesList,
			},
			{
				Name:      "show",
				Usage:     "Show one template",
				Arguments: idArg,
				Flags: []cli.Flag{
					formatFlag("markdown"),
					&cli.BoolFlag{
						Name:  "render",
						Usage: "Render content as Markdown for the terminal",
					},
				},
				Action: r.TemplatesShow,
			},
			{
				Name:   "create",
				Usage:  "Create a template",
				Flags:  templateFieldFlags(true),
				Action: r.TemplatesCreate,
			},
			{
				Name:      "update",
				Usage:     "Update fields of a template",
				Arguments: idArg,
				Flags:     templateFieldFlags(false),
				Action:    r.TemplatesUpdate,
			},
			{
				Name:      "delete",
				Aliases:   []string{"rm"},
				Usage:     "Delete a template; bound cards keep a detached copy",
				Arguments: idArg,
				Action:    r.TemplatesDelete,
			},
			{
				Name:      "set-default",
				Usage:     "Make a template the global or sheet default",
				Arguments: idArg,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "scope",
						Usage: "global or sheet",
						Value: "global",
					},
				},
				Action: r.TemplatesSetDefault,
			},
			{
				Name:  "export",
				Usage: "Export every template to a directory",
				Flags: []cli.Flag{
					formatFlag("markdown"),
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output directory (default: templates_export_{epoch})",
					},
					&cli.StringFlag{
						Name:  "sheet-type",
						Usage: "Only templates of this sheet type",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent writers",
						Value: 4,
					},
				},
				Action: r.TemplatesExport,
			},
		},
	}
}

// bindingsCommand handles per-channel card bindings.
func bindingsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "bindings",
		Aliases: []string{"b"},
		Usage:   "Manage card bindings",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List the bindings of a channel",
				Flags: []cli.Flag{
					channelFlag(),
					formatFlag("text"),
				},
				Action: r.BindingsList,
			},
			{
				Name:  "bind",
				Usage: "Bind a card to a shared template",
				Flags: append(cardFlags(), &cli.StringFlag{
					Name:     "template",
					Aliases:  []string{"t"},
					Usage:    "Template ID",
					Required: true,
				}),
				Action: r.BindingsBind,
			},
			{
				Name:  "detach",
				Usage: "Give a card its own copy of template content",
				Flags: append(cardFlags(),
					&cli.StringFlag{
						Name:  "content",
						Usage: "Snapshot content (defaults to the card's resolved template)",
					},
					&cli.StringFlag{
						Name:  "file",
						Usage: "Read snapshot content from a file",
					},
				),
				Action: r.BindingsDetach,
			},
			{
				Name:  "ensure",
				Usage: "Bind every card that has no binding yet",
				Flags: append(cardListFlags(),
					channelFlag(),
					&cli.StringFlag{
						Name:  "fallback",
						Usage: "Content for cards bound without any default",
					},
				),
				Action: r.BindingsEnsure,
			},
			{
				Name:      "warm",
				Usage:     "Load templates and the bindings of several channels",
				ArgsUsage: "<channel-id>...",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "concurrency",
						Usage: "Channels loaded in parallel",
						Value: 4,
					},
				},
				Action: r.BindingsWarm,
			},
		},
	}
}

// resolveCommand prints the template content that applies to a card.
func resolveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "resolve",
		Usage: "Print the template content for a card",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "channel",
				Usage: "Channel ID",
			},
			&cli.StringFlag{
				Name:  "card",
				Usage: "External card ID",
			},
			&cli.StringFlag{
				Name:  "sheet-type",
				Usage: "Card sheet type",
			},
			&cli.StringFlag{
				Name:  "fallback",
				Usage: "Content when nothing else applies",
			},
			&cli.BoolFlag{
				Name:  "render",
				Usage: "Render content as Markdown for the terminal",
			},
		},
		Action: r.Resolve,
	}
}

// migrateCommand imports legacy local templates for a channel's cards.
func migrateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "migrate",
		Usage:  "Import legacy local templates once per user",
		Flags:  append(cardListFlags(), channelFlag()),
		Action: r.Migrate,
	}
}

// legacyCommand inspects the legacy local template data.
func legacyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "legacy",
		Usage: "Inspect legacy local template data",
		Commands: []*cli.Command{
			{
				Name:      "import",
				Usage:     "Store a legacy JSON object (card id → content) in local storage",
				Arguments: []cli.Argument{&cli.StringArg{Name: "path"}},
				Action:    r.LegacyImport,
			},
			{
				Name:   "status",
				Usage:  "Show legacy data and migration flags",
				Action: r.LegacyStatus,
			},
			{
				Name:   "reset",
				Usage:  "Clear the migration flag for the configured user",
				Action: r.LegacyReset,
			},
		},
	}
}

// serveCommand runs the reference API server.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the template API server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "host",
				Usage: "Listen host (overrides server.host)",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "Listen port (overrides server.port)",
			},
		},
		Action: r.Serve,
	}
}

// apiCommand sends raw requests to the template API, for debugging servers.
func apiCommand(r *Runner) *cli.Command {
	var commands []*cli.Command
	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete} {
		flags := []cli.Flag{&cli.BoolFlag{Name: "pretty", Usage: "Pretty-print JSON responses", Value: true}}
		if method == http.MethodPost || method == http.MethodPut {
			flags = append(flags, &cli.StringFlag{
				Name:     "data",
				Aliases:  []string{"d"},
				Usage:    "JSON body, or @file to read it from a file",
				Required: true,
			})
		}
		commands = append(commands, &cli.Command{
			Name:      strings.ToLower(method),
			Usage:     fmt.Sprintf("Send a %s request relative to client.base_url", method),
			ArgsUsage: "<path>",
			Arguments: []cli.Argument{&cli.StringArg{Name: "path"}},
			Flags:     flags,
			Action:    r.APIRequest(method),
		})
	}

	return &cli.Command{
		Name:     "api",
		Usage:    "Direct calls to the template API",
		Commands: commands,
	}
}

// tuiCommand returns the top-level TUI command for browsing templates.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Launch the interactive template browser",
		Action:  r.TUI,
	}
}
