package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/kailas-cloud/profdex/internal/version"
)

func main() {
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "profdexctl",
		Usage:   "Operate the profdex profile index",
		Version: version.String(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env",
				Aliases: []string{"e"},
				Usage:   "Config environment (config/<env>.yaml)",
				EnvVars: []string{"ENV"},
				Value:   "local",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "warn",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "index",
				Usage: "Manage the vector index",
				Subcommands: []*cli.Command{
					{
						Name:   "ensure",
						Usage:  "Create the index, or verify an existing one matches",
						Action: indexEnsureCommand,
						Flags: []cli.Flag{
							&cli.IntFlag{
								Name:  "dimension",
								Usage: "Vector dimension (defaults to embedding.dimensions)",
							},
							&cli.StringFlag{
								Name:  "metric",
								Usage: "Distance metric: COSINE, L2 or IP (defaults to index.metric)",
							},
						},
					},
					{
						Name:   "describe",
						Usage:  "Show the index configuration and status",
						Action: indexDescribeCommand,
					},
					{
						Name:   "delete",
						Usage:  "Drop the index and every stored record",
						Action: indexDeleteCommand,
						Flags: []cli.Flag{
							&cli.BoolFlag{
								Name:  "yes",
								Usage: "Confirm deletion",
							},
						},
					},
				},
			},
			{
				Name:  "namespace",
				Usage: "Manage namespaces",
				Subcommands: []*cli.Command{
					{
						Name:   "clear",
						Usage:  "Delete every record of one namespace",
						Action: namespaceClearCommand,
						Flags: []cli.Flag{
							namespaceFlag(),
						},
					},
				},
			},
			{
				Name:   "ingest",
				Usage:  "Index profile records from a JSONL file",
				Action: ingestCommand,
				Flags: []cli.Flag{
					namespaceFlag(),
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Path to a JSONL file, one record per line (- for stdin)",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Records per ingest call (defaults to ingest.max_batch_size)",
					},
				},
			},
			{
				Name:   "search",
				Usage:  "Run a ranked search",
				Action: searchCommand,
				Flags: []cli.Flag{
					namespaceFlag(),
					&cli.StringFlag{
						Name:     "query",
						Aliases:  []string{"q"},
						Usage:    "Free-text query",
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:  "filter",
						Usage: "Filter as key=value (tag) or key>=N / key<=N (numeric); repeatable",
					},
					&cli.IntFlag{
						Name:  "page",
						Value: 1,
					},
					&cli.IntFlag{
						Name:  "page-size",
						Usage: "Results per page (defaults to search.default_page_size)",
					},
					&cli.BoolFlag{
						Name:  "rewrite",
						Usage: "Expand the query with the generation model before retrieval",
					},
				},
			},
		},
	}
}

func namespaceFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "namespace",
		Aliases:  []string{"n"},
		Usage:    "Namespace (tenant scope)",
		Required: true,
	}
}
