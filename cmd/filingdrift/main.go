// Command filingdrift indexes filings listed in a manifest and scores each
// filing's drift from the prior year's, printing a YAML report.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "filingdrift",
		Usage: "measure year-over-year drift in company filings",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db",
				Usage:   "SQLite database path",
				EnvVars: []string{"DATABASE_PATH"},
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "only log errors",
			},
			&cli.BoolFlag{
				Name:    "stem",
				Usage:   "stem tokens before scoring",
				EnvVars: []string{"STEM_TOKENS"},
			},
			&cli.StringFlag{
				Name:    "passphrase",
				Usage:   "default passphrase for encrypted PDFs",
				EnvVars: []string{"PDF_PASSPHRASE"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "ingest",
				Usage: "index every filing in a manifest",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "manifest", Aliases: []string{"m"}, Usage: "YAML or CSV manifest", Required: true},
					&cli.BoolFlag{Name: "compare", Usage: "score drift for every ingested ticker afterwards"},
				},
				Action: IngestAction,
			},
			{
				Name:  "compare",
				Usage: "score each filing of a ticker against its prior-year filing",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "ticker", Aliases: []string{"t"}, Usage: "ticker symbol (repeatable)", Required: true},
				},
				Action: CompareAction,
			},
			{
				Name:  "documents",
				Usage: "list indexed filings",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "ticker", Aliases: []string{"t"}, Usage: "only this ticker"},
				},
				Action: DocumentsAction,
			},
			{
				Name:  "sections",
				Usage: "list the sections of an indexed filing",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "document", Aliases: []string{"d"}, Usage: "document name", Required: true},
					&cli.BoolFlag{Name: "text", Usage: "include section text"},
				},
				Action: SectionsAction,
			},
			{
				Name:  "search",
				Usage: "print sections whose title contains a keyword",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "document", Aliases: []string{"d"}, Usage: "document name", Required: true},
					&cli.StringSliceFlag{Name: "q", Usage: "title keyword (repeatable)", Required: true},
				},
				Action: SearchAction,
			},
		},
	}
}
