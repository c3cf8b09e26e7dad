package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/canonical/docs-viewer/internal/config"
	"github.com/canonical/docs-viewer/internal/content"
	"github.com/canonical/docs-viewer/internal/i18n"
	"github.com/canonical/docs-viewer/internal/index"
	"github.com/canonical/docs-viewer/internal/snapshot"
)

var (
	queryLang    string
	queryJSON    bool
	queryRebuild bool
)

type queryMatch struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

type queryOutput struct {
	Query    string       `json:"query"`
	Language string       `json:"language"`
	Source   string       `json:"source"`
	Matches  []queryMatch `json:"matches"`
}

var queryCmd = &cobra.Command{
	Use:   "query <terms>",
	Short: "List the units whose text in any language contains every term",
	Long: `List the translation keys whose text, in any configured language,
contains every query term. Matching is case-insensitive substring matching.

Examples:
  docsearch query "quick fox"
  docsearch query --lang fr hello
  docsearch query --json install | jq '.matches'`,
	Args: cobra.MinimumNArgs(1),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().StringVarP(&queryLang, "lang", "l", "", "Language to display matches in (default: configured default)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "Output matches as JSON")
	queryCmd.Flags().BoolVar(&queryRebuild, "rebuild", false, "Build the index from the locales instead of the snapshot")
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, store, _, err := setup()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	query := strings.Join(args, " ")
	lang := store.Resolve(queryLang)
	out := queryOutput{Query: query, Language: lang, Matches: []queryMatch{}}

	keys, source, err := matchKeys(ctx, cfg, store, query)
	if err != nil {
		return err
	}
	out.Source = source

	if _, err := store.Load(ctx, lang); err != nil {
		return fmt.Errorf("load locale %s: %w", lang, err)
	}
	for _, k := range keys {
		raw, _ := store.Lookup(lang, k)
		out.Matches = append(out.Matches, queryMatch{Key: k, Text: content.PlainText(raw)})
	}

	if queryJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}
	return printMatches(cmd.OutOrStdout(), out)
}

// matchKeys answers from the snapshot when one exists, and builds the index
// from the locales otherwise.
func matchKeys(ctx context.Context, cfg *config.Config, store *i18n.Store, query string) ([]string, string, error) {
	if path := cfg.IndexPath(); path != "" && !queryRebuild {
		if _, err := os.Stat(path); err == nil {
			r, err := snapshot.Open(path)
			if err != nil {
				return nil, "", err
			}
			defer func() { _ = r.Close() }()
			keys, err := r.Match(ctx, query)
			return keys, "snapshot", err
		}
	}

	ix := index.New(0, nil)
	if err := ix.Prepare(ctx, store); err != nil && !ix.Ready() {
		return nil, "", err
	}
	if ix.Len() == 0 {
		return nil, "", errors.New("no locale could be loaded")
	}
	return ix.Match(query), "locales", nil
}

func printMatches(w io.Writer, out queryOutput) error {
	if len(out.Matches) == 0 {
		_, err := fmt.Fprintf(w, "No matches for %q\n", out.Query)
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, m := range out.Matches {
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", m.Key, m.Text)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d matches (%s)\n", len(out.Matches), out.Source)
	return err
}
