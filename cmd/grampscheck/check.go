package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"grampscore/internal/blob"
	"grampscore/internal/check"
	"grampscore/pkg/domain"
)

func newCheckCmd(g *globalFlags) *cobra.Command {
	var (
		media         bool
		policy        string
		replacePrefix string
		batch         bool
		maxRounds     int
		concurrency   int
		format        string
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check and repair the referential integrity of the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			if format != "table" && format != "json" {
				return fmt.Errorf("invalid format: %s (valid values: table, json)", format)
			}
			mp, err := parsePolicy(policy)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			s, err := g.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, s.close(g)) }()

			opts := []check.Option{
				check.WithLogger(s.log),
				check.WithMetricsRecorder(s.metrics),
				check.WithCorrectionRecorder(s.metrics),
				check.WithMaxFamilyRounds(maxRounds),
				check.WithMediaConcurrency(concurrency),
			}
			if batch {
				opts = append(opts, check.Batch())
			}
			if media {
				store, err := blob.Open(ctx, s.cfg.Media)
				if err != nil {
					return fmt.Errorf("media store: %w", err)
				}
				opts = append(opts, check.WithMediaStore(store, mp))
				if replacePrefix != "" {
					r, err := prefixReplacer(replacePrefix)
					if err != nil {
						return err
					}
					opts = append(opts, check.WithReplacer(r))
				}
			}

			rep, err := check.New(s.db, opts...).Run(ctx)
			if err != nil {
				return err
			}
			if format == "json" {
				return outputReportJSON(cmd, rep)
			}
			outputReportTable(cmd, rep)
			return nil
		},
	}

	cmd.Flags().BoolVar(&media, "media", false, "Also check that media files exist in the configured media store")
	cmd.Flags().StringVar(&policy, "media-policy", "keep", "What to do with media whose file is missing: keep, remove or replace")
	cmd.Flags().StringVar(&replacePrefix, "replace-prefix", "", "Rewrite missing media paths as old=new when the policy is replace")
	cmd.Flags().BoolVar(&batch, "batch", false, "Run as a batch transaction (faster, cannot be undone)")
	cmd.Flags().IntVar(&maxRounds, "max-rounds", check.DefaultMaxFamilyRounds, "Maximum rounds of family repairs")
	cmd.Flags().IntVar(&concurrency, "media-concurrency", 8, "Parallel media file probes")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")

	return cmd
}

func parsePolicy(s string) (check.MediaPolicy, error) {
	switch strings.ToLower(s) {
	case "keep", "":
		return check.MediaKeep, nil
	case "remove":
		return check.MediaRemove, nil
	case "replace":
		return check.MediaReplace, nil
	default:
		return 0, fmt.Errorf("invalid media policy: %s (valid values: keep, remove, replace)", s)
	}
}

// prefixReplacer rewrites paths starting with old to start with new.
func prefixReplacer(arg string) (check.Replacer, error) {
	oldPrefix, newPrefix, ok := strings.Cut(arg, "=")
	if !ok || oldPrefix == "" {
		return nil, fmt.Errorf("invalid --replace-prefix %q: want old=new", arg)
	}
	return func(_ context.Context, m *domain.Media) (string, bool) {
		if !strings.HasPrefix(m.Path, oldPrefix) {
			return "", false
		}
		return newPrefix + strings.TrimPrefix(m.Path, oldPrefix), true
	}, nil
}

type reportJSON struct {
	Clean         bool                `json:"clean"`
	Corrections   []correctionJSON    `json:"corrections"`
	Counts        map[check.Kind]int  `json:"counts"`
	AncestorLoops []string            `json:"ancestor_loops,omitempty"`
	MissingMedia  []check.MissingFile `json:"missing_media,omitempty"`
	Passes        []passJSON          `json:"passes"`
	FamilyRounds  int                 `json:"family_rounds"`
}

type correctionJSON struct {
	Kind     check.Kind        `json:"kind"`
	Type     domain.EntityType `json:"type"`
	Handle   string            `json:"handle"`
	GrampsID string            `json:"gramps_id"`
	Detail   string            `json:"detail"`
}

type passJSON struct {
	Name        string  `json:"name"`
	Corrections int     `json:"corrections"`
	DurationMS  float64 `json:"duration_ms"`
}

func outputReportJSON(cmd *cobra.Command, rep *check.Report) error {
	out := reportJSON{
		Clean:        rep.Clean(),
		Corrections:  make([]correctionJSON, 0, len(rep.Corrections)),
		Counts:       rep.Counts(),
		MissingMedia: rep.MissingMedia,
		FamilyRounds: rep.FamilyRounds,
	}
	for _, c := range rep.Corrections {
		out.Corrections = append(out.Corrections, correctionJSON{
			Kind: c.Kind, Type: c.Object.Kind, Handle: c.Object.Handle, GrampsID: c.GrampsID, Detail: c.Detail,
		})
	}
	for _, l := range rep.AncestorLoops {
		out.AncestorLoops = append(out.AncestorLoops, l.Handle)
	}
	for _, p := range rep.Passes {
		out.Passes = append(out.Passes, passJSON{
			Name: p.Name, Corrections: p.Corrections, DurationMS: float64(p.Duration) / float64(time.Millisecond),
		})
	}
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}

func outputReportTable(cmd *cobra.Command, rep *check.Report) {
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, rep.String())
	if len(rep.Corrections) > 0 {
		t := table.NewWriter()
		t.SetOutputMirror(w)
		t.SetStyle(table.StyleLight)
		t.AppendHeader(table.Row{"Kind", "Type", "ID", "Detail"})
		for _, c := range rep.Corrections {
			id := c.GrampsID
			if id == "" {
				id = c.Object.Handle
			}
			t.AppendRow(table.Row{c.Kind, c.Object.Kind, id, c.Detail})
		}
		t.Render()
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Pass", "Corrections", "Duration"})
	for _, p := range rep.Passes {
		t.AppendRow(table.Row{p.Name, p.Corrections, p.Duration.Round(time.Microsecond)})
	}
	t.AppendFooter(table.Row{"total", rep.Total(), fmt.Sprintf("%d family rounds", rep.FamilyRounds)})
	t.Render()
}
