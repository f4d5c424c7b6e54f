package main

import (
	"context"
	"errors"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"grampscore/internal/core"
	"grampscore/pkg/domain"
)

func newStatsCmd(g *globalFlags) *cobra.Command {
	var custom bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show object counts, duplicate Gramps IDs and custom types",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			s, err := g.open(ctx, cmd)
			if err != nil {
				return err
			}
			defer func() { err = errors.Join(err, s.close(g)) }()

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Type", "Objects", "Duplicate IDs", "Next ID"})
			for _, kind := range domain.EntityTypes() {
				n, err := s.db.Count(ctx, kind)
				if err != nil {
					return err
				}
				next, err := s.db.FindNextGrampsID(kind)
				if err != nil {
					return err
				}
				t.AppendRow(table.Row{kind, n, len(s.db.DuplicateGrampsIDs(kind)), next})
			}
			t.AppendFooter(table.Row{"surnames", len(s.db.Surnames()), "", ""})
			t.Render()

			if !custom {
				return nil
			}
			vt := table.NewWriter()
			vt.SetOutputMirror(cmd.OutOrStdout())
			vt.SetStyle(table.StyleLight)
			vt.AppendHeader(table.Row{"Vocabulary", "Custom values"})
			for _, v := range []core.Vocabulary{
				core.VocabEventType, core.VocabFamilyRelation, core.VocabChildRelation,
				core.VocabAttribute, core.VocabURL, core.VocabRepository, core.VocabName,
			} {
				vt.AppendRow(table.Row{v, strings.Join(s.db.CustomTypes(v), ", ")})
			}
			vt.Render()
			return nil
		},
	}
	cmd.Flags().BoolVar(&custom, "custom-types", false, "Also list user defined types in use")
	return cmd
}
