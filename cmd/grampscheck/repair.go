package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"grampscore/pkg/domain"
)

func newRepairCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "repair-duplicates",
		Short: "Remove rows stored more than once under the same handle",
		Long: "repair-duplicates works below the transaction layer: it keeps the newest row for every " +
			"duplicated handle, reindexes the database and clears the undo history.",
		Args: cobra.NoArgs,
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

			removed, err := s.db.RepairDuplicateHandles(ctx)
			if err != nil {
				return err
			}
			total := 0
			for _, n := range removed {
				total += n
			}
			if total == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No duplicate handles were found.")
				return nil
			}
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Type", "Rows removed"})
			for _, kind := range domain.EntityTypes() {
				t.AppendRow(table.Row{kind, removed[kind]})
			}
			t.AppendFooter(table.Row{"total", total})
			t.Render()
			return nil
		},
	}
}
