package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"spectral/internal/encounter"
	"spectral/internal/store"
)

func newEncountersCommand(ctx *commandContext) *cobra.Command {
	encountersCmd := &cobra.Command{
		Use:   "encounters",
		Short: "Inspect stored encounters",
	}

	encountersCmd.AddCommand(newEncountersListCommand(ctx))
	encountersCmd.AddCommand(newEncountersShowCommand(ctx))
	encountersCmd.AddCommand(newEncountersStatsCommand(ctx))
	return encountersCmd
}

func newEncountersListCommand(ctx *commandContext) *cobra.Command {
	var statusFlag string
	var limitFlag int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List encounters by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, ok := encounter.ParseStatus(statusFlag)
			if !ok {
				return fmt.Errorf("unknown status %q (known: %s)", statusFlag, knownStatuses())
			}
			return ctx.withStore(func(st *store.Store) error {
				encounters, err := st.ListByStatus(cmd.Context(), status, limitFlag, store.Cursor{})
				if err != nil {
					return err
				}
				if len(encounters) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No %s encounters.\n", status)
					return nil
				}
				rows := make([][]string, 0, len(encounters))
				for _, enc := range encounters {
					rows = append(rows, []string{
						enc.ID,
						enc.AuthorName,
						truncate(enc.Title, 32),
						string(enc.Status),
						fmt.Sprintf("%.1f", enc.RatingAverage()),
						enc.CreatedAt.Local().Format("2006-01-02 15:04"),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Author", "Title", "Status", "Rating", "Created"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft}))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&statusFlag, "status", "pending", "Status to list")
	cmd.Flags().IntVar(&limitFlag, "limit", 20, "Maximum rows")
	return cmd
}

func newEncountersShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one encounter in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				enc, err := st.GetEncounter(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if enc == nil {
					return fmt.Errorf("encounter %s not found", args[0])
				}
				rows := [][]string{
					{"ID", enc.ID},
					{"Title", enc.Title},
					{"Author", enc.AuthorName},
					{"Status", string(enc.Status)},
					{"Location", fmt.Sprintf("%.5f, %.5f", enc.Latitude, enc.Longitude)},
					{"Address", enc.Address},
					{"Geohash", enc.Geohash},
					{"Encounter time", enc.EncounterTime.Local().Format(time.RFC1123)},
					{"Rating", fmt.Sprintf("%.1f (%d ratings)", enc.RatingAverage(), enc.RatingCount)},
					{"Spookiness", fmt.Sprintf("%.1f (%d verifications)", enc.SpookinessAverage(), enc.VerificationCount)},
					{"Illustrations", strconv.Itoa(len(enc.Illustrations))},
					{"Narration", yesNo(enc.NarrationKey != "")},
					{"Created", enc.CreatedAt.Local().Format(time.RFC1123)},
				}
				if enc.ErrorMessage != "" {
					rows = append(rows, []string{"Last error", enc.ErrorMessage})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, nil))
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Story:")
				fmt.Fprintln(out, enc.Story)
				if enc.EnhancedStory != "" {
					fmt.Fprintln(out)
					fmt.Fprintln(out, "Enhanced story:")
					fmt.Fprintln(out, enc.EnhancedStory)
				}
				return nil
			})
		},
	}
}

func newEncountersStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show encounter counts per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(st *store.Store) error {
				stats, err := st.Stats(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(stats))
				for _, status := range encounter.AllStatuses() {
					rows = append(rows, []string{string(status), strconv.Itoa(stats[status])})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Status", "Encounters"}, rows,
					[]columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func knownStatuses() string {
	statuses := encounter.AllStatuses()
	names := make([]string, len(statuses))
	for i, status := range statuses {
		names[i] = string(status)
	}
	return strings.Join(names, ", ")
}

func truncate(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max-1]) + "…"
}
