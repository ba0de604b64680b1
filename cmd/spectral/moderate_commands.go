package main

import (
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

type pendingEncounter struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	AuthorName string    `json:"authorName"`
	CreatedAt  time.Time `json:"createdAt"`
}

type pendingPage struct {
	Encounters []pendingEncounter `json:"encounters"`
	Count      int                `json:"count"`
	NextToken  string             `json:"nextToken"`
}

type moderationResult struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Queued bool   `json:"queued"`
}

func newModerateCommand(ctx *commandContext) *cobra.Command {
	moderateCmd := &cobra.Command{
		Use:   "moderate",
		Short: "Review and act on submitted encounters",
	}

	moderateCmd.AddCommand(newModeratePendingCommand(ctx))
	moderateCmd.AddCommand(newModerateApproveCommand(ctx))
	moderateCmd.AddCommand(newModerateRejectCommand(ctx))
	moderateCmd.AddCommand(newModerateEnhanceCommand(ctx))
	return moderateCmd
}

func newModeratePendingCommand(ctx *commandContext) *cobra.Command {
	var limitFlag int
	var tokenFlag string

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List encounters awaiting review",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := ctx.moderatorToken()
			if err != nil {
				return err
			}
			query := url.Values{}
			if limitFlag > 0 {
				query.Set("limit", strconv.Itoa(limitFlag))
			}
			if tokenFlag != "" {
				query.Set("token", tokenFlag)
			}
			path := "/api/v1/moderation/pending"
			if encoded := query.Encode(); encoded != "" {
				path += "?" + encoded
			}

			var page pendingPage
			if err := ctx.callDaemon("GET", path, token, nil, &page); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if page.Count == 0 {
				fmt.Fprintln(out, "No pending encounters.")
				return nil
			}
			rows := make([][]string, 0, page.Count)
			for _, enc := range page.Encounters {
				rows = append(rows, []string{
					enc.ID,
					enc.AuthorName,
					truncate(enc.Title, 32),
					enc.CreatedAt.Local().Format("2006-01-02 15:04"),
				})
			}
			fmt.Fprintln(out, renderTable([]string{"ID", "Author", "Title", "Submitted"}, rows, nil))
			if page.NextToken != "" {
				fmt.Fprintf(out, "More results: --page-token %s\n", page.NextToken)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limitFlag, "limit", 20, "Maximum rows")
	cmd.Flags().StringVar(&tokenFlag, "page-token", "", "Continuation token from a previous page")
	return cmd
}

func newModerateApproveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a pending encounter and queue enhancement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := ctx.moderatorToken()
			if err != nil {
				return err
			}
			var result moderationResult
			path := "/api/v1/moderation/encounters/" + url.PathEscape(args[0]) + "/approve"
			if err := ctx.callDaemon("POST", path, token, struct{}{}, &result); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Encounter %s approved and queued for enhancement.\n", result.ID)
			return nil
		},
	}
}

func newModerateRejectCommand(ctx *commandContext) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a pending encounter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := ctx.moderatorToken()
			if err != nil {
				return err
			}
			var result moderationResult
			path := "/api/v1/moderation/encounters/" + url.PathEscape(args[0]) + "/reject"
			body := map[string]string{"reason": reason}
			if err := ctx.callDaemon("POST", path, token, body, &result); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Encounter %s rejected.\n", result.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Reason shown to operators")
	return cmd
}

func newModerateEnhanceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "enhance <id>",
		Short: "Queue or re-queue enhancement for an encounter",
		Args:  cobra.ExactArgs(1),
		RunE:  runEnhance(ctx),
	}
}

// newEnhanceCommand is a top-level alias for `moderate enhance`, since
// re-triggering a stuck enhancement is the most common operator action.
func newEnhanceCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "enhance <id>",
		Short: "Queue or re-queue enhancement for an encounter",
		Args:  cobra.ExactArgs(1),
		RunE:  runEnhance(ctx),
	}
}

func runEnhance(ctx *commandContext) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		token, err := ctx.moderatorToken()
		if err != nil {
			return err
		}
		var result moderationResult
		path := "/api/v1/moderation/encounters/" + url.PathEscape(args[0]) + "/enhance"
		if err := ctx.callDaemon("POST", path, token, struct{}{}, &result); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if result.Queued {
			fmt.Fprintf(out, "Encounter %s queued for enhancement.\n", result.ID)
		} else {
			fmt.Fprintf(out, "Encounter %s is already %s; nothing queued.\n", result.ID, result.Status)
		}
		return nil
	}
}
