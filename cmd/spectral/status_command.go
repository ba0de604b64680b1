package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

type daemonStatus struct {
	Running      bool   `json:"running"`
	Address      string `json:"address"`
	QueueReady   int    `json:"queueReady"`
	QueueLeased  int    `json:"queueLeased"`
	QueueDead    int    `json:"queueDead"`
	DatabasePath string `json:"databasePath"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			var status daemonStatus
			if err := ctx.callDaemon("GET", "/api/v1/status", "", nil, &status); err != nil {
				return err
			}

			rows := [][]string{
				{"Running", yesNo(status.Running)},
				{"Address", status.Address},
				{"Queue ready", strconv.Itoa(status.QueueReady)},
				{"Queue leased", strconv.Itoa(status.QueueLeased)},
				{"Queue dead", strconv.Itoa(status.QueueDead)},
				{"Database", status.DatabasePath},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Field", "Value"}, rows, nil))
			return nil
		},
	}
}
