package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var dueCmd = &cobra.Command{
	Use:   "due",
	Short: "List the slots the next run would publish",
	RunE:  listDue,
}

func init() {
	dueCmd.Flags().Bool("force", false, "include pending slots that are not due yet")
	rootCmd.AddCommand(dueCmd)
}

func listDue(cmd *cobra.Command, _ []string) error {
	force, _ := cmd.Flags().GetBool("force")
	slots, err := postsync.reconcile.DueSlots(cmd.Context(), force)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(slots) == 0 {
		fmt.Fprintln(out, "nothing due")
		return nil
	}
	for _, s := range slots {
		fmt.Fprintf(out, "%-20s draft=%-16s %s (%s) attempts=%d\n",
			s.ID, s.DraftID, s.ScheduledAt.Format("2006-01-02 15:04 MST"), humanize.Time(s.ScheduledAt), s.AttemptCount)
	}
	fmt.Fprintf(out, "%s due\n", humanize.Comma(int64(len(slots))))
	return nil
}
