package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	domainReconcile "github.com/AzielCF/az-postsync/domains/reconcile"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one reconciliation pass and exit",
	Long: `Publishes every pending slot that is due, writes the results back to the
schedule document and sends the run summary. Intended for cron jobs.`,
	RunE: runOnce,
}

func init() {
	runCmd.Flags().Bool("force", false, "ignore scheduled times and the stale window")
	runCmd.Flags().StringSlice("slot", nil, "restrict the run to these slot ids | example: --slot=s1,s2")
	runCmd.Flags().Bool("json", false, "print the run report as JSON")
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, _ []string) error {
	force, _ := cmd.Flags().GetBool("force")
	slots, _ := cmd.Flags().GetStringSlice("slot")
	asJSON, _ := cmd.Flags().GetBool("json")

	trigger := domainReconcile.TriggerPeriodic
	if force || len(slots) > 0 {
		trigger = domainReconcile.TriggerManual
	}

	report, err := postsync.reconcile.Run(cmd.Context(), domainReconcile.RunRequest{
		Trigger: trigger,
		Force:   force,
		SlotIDs: slots,
	})

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if encErr := enc.Encode(report); encErr != nil {
			logrus.Errorf("[RUN] Failed to encode report: %v", encErr)
		}
	} else {
		printReport(cmd, report)
	}

	if err != nil {
		return fmt.Errorf("run %s failed: %w", report.RunID, err)
	}
	return nil
}

func printReport(cmd *cobra.Command, report domainReconcile.RunReport) {
	out := cmd.OutOrStdout()
	if report.SkippedReason != "" {
		fmt.Fprintf(out, "run %s skipped: %s\n", report.RunID, report.SkippedReason)
		return
	}
	fmt.Fprintf(out, "run %s: %d due, %d published, %d failed, %d deferred\n",
		report.RunID, report.DuePicked, report.Published, report.Failed, report.Deferred)
	for _, s := range report.Slots {
		line := fmt.Sprintf("  %-20s %-12s attempts=%d", s.SlotID, s.Status, s.Attempts)
		if s.Permalink != "" {
			line += " " + s.Permalink
		}
		if s.Error != "" {
			line += " error=" + s.Error
		}
		fmt.Fprintln(out, line)
	}
}
