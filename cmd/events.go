package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/kozaktomas/lab-access/internal/constants"
	"github.com/kozaktomas/lab-access/internal/database"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect the access audit trail",
}

var eventsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List access events, newest first",
	Long: `List access events, newest first.

Examples:
  lab-access events list --lab 1 --limit 20
  lab-access events list --member 12`,
	RunE: runEventsList,
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsListCmd)

	eventsListCmd.Flags().Int64("lab", 0, "Only events at this lab")
	eventsListCmd.Flags().Int64("member", 0, "Only events identifying this member")
	eventsListCmd.Flags().Int("limit", constants.DefaultEventLimit, "Maximum number of events")
}

func printEvents(out io.Writer, events []database.AccessEvent) {
	if len(events) == 0 {
		fmt.Fprintln(out, "No events found")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tLAB\tMEMBER\tDECISION\tREASON\tDISTANCE")
	fmt.Fprintln(w, "----\t---\t------\t--------\t------\t--------")
	for _, e := range events {
		member, dist := "-", "-"
		if e.MemberID != nil {
			member = fmt.Sprintf("%d", *e.MemberID)
		}
		if e.Distance != nil {
			dist = fmt.Sprintf("%.4f", *e.Distance)
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
			e.OccurredAt.Local().Format("2006-01-02 15:04:05"), e.LabID, member, e.Decision, e.Reason, dist)
	}
	w.Flush()
}

func runEventsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	events, err := store.ListEvents(ctx, database.EventFilter{
		LabID:    mustGetInt64(cmd, "lab"),
		MemberID: mustGetInt64(cmd, "member"),
		Limit:    mustGetInt(cmd, "limit"),
	})
	if err != nil {
		return fmt.Errorf("failed to list events: %w", err)
	}
	printEvents(os.Stdout, events)
	return nil
}
