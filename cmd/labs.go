package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/kozaktomas/lab-access/internal/database"
	"github.com/spf13/cobra"
)

var labsCmd = &cobra.Command{
	Use:   "labs",
	Short: "List and create labs",
	RunE:  runLabsList,
}

var labsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List labs",
	RunE:  runLabsList,
}

var labsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a lab",
	Long: `Create a lab. Members are enrolled into exactly one lab and are only admitted there.

Examples:
  lab-access labs create Robotics --building EIEAB --room 2.126`,
	Args: cobra.ExactArgs(1),
	RunE: runLabsCreate,
}

func init() {
	rootCmd.AddCommand(labsCmd)
	labsCmd.AddCommand(labsListCmd)
	labsCmd.AddCommand(labsCreateCmd)

	labsCreateCmd.Flags().String("building", "", "Building the lab is in")
	labsCreateCmd.Flags().String("room", "", "Room number")
}

func runLabsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	labs, err := store.ListLabs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list labs: %w", err)
	}
	if len(labs) == 0 {
		fmt.Println("No labs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tBUILDING\tROOM")
	fmt.Fprintln(w, "--\t----\t--------\t----")
	for _, l := range labs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", l.ID, l.Name, l.Building, l.Room)
	}
	w.Flush()
	return nil
}

func runLabsCreate(cmd *cobra.Command, args []string) error {
	name := strings.TrimSpace(args[0])
	if name == "" {
		return fmt.Errorf("lab name cannot be empty")
	}

	ctx := context.Background()
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	lab, err := store.CreateLab(ctx, database.Lab{
		Name:     name,
		Building: mustGetString(cmd, "building"),
		Room:     mustGetString(cmd, "room"),
	})
	if err != nil {
		return fmt.Errorf("failed to create lab: %w", err)
	}
	fmt.Printf("Created lab %d: %s\n", lab.ID, lab.Name)
	return nil
}
