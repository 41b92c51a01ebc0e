package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/kozaktomas/lab-access/internal/database"
	"github.com/kozaktomas/lab-access/internal/logger"
	"github.com/spf13/cobra"
)

var membersCmd = &cobra.Command{
	Use:   "members",
	Short: "List and manage enrolled members",
	Long:  `List all enrolled members. Use subcommands to search, edit or remove members.`,
	RunE:  runMembersList,
}

var membersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enrolled members",
	RunE:  runMembersList,
}

var membersFindCmd = &cobra.Command{
	Use:   "find <name>",
	Short: "Find members by name",
	Long:  `Case and accent insensitive search over first and last names.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runMembersFind,
}

var membersEditCmd = &cobra.Command{
	Use:   "edit <member-id>",
	Short: "Change a member's name or lab",
	Long: `Change a member's name or lab. Only the given flags are changed; the stored
face is kept.

Examples:
  lab-access members edit 12 --last Novak
  lab-access members edit 12 --lab 3`,
	Args: cobra.ExactArgs(1),
	RunE: runMembersEdit,
}

var membersRemoveCmd = &cobra.Command{
	Use:   "remove <member-id>",
	Short: "Remove a member",
	Long:  `Remove a member and their template. Past access events are kept.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runMembersRemove,
}

func init() {
	rootCmd.AddCommand(membersCmd)
	membersCmd.AddCommand(membersListCmd)
	membersCmd.AddCommand(membersFindCmd)
	membersCmd.AddCommand(membersEditCmd)
	membersCmd.AddCommand(membersRemoveCmd)

	membersListCmd.Flags().Int64("lab", 0, "Only members of this lab")
	membersCmd.Flags().Int64("lab", 0, "Only members of this lab")

	membersEditCmd.Flags().String("first", "", "New first name")
	membersEditCmd.Flags().String("last", "", "New last name")
	membersEditCmd.Flags().Int64("lab", 0, "New lab ID")
}

// openStore opens only the database, for commands that never touch a model.
func openStore(ctx context.Context) (database.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	store, err := database.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", cfg.Database.Driver, err)
	}
	return store, nil
}

func parseMemberID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid member id %q", arg)
	}
	return id, nil
}

func printMembers(out io.Writer, members []database.Template) {
	if len(members) == 0 {
		fmt.Fprintln(out, "No members found")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tLAB\tENROLLED")
	fmt.Fprintln(w, "--\t----\t---\t--------")
	for _, m := range members {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", m.MemberID, m.DisplayName(), m.LabID, m.CreatedAt.Format("2006-01-02"))
	}
	w.Flush()

	fmt.Fprintf(out, "\nTotal: %d members\n", len(members))
}

func runMembersList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	var members []database.Template
	if lab := mustGetInt64(cmd, "lab"); lab > 0 {
		members, err = store.ListByLab(ctx, lab)
	} else {
		members, err = store.List(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to list members: %w", err)
	}
	printMembers(os.Stdout, members)
	return nil
}

func runMembersFind(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	store, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	members, err := store.FindByName(ctx, args[0])
	if err != nil {
		return fmt.Errorf("failed to search members: %w", err)
	}
	printMembers(os.Stdout, members)
	return nil
}

func runMembersEdit(cmd *cobra.Command, args []string) error {
	id, err := parseMemberID(args[0])
	if err != nil {
		return err
	}
	u := database.MemberUpdate{
		FirstName: optionalString(cmd, "first"),
		LastName:  optionalString(cmd, "last"),
		LabID:     optionalInt64(cmd, "lab"),
	}
	if u.FirstName == nil && u.LastName == nil && u.LabID == nil {
		return fmt.Errorf("nothing to change: use --first, --last or --lab")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	// The service keeps a saved template index in step with lab changes.
	ctx := context.Background()
	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	tpl, err := a.svc.UpdateMember(ctx, id, u)
	if err != nil {
		return err
	}
	fmt.Printf("Member %d is now %s in lab %d\n", tpl.MemberID, tpl.DisplayName(), tpl.LabID)
	return nil
}

func runMembersRemove(cmd *cobra.Command, args []string) error {
	id, err := parseMemberID(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx := context.Background()
	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.svc.RemoveMember(ctx, id); err != nil {
		return err
	}
	fmt.Printf("Member %d removed\n", id)
	return nil
}
