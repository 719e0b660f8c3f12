package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/killallgit/voxlog/internal/models"
	"github.com/killallgit/voxlog/pkg/config"
	"github.com/spf13/cobra"
)

// migrateCmd represents the migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the session index",
	Long: `Manage database migrations for the sqlite session index.

The index mirrors the listing fields of every session so that recent
sessions can be listed without scanning the sessions directory. The JSON
metadata files stay the source of truth; the index can always be rebuilt.

Available subcommands:
  up      - Create or update the index schema and rebuild it from disk
  status  - Compare the index with the sessions on disk`,
}

// migrateUpCmd applies the schema and rebuilds the index
var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply the index schema and rebuild it",
	Long: `Apply all pending database migrations to the session index.

The schema is created or updated in place, then every session found in
the sessions directory is written back into the index.`,
	RunE: runMigrateUp,
}

// migrateStatusCmd shows index status
var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session index status",
	Long: `Display the current status of the session index.

Shows whether the index table exists, how many rows it holds per state
and whether it is in sync with the sessions directory.`,
	RunE: runMigrateStatus,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateStatusCmd)

	migrateUpCmd.Flags().Bool("skip-reindex", false, "only apply the schema")
	migrateCmd.PersistentFlags().Bool("dry-run", false, "show what would be done without making changes")
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	skipReindex, _ := cmd.Flags().GetBool("skip-reindex")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg, false)
	if err != nil {
		return err
	}
	defer st.Close()

	return migrateUp(cmd.Context(), st, cmd.OutOrStdout(), dryRun, !skipReindex)
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg, false)
	if err != nil {
		return err
	}
	defer st.Close()

	return migrationStatus(cmd.Context(), st, cmd.OutOrStdout())
}

func migrateUp(ctx context.Context, st *store, w io.Writer, dryRun, reindex bool) error {
	if st.db == nil {
		fmt.Fprintln(w, "Session index disabled (database.path is empty), nothing to migrate")
		return nil
	}

	if dryRun {
		fmt.Fprintln(w, "Dry run mode - no changes will be made")
		onDisk, err := st.files.List(ctx, 0)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Would apply schema for table %s\n", models.SessionIndex{}.TableName())
		if reindex {
			fmt.Fprintf(w, "Would index %d session(s)\n", len(onDisk))
		}
		return nil
	}

	if err := st.db.MigrateSessionIndex(); err != nil {
		return err
	}
	fmt.Fprintf(w, "Schema applied for table %s\n", models.SessionIndex{}.TableName())

	if !reindex {
		return nil
	}
	n, err := st.index.Reindex(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Indexed %d session(s)\n", n)
	return nil
}

type stateCount struct {
	State string
	Count int64
}

func migrationStatus(ctx context.Context, st *store, w io.Writer) error {
	fmt.Fprintln(w, "Session Index Status")
	fmt.Fprintln(w, strings.Repeat("=", 50))

	onDisk, err := st.files.List(ctx, 0)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Sessions on disk: %d\n", len(onDisk))

	if st.db == nil {
		fmt.Fprintln(w, "Index:            disabled (database.path is empty)")
		return nil
	}

	if !st.db.DB.Migrator().HasTable(&models.SessionIndex{}) {
		fmt.Fprintln(w, "Index:            not migrated")
		fmt.Fprintln(w, "\nRun 'voxlog migrate up' to create it.")
		return nil
	}

	var counts []stateCount
	err = st.db.DB.WithContext(ctx).
		Model(&models.SessionIndex{}).
		Select("state, count(*) as count").
		Group("state").
		Order("state").
		Scan(&counts).Error
	if err != nil {
		return fmt.Errorf("failed to count index rows: %w", err)
	}

	var total int64
	for _, c := range counts {
		total += c.Count
	}
	fmt.Fprintf(w, "Index rows:       %d\n", total)
	for _, c := range counts {
		fmt.Fprintf(w, "  %-14s %d\n", c.State, c.Count)
	}

	if total != int64(len(onDisk)) {
		fmt.Fprintln(w, "\nIndex is out of sync. Run 'voxlog migrate up' to rebuild it.")
	} else {
		fmt.Fprintln(w, "\nIndex is in sync.")
	}
	return nil
}
