package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/killallgit/voxlog/internal/models"
	"github.com/killallgit/voxlog/pkg/config"
	"github.com/spf13/cobra"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#00FFFF"))

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FFFFFF"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000"))

	stateColors = map[models.SessionState]lipgloss.Color{
		models.SessionStateCollecting:   lipgloss.Color("#00FFFF"),
		models.SessionStateTranscribing: lipgloss.Color("#FFFF00"),
		models.SessionStateTranscribed:  lipgloss.Color("#00FF00"),
		models.SessionStateProcessing:   lipgloss.Color("#FFFF00"),
		models.SessionStateProcessed:    lipgloss.Color("#00FF00"),
		models.SessionStateInterrupted:  lipgloss.Color("#FF00FF"),
		models.SessionStateError:        lipgloss.Color("#FF0000"),
	}
)

// sessionsCmd represents the sessions command
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect recorded sessions",
	Long: `Inspect the sessions stored on disk without starting the daemon.

Available subcommands:
  list    - Show the most recent sessions
  show    - Show one session with its clips and errors`,
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the most recent sessions",
	RunE:  runSessionsList,
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one session with its clips and errors",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsShow,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd)
	sessionsCmd.AddCommand(sessionsShowCmd)

	sessionsListCmd.Flags().IntP("limit", "n", 20, "number of sessions to show (0 = all)")
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg, false)
	if err != nil {
		return err
	}
	defer st.Close()

	list, err := st.repository().List(cmd.Context(), limit)
	if err != nil {
		return err
	}

	renderSessionTable(cmd.OutOrStdout(), list)
	return nil
}

func runSessionsShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}
	st, err := openStore(cfg, false)
	if err != nil {
		return err
	}
	defer st.Close()

	session, err := st.repository().Load(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if session == nil {
		return fmt.Errorf("session %s not found", args[0])
	}

	renderSessionDetail(cmd.OutOrStdout(), session)
	return nil
}

func stateStyle(state models.SessionState) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(stateColors[state])
}

func renderSessionTable(w io.Writer, list []*models.Session) {
	if len(list) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No sessions recorded yet."))
		return
	}

	row := func(id, name, state, clips, updated string) string {
		return fmt.Sprintf("%-22s  %-24s  %-12s  %5s  %s", id, name, state, clips, updated)
	}

	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Sessions (%d)", len(list))))
	fmt.Fprintln(w, headerStyle.Render(row("ID", "NAME", "STATE", "CLIPS", "UPDATED")))
	for _, s := range list {
		state := fmt.Sprintf("%-12s", s.State)
		line := fmt.Sprintf("%-22s  %-24s  %s  %5d  %s",
			s.ID,
			truncateName(s.IntelligibleName, 24),
			stateStyle(s.State).Render(state),
			len(s.AudioEntries),
			s.UpdatedAt.Local().Format("2006-01-02 15:04"),
		)
		fmt.Fprintln(w, line)
	}
}

func renderSessionDetail(w io.Writer, s *models.Session) {
	succeeded, failed, pending := s.TranscriptionCounts()

	fmt.Fprintln(w, titleStyle.Render(s.DisplayName()))
	fmt.Fprintf(w, "ID:        %s\n", s.ID)
	fmt.Fprintf(w, "State:     %s\n", stateStyle(s.State).Render(string(s.State)))
	if s.InterruptedFrom != "" {
		fmt.Fprintf(w, "Was:       %s\n", s.InterruptedFrom)
	}
	fmt.Fprintf(w, "Chat:      %d\n", s.ChatID)
	fmt.Fprintf(w, "Created:   %s\n", s.CreatedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(w, "Updated:   %s\n", s.UpdatedAt.Local().Format(time.RFC3339))
	fmt.Fprintf(w, "Duration:  %s\n", s.TotalDuration().Round(time.Second))
	fmt.Fprintf(w, "Clips:     %d (%d transcribed, %d failed, %d pending)\n", len(s.AudioEntries), succeeded, failed, pending)
	if s.Provider != "" {
		fmt.Fprintf(w, "Provider:  %s\n", s.Provider)
	}
	if s.ProcessingOutput != "" {
		fmt.Fprintf(w, "Output:    %s\n", s.ProcessingOutput)
	}

	if len(s.AudioEntries) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-4s  %-12s  %9s  %-10s  %s", "#", "FILE", "SIZE", "STATUS", "RECEIVED")))
		for _, entry := range s.AudioEntries {
			fmt.Fprintf(w, "%-4d  %-12s  %9d  %-10s  %s\n",
				entry.Sequence,
				entry.LocalFilename,
				entry.FileSizeBytes,
				entry.TranscriptionStatus,
				entry.ReceivedAt.Local().Format("15:04:05"),
			)
		}
	}

	if len(s.Errors) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, headerStyle.Render("Errors"))
		for _, e := range s.Errors {
			line := fmt.Sprintf("%s  %s", e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Operation)
			if e.Target != "" {
				line += " " + e.Target
			}
			fmt.Fprintln(w, errorStyle.Render(line+": "+e.Message))
		}
	}
}

func truncateName(name string, n int) string {
	if name == "" {
		return "-"
	}
	runes := []rune(name)
	if len(runes) <= n {
		return name
	}
	return strings.TrimSpace(string(runes[:n-1])) + "…"
}
