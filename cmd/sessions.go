package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/audiolibrelab/notecapture/internal/store"
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"ls"},
	Short:   "List and manage recorded sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		sessions, err := st.List()
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("No sessions yet. Start one with 'notecapture record <title>'.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTITLE\tCOURSE\tCREATED\tDURATION\tSTATUS")
		for _, s := range sessions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				s.ID, s.Title, s.Course,
				s.CreatedAt.Local().Format("2006-01-02 15:04"),
				(time.Duration(s.DurationMs) * time.Millisecond).Round(time.Second),
				s.Status)
		}
		return w.Flush()
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		sess, err := st.Get(args[0])
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(sess)
		if err != nil {
			return fmt.Errorf("error marshaling session: %w", err)
		}
		fmt.Print(string(out))
		fmt.Printf("folder: %s\n", st.SessionDir(sess.ID))
		return nil
	},
}

var sessionsStatusCmd = &cobra.Command{
	Use:   "status <id> <draft|recording|complete|archived>",
	Short: "Change the stored status of a session",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := store.ParseStatus(args[1])
		if err != nil {
			return err
		}
		st, err := openStore()
		if err != nil {
			return err
		}
		if err := st.UpdateStatus(args[0], status); err != nil {
			return err
		}
		fmt.Printf("Session %s is now %s\n", args[0], status)
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a session and its folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		if err := st.Delete(args[0]); err != nil {
			return err
		}
		fmt.Printf("Session %s deleted\n", args[0])
		return nil
	},
}

func init() {
	sessionsCmd.AddCommand(sessionsShowCmd)
	sessionsCmd.AddCommand(sessionsStatusCmd)
	sessionsCmd.AddCommand(sessionsDeleteCmd)
}
