package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tagrade/tagrade/internal/app"
	"github.com/tagrade/tagrade/internal/errors"
)

var emailCmd = &cobra.Command{
	Use:   "email <student>",
	Short: "Lock a student's e-mail thread while you answer it",
	Long: `Email takes the student's e-mail lock so no other assistant answers the
same student at the same time, and holds it until you press Enter.

The e-mail lock is independent of grading locks: a student can be graded by
one assistant while another answers their e-mail.`,
	Args: cobra.ExactArgs(1),
	RunE: runEmail,
}

func init() {
	rootCmd.AddCommand(emailCmd)
}

func runEmail(cmd *cobra.Command, args []string) error {
	return runApp(cmd, func(ctx context.Context, a *app.App) error {
		key := args[0]
		name := key
		if r, err := a.Roster(); err == nil {
			s, err := findStudent(r, key)
			if err != nil {
				return err
			}
			key, name = s.Key(), s.String()
		} else {
			a.Logger.Debug("roster unavailable, using the student key as given", "error", err)
		}

		out := cmd.OutOrStdout()
		outcome, err := a.Workflow.WithEmailLock(ctx, key, func(ctx context.Context) error {
			fmt.Fprintf(out, "Answering e-mail from %s.\n", name)
			return waitForEnter(ctx, cmd, "Press Enter when you have replied to release the lock. ")
		})
		if outcome.LockedElsewhere() {
			return errors.NewAlreadyLockedError("", key, outcome.LockedBy)
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "Released.")
		return nil
	})
}
