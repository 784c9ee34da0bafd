package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/tagrade/tagrade/internal/app"
	"github.com/tagrade/tagrade/internal/errors"
	"github.com/tagrade/tagrade/internal/grading"
	"github.com/tagrade/tagrade/internal/roster"
)

var gradeCmd = &cobra.Command{
	Use:   "grade <lab> <student> [partner...]",
	Short: "Lock a student and download their submission",
	Long: `Grade takes the grading lock for each student, downloads their
submission for the lab into the shared submissions directory and keeps the
locks until you press Enter.

Students can be given by platform ID, e-mail, NetID or a unique part of
their name. Extra students are pair-programming partners: all of them are
locked before anything is downloaded, and if any is already being graded
nothing is.

Examples:
  tagrade grade Lab3 42
  tagrade grade Lab3 alovelace cbabbage
  tagrade grade Lab3 42 --no-wait`,
	Args: cobra.MinimumNArgs(2),
	RunE: runGrade,
}

var gradeNoWait bool

func init() {
	rootCmd.AddCommand(gradeCmd)
	gradeCmd.Flags().BoolVar(&gradeNoWait, "no-wait", false, "Release the locks as soon as the download finishes")
}

func runGrade(cmd *cobra.Command, args []string) error {
	return runApp(cmd, func(ctx context.Context, a *app.App) error {
		if a.Fetcher() == nil {
			return errors.NewValidationError("no submission platform configured; set fetch.base_url").WithField("fetch.base_url")
		}

		r, err := a.Roster()
		if err != nil {
			return err
		}
		lab, err := findLab(r, args[0])
		if err != nil {
			return err
		}
		students := make([]roster.Student, 0, len(args)-1)
		for _, q := range args[1:] {
			s, err := findStudent(r, q)
			if err != nil {
				return err
			}
			students = append(students, s)
		}

		out := cmd.OutOrStdout()
		review := func(ctx context.Context, results []grading.Result) error {
			printResults(out, lab, students, results)
			if gradeNoWait {
				return nil
			}
			return waitForEnter(ctx, cmd, "\nPress Enter when you are done grading to release the lock(s). ")
		}

		results, outcome, err := a.Workflow.Grade(ctx, lab, students, review)
		if outcome.LockedElsewhere() {
			return errors.NewAlreadyLockedError(lab.Name, outcome.Student, outcome.LockedBy)
		}
		if err != nil {
			// review did not run after a failed fetch.
			if errors.Is(err, errors.ErrTransientFetch) || errors.Is(err, errors.ErrFetchFailed) {
				printResults(out, lab, students, results)
			}
			for _, st := range a.Workflow.Retries().Exhausted() {
				fmt.Fprintf(out, "Gave up on %s/%s after %d attempt(s): %s\n", st.Lab, st.Student, st.Attempts, st.LastError)
			}
			return err
		}
		fmt.Fprintf(out, "Released %s for %d student(s).\n", lab.Name, len(students))
		return nil
	})
}

func printResults(w io.Writer, lab roster.Lab, students []roster.Student, results []grading.Result) {
	for i, res := range results {
		if i >= len(students) {
			break
		}
		s := students[i]
		fmt.Fprintf(w, "%s / %s (%s): %s", lab.Name, s.FullName(), s.Key(), res.Status)
		if res.Status == grading.StatusOK {
			fmt.Fprintf(w, ", %d file(s)", len(res.Files))
		}
		fmt.Fprintln(w)
		if res.Detail != "" {
			fmt.Fprintf(w, "  %s\n", res.Detail)
		}
		for _, f := range res.Files {
			fmt.Fprintf(w, "  %-12s %-24s score %-6g %s\n", f.Part, f.Name, f.Score, f.Path)
		}
	}
}
