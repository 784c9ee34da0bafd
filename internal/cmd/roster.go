package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tagrade/tagrade/internal/app"
	"github.com/tagrade/tagrade/internal/roster"
)

var rosterCmd = &cobra.Command{
	Use:   "roster",
	Short: "Look up students, labs and sections",
}

var rosterStudentsCmd = &cobra.Command{
	Use:   "students [query]",
	Short: "List students, optionally matching an ID, e-mail, NetID or name",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRosterStudents,
}

var rosterLabsCmd = &cobra.Command{
	Use:   "labs",
	Short: "List labs and their parts",
	Args:  cobra.NoArgs,
	RunE:  runRosterLabs,
}

var rosterSectionsCmd = &cobra.Command{
	Use:   "sections",
	Short: "List sections",
	Args:  cobra.NoArgs,
	RunE:  runRosterSections,
}

var (
	rosterSection int
	rosterTA      string
	rosterLab     string
)

func init() {
	rootCmd.AddCommand(rosterCmd)
	rosterCmd.AddCommand(rosterStudentsCmd)
	rosterCmd.AddCommand(rosterLabsCmd)
	rosterCmd.AddCommand(rosterSectionsCmd)

	rosterStudentsCmd.Flags().IntVar(&rosterSection, "section", 0, "Only students in this section")
	rosterStudentsCmd.Flags().StringVar(&rosterLab, "lab", "", "Show which students are locked for this lab")
	rosterSectionsCmd.Flags().StringVar(&rosterTA, "ta", "", "Only sections run by this TA")
}

func runRosterStudents(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app.App) error {
		r, err := a.Roster()
		if err != nil {
			return err
		}

		students := r.Students
		if len(args) == 1 {
			students = r.FindStudents(args[0])
		}
		if rosterSection > 0 {
			var inSection []roster.Student
			for _, s := range students {
				if s.Section == rosterSection {
					inSection = append(inSection, s)
				}
			}
			students = inSection
		}

		var lab roster.Lab
		if rosterLab != "" {
			if lab, err = findLab(r, rosterLab); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		if len(students) == 0 {
			fmt.Fprintln(out, "No matching students.")
			return nil
		}
		fmt.Fprintf(out, "%-10s %-28s %-32s %-8s %s\n", "KEY", "NAME", "EMAIL", "SECTION", "LOCKS")
		for _, s := range students {
			status, err := lockStatus(a, lab, s)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%-10s %-28s %-32s %-8d %s\n", s.Key(), s.FullName(), s.Email, s.Section, status)
		}
		return nil
	})
}

func runRosterLabs(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app.App) error {
		r, err := a.Roster()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		for _, lab := range r.Labs {
			parts := make([]string, len(lab.Parts))
			for i, p := range lab.Parts {
				parts[i] = p.Name
			}
			line := fmt.Sprintf("%-16s %s", lab.Name, strings.Join(parts, ", "))
			if lab.Options.DueDate != nil {
				line += "  due " + lab.Options.DueDate.Local().Format("2006-01-02 15:04")
			}
			if lab.Options.HighestScoreOnly {
				line += "  (best score)"
			}
			fmt.Fprintln(out, line)
		}
		return nil
	})
}

func runRosterSections(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app.App) error {
		r, err := a.Roster()
		if err != nil {
			return err
		}

		sections := r.Sections
		if rosterTA != "" {
			sections = r.SectionsForTA(rosterTA)
		}

		out := cmd.OutOrStdout()
		for _, sec := range sections {
			fmt.Fprintf(out, "%3d  %-16s %-24s %d student(s)\n",
				sec.Number, sec.TA, sec.Meets, len(r.StudentsInSection(sec.Number)))
		}
		return nil
	})
}

// lockStatus names the locks currently held on s. The grading lock is only
// looked up when lab is set.
func lockStatus(a *app.App, lab roster.Lab, s roster.Student) (string, error) {
	var held []string
	if lab.Name != "" {
		locked, err := a.Store.IsLocked(s.Key(), lab.Name)
		if err != nil {
			return "", err
		}
		if locked {
			held = append(held, "grading")
		}
	}
	locked, err := a.Store.IsEmailLocked(s.Key())
	if err != nil {
		return "", err
	}
	if locked {
		held = append(held, "e-mail")
	}
	return strings.Join(held, ", "), nil
}
