package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tagrade/tagrade/internal/admin"
	"github.com/tagrade/tagrade/internal/app"
	"github.com/tagrade/tagrade/internal/errors"
	"github.com/tagrade/tagrade/internal/lock"
	"github.com/tagrade/tagrade/internal/logging"
	"github.com/tagrade/tagrade/internal/tui"
)

var locksCmd = &cobra.Command{
	Use:   "locks",
	Short: "Inspect and clean up grading and e-mail locks",
	Long: `Commands for listing locks and recovering from sessions that crashed
or were left open.

Filters apply to every subcommand that selects locks. --lab and --student
take glob patterns:
  tagrade locks list --lab 'Lab[34]'
  tagrade locks remove --held-by bob --student '4*'`,
}

var locksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List locks",
	Args:  cobra.NoArgs,
	RunE:  runLocksList,
}

var locksRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Force-remove the locks matching the filters",
	Long: `Remove deletes matching locks whoever holds them. Use it when an
assistant's session died on another machine. At least one filter, or --all,
is required.`,
	Args: cobra.NoArgs,
	RunE: runLocksRemove,
}

var locksReleaseCmd = &cobra.Command{
	Use:   "release [holder]",
	Short: "Remove every lock held by a holder (default: you)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLocksRelease,
}

var locksStaleCmd = &cobra.Command{
	Use:   "stale",
	Short: "Find locks whose process has exited",
	Long: `Stale lists locks created on this host by processes that no longer
exist. Locks from other hosts cannot be checked and are never reported.`,
	Args: cobra.NoArgs,
	RunE: runLocksStale,
}

var locksBrowseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Interactive, live-updating lock browser",
	Args:  cobra.NoArgs,
	RunE:  runLocksBrowse,
}

var locksHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show lock activity from every assistant's log",
	Args:  cobra.NoArgs,
	RunE:  runLocksHistory,
}

var (
	locksKind    string
	locksHolder  string
	locksLab     string
	locksStudent string
	locksMine    bool

	locksAll    bool
	locksYes    bool
	locksRemove bool

	historyLevel string
	historySince time.Duration
	historyGrep  string
	historyTail  int
)

func init() {
	rootCmd.AddCommand(locksCmd)
	locksCmd.AddCommand(locksListCmd)
	locksCmd.AddCommand(locksRemoveCmd)
	locksCmd.AddCommand(locksReleaseCmd)
	locksCmd.AddCommand(locksStaleCmd)
	locksCmd.AddCommand(locksBrowseCmd)
	locksCmd.AddCommand(locksHistoryCmd)

	for _, c := range []*cobra.Command{locksListCmd, locksRemoveCmd, locksStaleCmd, locksHistoryCmd} {
		c.Flags().StringVar(&locksHolder, "held-by", "", "Only locks held by this holder")
		c.Flags().StringVar(&locksLab, "lab", "", "Lab name pattern")
		c.Flags().StringVar(&locksStudent, "student", "", "Student key pattern")
		c.Flags().BoolVar(&locksMine, "mine", false, "Only your own locks")
	}
	for _, c := range []*cobra.Command{locksListCmd, locksRemoveCmd, locksStaleCmd} {
		c.Flags().StringVar(&locksKind, "kind", "", "Lock kind: grading or email")
	}

	locksRemoveCmd.Flags().BoolVar(&locksAll, "all", false, "Remove every lock")
	for _, c := range []*cobra.Command{locksRemoveCmd, locksReleaseCmd, locksStaleCmd} {
		c.Flags().BoolVarP(&locksYes, "yes", "y", false, "Skip the confirmation prompt")
	}
	locksStaleCmd.Flags().BoolVar(&locksRemove, "remove", false, "Remove the stale locks")

	locksHistoryCmd.Flags().StringVar(&historyLevel, "level", "", "Minimum level (debug/info/warn/error)")
	locksHistoryCmd.Flags().DurationVar(&historySince, "since", 0, "Only entries newer than this (e.g. 1h, 30m)")
	locksHistoryCmd.Flags().StringVar(&historyGrep, "grep", "", "Only messages containing this text")
	locksHistoryCmd.Flags().IntVarP(&historyTail, "tail", "n", 50, "Number of entries to show (0 for all)")
}

func lockFilter(a *app.App) admin.Filter {
	f := admin.Filter{
		Kind:    lock.Kind(locksKind),
		Holder:  locksHolder,
		Lab:     locksLab,
		Student: locksStudent,
	}
	if locksMine {
		f.Holder = a.Holder
	}
	return f
}

func filterEmpty(f admin.Filter) bool {
	return f.Kind == "" && f.Holder == "" && f.Lab == "" && f.Student == ""
}

func runLocksList(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app.App) error {
		locks, err := a.Admin.List(lockFilter(a))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(locks) == 0 {
			fmt.Fprintln(out, "No locks.")
			return nil
		}
		printLocks(out, locks, time.Now())
		return nil
	})
}

func runLocksRemove(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app.App) error {
		f := lockFilter(a)
		if filterEmpty(f) && !locksAll {
			return errors.NewValidationError("refusing to remove every lock without --all")
		}

		out := cmd.OutOrStdout()
		if locksYes {
			report, err := a.Admin.RemoveMatching(f)
			if err != nil {
				return err
			}
			return printReport(out, report)
		}

		locks, err := a.Admin.List(f)
		if err != nil {
			return err
		}
		if len(locks) == 0 {
			fmt.Fprintln(out, "No matching locks.")
			return nil
		}

		// Only the locks the operator saw are removed.
		printLocks(out, locks, time.Now())
		ok, err := confirm(cmd, fmt.Sprintf("\nRemove %d lock(s)?", len(locks)))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
		return printReport(out, a.Admin.Remove(locks))
	})
}

func runLocksRelease(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app.App) error {
		holder := a.Holder
		if len(args) == 1 {
			holder = args[0]
		}
		out := cmd.OutOrStdout()

		if holder != a.Holder && !locksYes {
			ok, err := confirm(cmd, fmt.Sprintf("Remove every lock held by %s?", holder))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, "Cancelled.")
				return nil
			}
		}

		n, err := a.Admin.ReleaseHolder(holder)
		fmt.Fprintf(out, "Released %d lock(s) held by %s.\n", n, holder)
		return err
	})
}

func runLocksStale(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app.App) error {
		f := lockFilter(a)
		out := cmd.OutOrStdout()
		if locksRemove && locksYes {
			report, err := a.Admin.RemoveStale(f)
			if err != nil {
				return err
			}
			return printReport(out, report)
		}

		stale, err := a.Admin.FindStale(f)
		if err != nil {
			return err
		}
		if len(stale) == 0 {
			fmt.Fprintln(out, "No stale locks.")
			return nil
		}

		locks := make([]lock.Descriptor, len(stale))
		for i, s := range stale {
			locks[i] = s.Lock
		}
		printLocks(out, locks, time.Now())
		if !locksRemove {
			fmt.Fprintln(out, "\nRun 'tagrade locks stale --remove' to remove them.")
			return nil
		}

		ok, err := confirm(cmd, fmt.Sprintf("\nRemove %d stale lock(s)?", len(locks)))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
		return printReport(out, a.Admin.Remove(locks))
	})
}

func runLocksBrowse(cmd *cobra.Command, args []string) error {
	if !isTerminal(os.Stdin) || !isTerminal(os.Stdout) {
		return errors.NewValidationError("the lock browser needs a terminal; use 'tagrade locks list'")
	}
	return withApp(func(a *app.App) error {
		model := tui.NewModel(a.Store, func(d lock.Descriptor) error {
			return a.Admin.Remove([]lock.Descriptor{d}).Err()
		}, tui.Options{
			Title:    fmt.Sprintf("%s locks", a.Layout.ClassCode),
			Holder:   a.Holder,
			Theme:    tui.ThemeFor(a.Config.TUI.Theme),
			ShowHost: a.Config.TUI.ShowHost,
		})
		return tui.New(model, a.Watcher(), a.Layout.LocksDir).Run(cmd.Context())
	})
}

func runLocksHistory(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app.App) error {
		entries, err := logging.History(a.Layout.LogsDir)
		if err != nil {
			return err
		}

		f := logging.Filter{
			Level:           historyLevel,
			Holder:          locksHolder,
			Lab:             locksLab,
			Student:         locksStudent,
			MessageContains: historyGrep,
		}
		if locksMine {
			f.Holder = a.Holder
		}
		if historySince > 0 {
			f.StartTime = time.Now().Add(-historySince)
		}
		entries = logging.FilterEntries(entries, f)
		if historyTail > 0 && len(entries) > historyTail {
			entries = entries[len(entries)-historyTail:]
		}

		out := cmd.OutOrStdout()
		if len(entries) == 0 {
			fmt.Fprintln(out, "No matching log entries.")
			return nil
		}
		for _, e := range entries {
			printEntry(out, e)
		}
		return nil
	})
}

func printLocks(w io.Writer, locks []lock.Descriptor, now time.Time) {
	fmt.Fprintf(w, "%-8s %-16s %-14s %-12s %-8s %s\n", "KIND", "LAB", "STUDENT", "HOLDER", "AGE", "ORIGIN")
	for _, d := range locks {
		lab := d.Lab
		if d.Kind == lock.KindEmail {
			lab = "-"
		}
		fmt.Fprintf(w, "%-8s %-16s %-14s %-12s %-8s %s\n",
			d.Kind, lab, d.Student, d.Holder,
			now.Sub(d.CreatedAt).Round(time.Second), d.Host+":"+strconv.Itoa(d.PID))
	}
}

func printReport(w io.Writer, report admin.Report) error {
	for _, res := range report.Results {
		if res.Err != nil {
			fmt.Fprintf(w, "  failed  %s: %v\n", res.Lock, res.Err)
		} else {
			fmt.Fprintf(w, "  removed %s\n", res.Lock)
		}
	}
	fmt.Fprintf(w, "Removed %d of %d lock(s).\n", report.Removed, len(report.Results))
	return report.Err()
}

func printEntry(w io.Writer, e logging.Entry) {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %-5s %-10s %s", e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Level, e.Source, e.Message)
	if e.Lab != "" || e.Student != "" {
		fmt.Fprintf(&b, "  %s/%s", e.Lab, e.Student)
	}
	for _, key := range []string{"kind", "held_by", "removed_by", "error"} {
		if v, ok := e.Attrs[key]; ok {
			fmt.Fprintf(&b, " %s=%v", key, v)
		}
	}
	fmt.Fprintln(w, b.String())
}
