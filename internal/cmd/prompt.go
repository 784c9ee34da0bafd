package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// isTerminal reports whether r is an interactive terminal.
var isTerminal = func(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// confirm asks a yes/no question on the command's input. It refuses to
// guess when the input is not a terminal; callers offer --yes for scripts.
func confirm(cmd *cobra.Command, question string) (bool, error) {
	in := cmd.InOrStdin()
	if !isTerminal(in) {
		return false, fmt.Errorf("refusing to prompt without a terminal; pass --yes to confirm")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N] ", question)
	reader := bufio.NewReader(in)
	response, _ := reader.ReadString('\n')
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes", nil
}

// waitForEnter blocks until the user presses Enter or ctx is done. Without
// a terminal it only waits for ctx, so a backgrounded session keeps its
// locks until it is interrupted.
func waitForEnter(ctx context.Context, cmd *cobra.Command, prompt string) error {
	in := cmd.InOrStdin()
	interactive := isTerminal(in)
	if interactive {
		fmt.Fprint(cmd.OutOrStdout(), prompt)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "no terminal; holding the lock until interrupted")
	}

	done := make(chan struct{})
	if interactive {
		go func() {
			_, _ = bufio.NewReader(in).ReadString('\n')
			close(done)
		}()
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
