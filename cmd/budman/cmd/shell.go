package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// shellCmd runs an interactive prompt dispatching lines to the CLI
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Interactive budman session",
	Long: `Shell reads commands from an interactive prompt and runs them as if
passed to budman directly. Type "exit" or "quit" to leave.

Example session:
  budman> intake --fi boa
  budman> categorize
  budman> show categories --fi boa --level 2
  budman> exit`,
	RunE: runShell,
}

func init() {
	rootCmd.AddCommand(shellCmd)
}

func runShell(cmd *cobra.Command, args []string) error {
	in := bufio.NewScanner(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "budman interactive shell; exit or quit to leave")
	fmt.Fprint(out, "budman> ")

	for in.Scan() {
		line := strings.TrimSpace(in.Text())
		switch {
		case line == "":
		case line == "exit", line == "quit":
			return nil
		case strings.Fields(line)[0] == "shell":
			fmt.Fprintln(out, "already in a shell")
		default:
			if err := dispatch(strings.Fields(line)); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
		}
		fmt.Fprint(out, "budman> ")
	}
	return in.Err()
}

// dispatch runs one shell line through the root command and restores the
// argument state afterwards
func dispatch(fields []string) error {
	rootCmd.SetArgs(fields)
	defer rootCmd.SetArgs(nil)
	return rootCmd.Execute()
}
