// Command rclonesync reconciles two file trees, local or remote,
// through an external transport binary (rclone by default).
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cjnaz/rclonesync-go/bisync"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cmd, opt := newRootCmd()

	rest, rcloneArgs := bisync.SplitRcloneArgs(args)
	opt.RCloneArgs = rcloneArgs
	cmd.SetArgs(rest)

	if err := cmd.Execute(); err != nil {
		if ce, ok := err.(*exitError); ok {
			return ce.code
		}
		fmt.Fprintln(os.Stderr, "rclonesync:", err)
		return 2
	}
	return 0
}

// exitError carries a precomputed process exit code up through
// cobra's Execute() without cobra printing a second "Error:" line for
// conditions the engine already logged itself.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// newRootCmd builds the cobra command and the Options it will fill in
// once Execute runs. The caller is responsible for setting
// opt.RCloneArgs from SplitRcloneArgs before calling Execute, since
// that flag's raw-remainder shape bypasses cobra/pflag entirely.
func newRootCmd() (*cobra.Command, *bisync.Options) {
	opt := bisync.DefaultOptions()
	var showVersion bool

	cmd := &cobra.Command{
		Use:           "rclonesync Path1 Path2",
		Short:         "Bidirectional file synchronization through an external transport",
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Println("rclonesync", version)
				return nil
			}
			if len(args) != 2 {
				return fmt.Errorf("expected Path1 and Path2, got %d argument(s)", len(args))
			}
			opt.Path1, opt.Path2 = args[0], args[1]

			err := bisync.Run(context.Background(), opt)
			code := bisync.ExitCode(err)
			if err != nil {
				fmt.Fprintln(os.Stderr, "rclonesync:", err)
			}
			if code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}

	bisync.BindFlags(cmd.Flags(), &opt)
	cmd.Flags().BoolVar(&showVersion, "version", false, "Print the version and exit")

	return cmd, &opt
}
