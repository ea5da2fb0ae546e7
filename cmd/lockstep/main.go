package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mattjoyce/lockstep/internal/config"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "lockstep",
		Short: "Distributed job-lock coordination for periodic batch jobs",
		Long: `lockstep runs a fleet of identical instances that split a set of batch jobs
between them. Each job runs on at most one instance at a time, guarded by a
lease in a shared lock service.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"config file or directory (default: discovered, see LOCKSTEP_CONFIG)")

	root.AddCommand(
		newSystemCmd(opts),
		newConfigCmd(opts),
		newJobCmd(opts),
		newWatchCmd(opts),
		newVersionCmd(),
	)
	return root
}

// loadConfig loads the --config path or falls back to discovery.
func (o *rootOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := o.configPath
	if path == "" {
		discovered, err := config.Discover()
		if err != nil {
			return nil, err
		}
		path = discovered
		fmt.Fprintf(cmd.ErrOrStderr(), "Using discovered config: %s\n", path)
	}
	return config.Load(path)
}
