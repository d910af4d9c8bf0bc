package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Version and Build are injected at build time.
var (
	Version = "dev"
	Build   = "unknown"
)

func main() {
	if err := Execute(Version, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Execute runs the CLI with args, writing command output to out.
func Execute(version string, args []string, out io.Writer) error {
	root := &cobra.Command{
		Use:           "textsearch",
		Short:         "Session-scoped full-text search service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "path to YAML config file")
	root.AddCommand(newServeCmd(), newIngestCmd(), newVersionCmd(version))
	root.SetOut(out)
	root.SetArgs(args)
	return root.Execute()
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "textsearch %s (build %s)\n", version, Build)
		},
	}
}
