// Package versioncmder
package versioncmder

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/saamerm/particle/pkg/utils"
)

type VersionCommander struct {
	short bool
}

func NewVersionCmd() *cobra.Command {
	cmder := &VersionCommander{}

	cmd := &cobra.Command{
		Use:   "version",
		Short: "displays version",
		Long:  "displays the version of the particle CLI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&cmder.short, "short", false, "Print the version number only")

	return cmd
}

func (c *VersionCommander) run(w io.Writer) error {
	if c.short {
		fmt.Fprintln(w, utils.Version)
		return nil
	}

	fmt.Fprintf(w, "Version: %s\nSha: %s\nBuilt at: %s\nGo: %s %s/%s\n",
		utils.Version, utils.Sha, utils.Buildtime,
		runtime.Version(), runtime.GOOS, runtime.GOARCH,
	)
	return nil
}
