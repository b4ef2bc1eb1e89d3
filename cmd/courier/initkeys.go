package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mistakeknot/courier/internal/auth"
	"github.com/mistakeknot/courier/internal/cli"
)

func initCmd() *cobra.Command {
	var (
		project  string
		keysFile string
	)
	cmd := &cobra.Command{
		Use:   "init-keys",
		Short: "Generate an API key for a project",
		Long: `Generate an API key for a project and append it to the keys file.

The key is printed exactly once; store it with the agent that will use
it. Existing keys in the file stay valid.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := cli.InitKeysFile(keysFile, project)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "project:  %s\nkeys file: %s\napi key:   %s\n", project, keysFile, key)
			return nil
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "project the key is scoped to (required)")
	cmd.Flags().StringVar(&keysFile, "keys-file", auth.ResolveKeysPath(), "keys file to append to")
	cmd.MarkFlagRequired("project")
	return cmd
}
