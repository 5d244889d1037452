package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/appforge/internal/publish"
)

var nameOwner string

var nameCmd = &cobra.Command{
	Use:   "name <task> <nonce>",
	Short: "Print the repository name for a task and nonce",
	Long: `Print the repository name a request would publish to.

With --owner, also print the repository and Pages URLs for that account.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		name := publish.RepoName(args[0], args[1])
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, name)
		if nameOwner != "" {
			fmt.Fprintln(out, publish.RepoURL(nameOwner, name))
			fmt.Fprintln(out, publish.PagesURL(nameOwner, name))
		}
	},
}

func init() {
	nameCmd.Flags().StringVar(&nameOwner, "owner", "", "GitHub account that would own the repository")
}
