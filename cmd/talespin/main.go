package main

import (
	"fmt"
	"github.com/spf13/cobra"
	"os"
)

const storyGroupID = "story"

func init() {
	rootCmd.AddGroup(&cobra.Group{ID: storyGroupID, Title: "Stories"})
	rootCmd.AddCommand(newPlayCommand())
	rootCmd.AddCommand(newHistoryCommand())
}

var rootCmd = &cobra.Command{
	Use:           "talespin",
	Short:         "Play interactive stories in the terminal",
	Long:          `Plays branching stories generated by a story server and keeps a journal of every playthrough.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}
