package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/ptel-geocoder/internal/classify"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <name>...",
	Short: "Print the cascade category of infrastructure names",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range args {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", classify.Classify(name), name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}
