package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sidemerge/sidemerge"
)

var classCmd = &cobra.Command{
	Use:   "class <client.class> <server.class>",
	Short: "Merge two class files",
	Long:  "Merge the client and server variants of one compiled class into a unified class file.",
	Args:  cobra.ExactArgs(2),
	RunE:  runClass,
}

var classOut string

func init() {
	classCmd.Flags().StringVarP(&classOut, "output", "o", "merged.class", "output class file")
	rootCmd.AddCommand(classCmd)
}

func runClass(cmd *cobra.Command, args []string) error {
	clientData, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	serverData, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}

	merged, err := sidemerge.NewMerger().Merge(clientData, serverData)
	if err != nil {
		return fmt.Errorf("merge failed: %w", err)
	}

	if err := os.WriteFile(classOut, merged, 0644); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Wrote %s (%d bytes)\n", classOut, len(merged))
	return nil
}
