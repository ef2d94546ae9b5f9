package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sidemerge/sidemerge/internal/jar"
)

var jarCmd = &cobra.Command{
	Use:   "jar <client.jar> <server.jar>",
	Short: "Merge two jars",
	Long:  "Merge a client jar and a dedicated-server jar into one unified jar. One-sided classes are tagged with their side's marker annotation.",
	Args:  cobra.ExactArgs(2),
	RunE:  runJar,
}

var jarOut string

func init() {
	jarCmd.Flags().StringVarP(&jarOut, "output", "o", "merged.jar", "output jar")
	rootCmd.AddCommand(jarCmd)
}

func runJar(cmd *cobra.Command, args []string) error {
	logger := newLogger()
	defer logger.Sync()

	stats, err := jar.Merge(cmd.Context(), args[0], args[1], jarOut,
		jar.WithWorkers(getWorkers()),
		jar.WithLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("merge failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Wrote %s: %d merged, %d client-only, %d server-only classes, %d resources\n",
		jarOut, stats.MergedClasses, stats.ClientClasses, stats.ServerClasses, stats.Resources)
	return nil
}
