package cmd

import (
	"fmt"
	"os"

	"github.com/aweris/modcache"
	"github.com/spf13/cobra"
)

var digestCmd = &cobra.Command{
	Use:   "digest <file>",
	Short: "Print the cache key of an input file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDigest,
}

func init() {
	rootCmd.AddCommand(digestCmd)
}

func runDigest(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), modcache.Generate(data))
	return nil
}
