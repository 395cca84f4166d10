package cmd

import (
	"fmt"

	"github.com/aweris/modcache"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list [backend]",
	Short: "List cached artifacts",
	Long:  "List every cached artifact, optionally restricted to one backend.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) (err error) {
	var only modcache.Backend
	if len(args) > 0 {
		only = modcache.Backend(args[0])
		if err := only.Validate(); err != nil {
			return err
		}
	}

	cache, err := openCache()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := cache.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	out := cmd.OutOrStdout()
	count := 0
	for backend, key := range cache.Entries() {
		if only != "" && backend != only {
			continue
		}
		size, _ := cache.Stat(key, backend)
		fmt.Fprintf(out, "%s\t%s\t%d\n", backend, key, size)
		count++
	}

	if count == 0 {
		fmt.Fprintln(out, "(no entries)")
	}

	return nil
}
