package cmd

import (
	"fmt"

	"github.com/aweris/modcache"
	"github.com/spf13/cobra"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <backend> <digest>",
	Short: "Show the header of a cached artifact",
	Args:  cobra.ExactArgs(2),
	RunE:  runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) (err error) {
	backend := modcache.Backend(args[0])
	key, err := modcache.ParseDigest(args[1])
	if err != nil {
		return err
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

	h, err := cache.Inspect(key, backend)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "path:        %s\n", cache.Path(key, backend))
	fmt.Fprintf(out, "version:     %d\n", h.Version)
	fmt.Fprintf(out, "backend:     %s\n", h.Backend)
	fmt.Fprintf(out, "compressed:  %t\n", h.Compressed)
	fmt.Fprintf(out, "raw size:    %d\n", h.RawSize)
	fmt.Fprintf(out, "stored size: %d\n", h.StoredSize)
	return nil
}
