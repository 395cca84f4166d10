package cmd

import (
	"fmt"
	"os"

	"github.com/aweris/modcache"
	"github.com/spf13/cobra"
)

var putCmd = &cobra.Command{
	Use:   "put <backend> <input> [compiled]",
	Short: "Store a compiled payload",
	Long: "Store compiled bytes under the digest of the input file. " +
		"When no compiled file is given the input itself is stored.",
	Args: cobra.RangeArgs(2, 3),
	RunE: runPut,
}

func init() {
	rootCmd.AddCommand(putCmd)
}

func runPut(cmd *cobra.Command, args []string) (err error) {
	backend := modcache.Backend(args[0])

	input, err := os.ReadFile(args[1])
	if err != nil {
		return err
	}
	payload := input
	if len(args) == 3 {
		if payload, err = os.ReadFile(args[2]); err != nil {
			return err
		}
	}

	cache, err := openCache(backend)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := cache.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	key := modcache.Generate(input)
	if err := cache.Store(key, modcache.NewPayloadModule(backend, payload)); err != nil {
		return fmt.Errorf("store failed: %w", err)
	}

	logger.Debug("stored artifact", "path", cache.Path(key, backend), "bytes", len(payload))
	fmt.Fprintln(cmd.OutOrStdout(), key)
	return nil
}
