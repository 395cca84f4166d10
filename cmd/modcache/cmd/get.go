package cmd

import (
	"fmt"
	"os"

	"github.com/aweris/modcache"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <digest> <output>",
	Short: "Load a compiled payload",
	Long:  "Load the payload cached for a digest and write it to a file. Uses the default backend unless --backend is set.",
	Args:  cobra.ExactArgs(2),
	RunE:  runGet,
}

func init() {
	getCmd.Flags().String("backend", "", "backend to load with (default: configured default backend)")
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) (err error) {
	key, err := modcache.ParseDigest(args[0])
	if err != nil {
		return err
	}
	name, err := cmd.Flags().GetString("backend")
	if err != nil {
		return err
	}

	var extra []modcache.Backend
	if name != "" {
		extra = append(extra, modcache.Backend(name))
	}
	cache, err := openCache(extra...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := cache.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	var module modcache.Module
	if name == "" {
		module, err = cache.Load(key)
	} else {
		module, err = cache.LoadWithBackend(key, modcache.Backend(name))
	}
	if err != nil {
		return fmt.Errorf("load failed: %w", err)
	}

	pm, ok := module.(*modcache.PayloadModule)
	if !ok {
		return fmt.Errorf("unexpected module type %T", module)
	}
	return os.WriteFile(args[1], pm.Payload(), 0o644)
}
