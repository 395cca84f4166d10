package cmd

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/aweris/modcache"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"
)

var errVerifyFailed = errors.New("verification failed")

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Decode every cached artifact",
	Long:  "Decode every cached artifact and report the ones that are corrupted or stored under the wrong backend.",
	Args:  cobra.NoArgs,
	RunE:  runVerify,
}

func init() {
	verifyCmd.Flags().Int("concurrency", runtime.GOMAXPROCS(0), "number of artifacts checked in parallel")
	rootCmd.AddCommand(verifyCmd)
}

type verifyResult struct {
	backend modcache.Backend
	key     modcache.Digest
	err     error
}

func runVerify(cmd *cobra.Command, args []string) (err error) {
	concurrency, err := cmd.Flags().GetInt("concurrency")
	if err != nil {
		return err
	}
	if concurrency < 1 {
		concurrency = 1
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

	p := pool.NewWithResults[verifyResult]().WithMaxGoroutines(concurrency)
	for backend, key := range cache.Entries() {
		p.Go(func() verifyResult {
			logger.Debug("verifying", "backend", backend, "digest", key)
			return verifyResult{backend: backend, key: key, err: cache.Verify(key, backend)}
		})
	}
	results := p.Wait()

	out := cmd.OutOrStdout()
	failed := 0
	for _, r := range results {
		if r.err == nil {
			continue
		}
		failed++
		fmt.Fprintf(out, "FAIL\t%s\t%s\t%v\n", r.backend, r.key, r.err)
	}
	fmt.Fprintf(out, "%d checked, %d failed\n", len(results), failed)

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d artifacts", errVerifyFailed, failed, len(results))
	}
	return nil
}
