package cmd

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/NahomAnteneh/metarepo/internal/parallel"
	"github.com/NahomAnteneh/metarepo/internal/syntheticgc"
	"github.com/spf13/cobra"
)

var gcApply bool

func init() {
	gcCmd := &cobra.Command{
		Use:   "gc",
		Short: "Reclaim synthetic refs that no longer preserve reachability (simulation by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newEnvironment()
			if err != nil {
				return err
			}
			ctx := context.Background()
			env.gc.Apply = gcApply

			metaRepo := syntheticgc.MetaRepo{Root: env.metaRepo.Root, Store: env.metaRepo.Store}
			roots, err := env.gc.PopulateRoots(ctx, metaRepo, env.cfg.GC.RootRefs)
			if err != nil {
				return err
			}

			cutoff := time.Now().AddDate(0, -env.cfg.GC.OldRefMonths, 0)
			commitTime := func(sha string) (time.Time, bool) { return time.Time{}, false }
			isOld := syntheticgc.AgeThreshold(cutoff, commitTime)

			subPaths := make([]string, 0, len(roots))
			for subPath := range roots {
				subPaths = append(subPaths, subPath)
			}
			sort.Strings(subPaths)

			return parallel.DoInParallelVoid(ctx, parallel.DefaultLimit, subPaths, func(ctx context.Context, subPath string) error {
				persistent := roots[subPath]
				handle, err := env.opener.Open(ctx, subPath, subRoot(env.root, subPath))
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "gc: skipping %s: %v\n", subPath, err)
					return nil
				}
				if err := env.gc.RemoveRedundant(ctx, subPath, handle.Store, persistent, nil); err != nil {
					return err
				}
				return env.gc.RemoveOld(ctx, subPath, handle.Store, persistent, isOld)
			})
		},
	}
	gcCmd.Flags().BoolVar(&gcApply, "apply", false, "Actually remove refs instead of only logging what would be removed")
	rootCmd.AddCommand(gcCmd)
}
