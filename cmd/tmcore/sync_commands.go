package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"tmcore/internal/tmstore"
	"tmcore/internal/tmsync"
)

func newSyncCommand(ctx *commandContext) *cobra.Command {
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Move TM blocks between stores",
	}

	syncCmd.AddCommand(newSyncTOCCommand(ctx))
	syncCmd.AddCommand(newSyncExportCommand(ctx))
	syncCmd.AddCommand(newSyncImportCommand(ctx))
	syncCmd.AddCommand(newSyncRunCommand(ctx))

	return syncCmd
}

func newSyncTOCCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "toc <src|tgt>",
		Short: "List the blocks of a language pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pair, err := parsePairArg(args[0])
			if err != nil {
				return err
			}
			facade, err := ctx.facade()
			if err != nil {
				return err
			}
			toc, err := facade.GetTOC(cmd.Context(), pair)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, toc)
			}
			if len(toc) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No blocks for %s\n", pair)
				return nil
			}
			ids := sortedBlockIDs(toc)
			view := newTableView("Block", "Modified", "Jobs").alignRight("Jobs")
			for _, id := range ids {
				info := toc[id]
				view.add(id, formatTime(info.Modified), len(info.Jobs))
			}
			view.render(cmd.OutOrStdout())
			return nil
		},
	}
}

func newSyncExportCommand(ctx *commandContext) *cobra.Command {
	var blocks []string
	cmd := &cobra.Command{
		Use:   "export <src|tgt>",
		Short: "Write the jobs of blocks as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pair, err := parsePairArg(args[0])
			if err != nil {
				return err
			}
			facade, err := ctx.facade()
			if err != nil {
				return err
			}
			if len(blocks) == 0 {
				toc, err := facade.GetTOC(cmd.Context(), pair)
				if err != nil {
					return err
				}
				blocks = sortedBlockIDs(toc)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			for job, err := range facade.GetTmBlocks(cmd.Context(), pair, blocks) {
				if err != nil {
					return err
				}
				if err := enc.Encode(job); err != nil {
					return fmt.Errorf("write job %s: %w", job.JobGUID, err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&blocks, "block", nil, "Blocks to export (default all)")
	return cmd
}

func newSyncImportCommand(ctx *commandContext) *cobra.Command {
	var (
		blockID     string
		sourceStore string
		deleteBlock bool
	)
	cmd := &cobra.Command{
		Use:   "import <src|tgt> [jobs.jsonl|-]",
		Short: "Replace a block with jobs read as JSON lines",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pair, err := parsePairArg(args[0])
			if err != nil {
				return err
			}
			if !deleteBlock && len(args) < 2 {
				return errors.New("a jobs file is required unless --delete is set")
			}
			facade, err := ctx.facade()
			if err != nil {
				return err
			}
			var seq iter.Seq2[*tmstore.Job, error]
			if !deleteBlock {
				r, closeFn, err := openInput(cmd, args[1])
				if err != nil {
					return err
				}
				defer closeFn()
				seq = decodeJobs(r)
			}
			props := tmsync.BlockProps{BlockID: blockID, SourceStore: sourceStore}
			var saved int
			err = ctx.withWriteLock(cmd.Context(), func() error {
				var err error
				saved, err = facade.WriteBlock(cmd.Context(), pair, props, seq)
				return err
			})
			if err != nil {
				return err
			}
			if deleteBlock {
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted block %s of %s\n", blockID, pair)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d jobs to block %s of %s\n", saved, blockID, pair)
			return nil
		},
	}
	cmd.Flags().StringVar(&blockID, "block", "", "Block id to replace")
	cmd.Flags().StringVar(&sourceStore, "source-store", "", "Store id stamped on imported jobs")
	cmd.Flags().BoolVar(&deleteBlock, "delete", false, "Delete the block instead of importing")
	_ = cmd.MarkFlagRequired("block")
	return cmd
}

func newSyncRunCommand(ctx *commandContext) *cobra.Command {
	var (
		dstPath  string
		dstStore string
		pairArgs []string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Copy changed blocks from the local TM to another TM database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			pairs := make([]tmstore.Pair, 0, len(pairArgs))
			for _, arg := range pairArgs {
				pair, err := parsePairArg(arg)
				if err != nil {
					return err
				}
				pairs = append(pairs, pair)
			}
			src, err := ctx.facade()
			if err != nil {
				return err
			}
			dstTM, err := tmstore.OpenPath(dstPath, ctx.log())
			if err != nil {
				return fmt.Errorf("open destination tm: %w", err)
			}
			defer dstTM.Close()
			dst, err := tmsync.New(dstTM, tmsync.Options{
				StoreID:      dstStore,
				Partitioning: src.Partitioning(),
				Logger:       ctx.log(),
			})
			if err != nil {
				return err
			}
			var report tmsync.Report
			err = ctx.withWriteLock(cmd.Context(), func() error {
				var err error
				report, err = tmsync.Sync(cmd.Context(), src, dst, pairs, cfg.Sync.Concurrency)
				return err
			})
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, report)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Synced %d pairs: %d blocks written, %d deleted, %d unchanged (%d jobs)\n",
				report.Pairs, report.BlocksWritten, report.BlocksDeleted, report.BlocksSkipped, report.Jobs)
			return nil
		},
	}
	cmd.Flags().StringVar(&dstPath, "to", "", "Destination TM database path")
	cmd.Flags().StringVar(&dstStore, "to-store", "remote", "Destination store id")
	cmd.Flags().StringSliceVar(&pairArgs, "pair", nil, "Language pairs to sync (default all)")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func sortedBlockIDs(toc map[string]tmsync.BlockInfo) []string {
	ids := make([]string, 0, len(toc))
	for id := range toc {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func openInput(cmd *cobra.Command, arg string) (io.Reader, func(), error) {
	if arg == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(arg)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", arg, err)
	}
	return f, func() { f.Close() }, nil
}

func decodeJobs(r io.Reader) iter.Seq2[*tmstore.Job, error] {
	return func(yield func(*tmstore.Job, error) bool) {
		dec := json.NewDecoder(r)
		for {
			var job tmstore.Job
			err := dec.Decode(&job)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("decode job: %w", err))
				return
			}
			if !yield(&job, nil) {
				return
			}
		}
	}
}
