package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tmcore/internal/snapstore"
)

// snapshotFile is the input of "snap save".
type snapshotFile struct {
	Resources []snapstore.Resource `json:"resources"`
	Segments  []snapstore.Segment  `json:"segments"`
}

func newSnapCommand(ctx *commandContext) *cobra.Command {
	snapCmd := &cobra.Command{
		Use:   "snap",
		Short: "Manage channel snapshots",
	}

	snapCmd.AddCommand(newSnapTOCCommand(ctx))
	snapCmd.AddCommand(newSnapRowsCommand(ctx))
	snapCmd.AddCommand(newSnapSaveCommand(ctx))

	return snapCmd
}

func newSnapTOCCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "toc",
		Short: "List complete snapshots per channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.snapshotStore()
			if err != nil {
				return err
			}
			toc, err := store.GetTOC(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				if toc == nil {
					toc = []snapstore.TOCEntry{}
				}
				return writeJSON(cmd, toc)
			}
			if len(toc) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No snapshots in store %s\n", store.StoreID())
				return nil
			}
			view := newTableView("Channel", "Snapshots", "Latest", "Latest time").alignRight("Snapshots", "Latest")
			for _, entry := range toc {
				latest := entry.Timestamps[len(entry.Timestamps)-1]
				view.add(entry.Channel, len(entry.Timestamps), latest, formatTime(time.UnixMilli(latest)))
			}
			view.render(cmd.OutOrStdout())
			return nil
		},
	}
}

func newSnapRowsCommand(ctx *commandContext) *cobra.Command {
	var ts int64
	var table string
	cmd := &cobra.Command{
		Use:   "rows <channel>",
		Short: "Print the rows of a channel valid at a timestamp",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.snapshotStore()
			if err != nil {
				return err
			}
			channel := args[0]
			if ts == 0 {
				latest, ok, err := store.LatestTimestamp(cmd.Context(), channel)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("channel %s has no snapshots", channel)
				}
				ts = latest
			}
			var rows []snapstore.Row
			for row, err := range store.GenerateRows(cmd.Context(), ts, channel, snapstore.Table(table)) {
				if err != nil {
					return err
				}
				rows = append(rows, row)
			}
			if ctx.jsonOutput() {
				if rows == nil {
					rows = []snapstore.Row{}
				}
				return writeJSON(cmd, rows)
			}
			if len(rows) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No %s in %s at %d\n", table, channel, ts)
				return nil
			}
			view := newTableView("Key", "Order", "Fields").alignRight("Order")
			for _, row := range rows {
				view.add(row.Key, row.Order, truncate(summarizeFields(row.Fields), 60))
			}
			view.render(cmd.OutOrStdout())
			return nil
		},
	}
	cmd.Flags().Int64Var(&ts, "ts", 0, "Snapshot timestamp in epoch milliseconds (default latest)")
	cmd.Flags().StringVar(&table, "table", string(snapstore.TableSegments), "Table to read: resources or segments")
	return cmd
}

func newSnapSaveCommand(ctx *commandContext) *cobra.Command {
	var ts int64
	cmd := &cobra.Command{
		Use:   "save <channel> <snapshot.json|->",
		Short: "Save a channel snapshot of resources and segments",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var file snapshotFile
			if err := readJSONArg(cmd, args[1], &file); err != nil {
				return err
			}
			if ts == 0 {
				ts = time.Now().UnixMilli()
			}
			store, err := ctx.snapshotStore()
			if err != nil {
				return err
			}
			var resources, segments snapstore.SaveResult
			err = ctx.withWriteLock(cmd.Context(), func() error {
				var err error
				if resources, err = store.SaveResources(cmd.Context(), ts, args[0], file.Resources); err != nil {
					return err
				}
				segments, err = store.SaveSegments(cmd.Context(), ts, args[0], file.Segments)
				return err
			})
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, map[string]any{"ts": ts, "resources": resources, "segments": segments})
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Saved snapshot %d of %s\n", ts, args[0])
			fmt.Fprintf(out, "  resources: %s\n", describeSave(resources))
			fmt.Fprintf(out, "  segments:  %s\n", describeSave(segments))
			return nil
		},
	}
	cmd.Flags().Int64Var(&ts, "ts", 0, "Snapshot timestamp in epoch milliseconds (default now)")
	return cmd
}

func describeSave(r snapstore.SaveResult) string {
	return fmt.Sprintf("%d added, %d changed, %d removed, %d unchanged, %d skipped",
		r.Added, r.Changed, r.Removed, r.Unchanged, r.Skipped)
}

func summarizeFields(fields map[string]any) string {
	parts := make([]string, 0, 3)
	for _, key := range []string{"rid", "sid", "nsrc"} {
		if v, ok := fields[key]; ok {
			parts = append(parts, fmt.Sprintf("%s=%v", key, v))
		}
	}
	return strings.Join(parts, " ")
}
