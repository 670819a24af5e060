package main

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"tmcore/internal/nstring"
	"tmcore/internal/tmstore"
)

func newTMCommand(ctx *commandContext) *cobra.Command {
	tmCmd := &cobra.Command{
		Use:   "tm",
		Short: "Inspect and edit the translation memory",
	}

	tmCmd.AddCommand(newTMPairsCommand(ctx))
	tmCmd.AddCommand(newTMJobsCommand(ctx))
	tmCmd.AddCommand(newTMShowCommand(ctx))
	tmCmd.AddCommand(newTMMatchCommand(ctx))
	tmCmd.AddCommand(newTMSearchCommand(ctx))
	tmCmd.AddCommand(newTMStatsCommand(ctx))
	tmCmd.AddCommand(newTMDeleteJobCommand(ctx))
	tmCmd.AddCommand(newTMImportCommand(ctx))
	tmCmd.AddCommand(newHealthCommand(ctx))

	return tmCmd
}

func newTMPairsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "pairs",
		Short: "List language pairs with stored TUs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.tmStore()
			if err != nil {
				return err
			}
			pairs, err := store.LanguagePairs(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				labels := make([]string, 0, len(pairs))
				for _, p := range pairs {
					labels = append(labels, p.String())
				}
				return writeJSON(cmd, labels)
			}
			if len(pairs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No language pairs")
				return nil
			}
			view := newTableView("Pair", "Source", "Target")
			for _, p := range pairs {
				view.add(p.String(), p.Source, p.Target)
			}
			view.render(cmd.OutOrStdout())
			return nil
		},
	}
}

func newTMJobsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs <src|tgt>",
		Short: "List the jobs of a language pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pair, err := parsePairArg(args[0])
			if err != nil {
				return err
			}
			store, err := ctx.tmStore()
			if err != nil {
				return err
			}
			jobs, err := store.ListJobs(cmd.Context(), pair)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, jobs)
			}
			if len(jobs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No jobs for %s\n", pair)
				return nil
			}
			view := newTableView("Job", "Provider", "Status", "Updated", "Store", "Cost").alignRight("Cost")
			for _, job := range jobs {
				view.add(job.JobGUID, job.TranslationProvider, job.Status, formatTime(job.UpdatedAt), job.TMStore, formatCost(job.EstimatedCost))
			}
			view.render(cmd.OutOrStdout())
			return nil
		},
	}
}

func newTMShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-guid>",
		Short: "Show a job and its TUs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.tmStore()
			if err != nil {
				return err
			}
			job, err := store.GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if job == nil {
				return fmt.Errorf("job %s not found", args[0])
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, job)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Job:       %s\n", job.JobGUID)
			fmt.Fprintf(out, "Pair:      %s|%s\n", job.SourceLang, job.TargetLang)
			fmt.Fprintf(out, "Provider:  %s\n", job.TranslationProvider)
			fmt.Fprintf(out, "Status:    %s\n", job.Status)
			fmt.Fprintf(out, "Updated:   %s\n", formatTime(job.UpdatedAt))
			if job.TMStore != "" {
				fmt.Fprintf(out, "Store:     %s\n", job.TMStore)
			}
			tuTable(job.TUs).render(out)
			return nil
		},
	}
}

func newTMMatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "match <src|tgt> <source text>",
		Short: "Find exact TM matches for a source string",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pair, err := parsePairArg(args[0])
			if err != nil {
				return err
			}
			store, err := ctx.tmStore()
			if err != nil {
				return err
			}
			nsrc, err := nstring.Parse(args[1])
			if err != nil {
				nsrc = nstring.FromText(args[1])
			}
			matches, err := store.GetExactMatches(cmd.Context(), pair, nsrc)
			if err != nil {
				return err
			}
			return printTUs(cmd, ctx, matches, "No matches")
		},
	}
}

func newTMSearchCommand(ctx *commandContext) *cobra.Command {
	var (
		filter     tmstore.Filter
		guids      []string
		minQ, maxQ int
	)
	cmd := &cobra.Command{
		Use:   "search <src|tgt>",
		Short: "Search TUs of a language pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pair, err := parsePairArg(args[0])
			if err != nil {
				return err
			}
			store, err := ctx.tmStore()
			if err != nil {
				return err
			}
			filter.GUIDs = guids
			if cmd.Flags().Changed("min-q") {
				filter.MinQ = &minQ
			}
			if cmd.Flags().Changed("max-q") {
				filter.MaxQ = &maxQ
			}
			tus, err := store.Search(cmd.Context(), pair, filter)
			if err != nil {
				return err
			}
			return printTUs(cmd, ctx, tus, "No TUs matched")
		},
	}
	flags := cmd.Flags()
	flags.StringSliceVar(&guids, "guid", nil, "Restrict to these guids")
	flags.StringVar(&filter.JobGUID, "job", "", "Restrict to a job")
	flags.StringVar(&filter.RID, "rid", "", "Restrict to a resource id")
	flags.StringVar(&filter.SID, "sid", "", "Restrict to a segment id")
	flags.StringVar(&filter.Channel, "channel", "", "Restrict to a channel")
	flags.StringVar(&filter.Group, "group", "", "Restrict to a group")
	flags.StringVar(&filter.Provider, "provider", "", "Restrict to a translation provider")
	flags.StringVar(&filter.SourceContains, "source", "", "Flattened source contains text")
	flags.StringVar(&filter.TargetContains, "target", "", "Flattened target contains text")
	flags.IntVar(&minQ, "min-q", 0, "Minimum quality")
	flags.IntVar(&maxQ, "max-q", 0, "Maximum quality")
	flags.BoolVar(&filter.TranslatedOnly, "translated", false, "Only TUs with a target")
	flags.BoolVar(&filter.AllRanks, "all-ranks", false, "Include superseded TUs")
	flags.IntVar(&filter.Limit, "limit", 0, "Maximum number of TUs (default 100)")
	flags.IntVar(&filter.Offset, "offset", 0, "Number of TUs to skip")
	return cmd
}

func newTMStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <src|tgt>",
		Short: "Summarize a language pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pair, err := parsePairArg(args[0])
			if err != nil {
				return err
			}
			store, err := ctx.tmStore()
			if err != nil {
				return err
			}
			stats, err := store.Stats(cmd.Context(), pair)
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, stats)
			}
			view := newTableView("Metric", "Value").alignRight("Value")
			view.add("TUs", stats.TUs)
			view.add("Guids", stats.Guids)
			view.add("Translated", stats.Translated)
			view.add("In flight", stats.InFlight)
			view.add("Jobs", stats.Jobs)
			addCounts(view, "Jobs ", stats.JobsByStatus)
			addCounts(view, "TUs by ", stats.TUsByProvider)
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", stats.Pair)
			view.render(cmd.OutOrStdout())
			return nil
		},
	}
}

func newTMDeleteJobCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-job <job-guid>",
		Short: "Delete a job and restore the ranks of its guids",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.tmStore()
			if err != nil {
				return err
			}
			err = ctx.withWriteLock(cmd.Context(), func() error {
				return store.DeleteJob(cmd.Context(), args[0])
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted job %s\n", args[0])
			return nil
		},
	}
}

func newTMImportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <jobs.json|->",
		Short: "Import jobs from a JSON array",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var jobs []*tmstore.Job
			if err := readJSONArg(cmd, args[0], &jobs); err != nil {
				return err
			}
			tus := 0
			for _, job := range jobs {
				if job.JobGUID == "" {
					job.JobGUID = uuid.NewString()
				}
				tus += len(job.TUs)
			}
			store, err := ctx.tmStore()
			if err != nil {
				return err
			}
			err = ctx.withWriteLock(cmd.Context(), func() error {
				return store.SaveJobs(cmd.Context(), jobs)
			})
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				guids := make([]string, 0, len(jobs))
				for _, job := range jobs {
					guids = append(guids, job.JobGUID)
				}
				return writeJSON(cmd, map[string]any{"jobs": guids, "tus": tus})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d jobs (%d TUs)\n", len(jobs), tus)
			return nil
		},
	}
}

func printTUs(cmd *cobra.Command, ctx *commandContext, tus []tmstore.TU, empty string) error {
	if ctx.jsonOutput() {
		if tus == nil {
			tus = []tmstore.TU{}
		}
		return writeJSON(cmd, tus)
	}
	if len(tus) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), empty)
		return nil
	}
	tuTable(tus).render(cmd.OutOrStdout())
	return nil
}

func tuTable(tus []tmstore.TU) *tableView {
	view := newTableView("Guid", "Job", "Source", "Target", "Q", "Rank", "Provider").alignRight("Q", "Rank")
	for _, tu := range tus {
		target := nstring.Flatten(tu.NTgt)
		if tu.InFlight {
			target = "(in flight)"
		}
		view.add(tu.GUID, tu.JobGUID, truncate(nstring.Flatten(tu.NSrc), 40), truncate(target, 40), tu.Q, tu.Rank, tu.TranslationProvider)
	}
	return view
}

func addCounts[K ~string](view *tableView, prefix string, counts map[K]int) {
	for _, k := range slices.Sorted(maps.Keys(counts)) {
		view.add(prefix+string(k), counts[k])
	}
}

// readJSONArg decodes the file named by arg, or stdin when arg is "-".
func readJSONArg(cmd *cobra.Command, arg string, v any) error {
	r, closeFn, err := openInput(cmd, arg)
	if err != nil {
		return err
	}
	defer closeFn()
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", arg, err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func formatCost(cost *float64) string {
	if cost == nil {
		return "-"
	}
	return strconv.FormatFloat(*cost, 'f', 2, 64)
}

func truncate(value string, limit int) string {
	value = strings.ReplaceAll(value, "\n", " ")
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}
