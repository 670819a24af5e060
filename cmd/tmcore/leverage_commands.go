package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tmcore/internal/leverage"
	"tmcore/internal/tmstore"
)

func newLeverageCommand(ctx *commandContext) *cobra.Command {
	leverageCmd := &cobra.Command{
		Use:   "leverage",
		Short: "Resolve TUs by reuse",
	}
	leverageCmd.AddCommand(newLeverageRunCommand(ctx))
	return leverageCmd
}

func newLeverageRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run <src|tgt> <tus.json|->",
		Short: "Run the configured leverage providers over a batch of TUs",
		Long: "Reads a JSON array of TUs needing translation, offers them to the enabled\n" +
			"leverage providers in order, commits what they resolve, and reports the TUs\n" +
			"left for a translation provider.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pair, err := parsePairArg(args[0])
			if err != nil {
				return err
			}
			var tus []tmstore.TU
			if err := readJSONArg(cmd, args[1], &tus); err != nil {
				return err
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ctx.tmStore()
			if err != nil {
				return err
			}
			var channels leverage.ChannelSource
			if cfg.Grandfather.Enabled {
				snaps, err := ctx.snapshotStore()
				if err != nil {
					return err
				}
				channels = leverage.NewSnapshotChannels(snaps, ctx.log())
			}
			providers, err := leverage.ProvidersFromConfig(cfg, store, channels, ctx.log())
			if err != nil {
				return err
			}
			if len(providers) == 0 {
				return fmt.Errorf("no leverage providers enabled in configuration")
			}

			var result leverage.Result
			err = ctx.withWriteLock(cmd.Context(), func() error {
				var err error
				result, err = leverage.NewPipeline(store, ctx.log(), providers...).Run(cmd.Context(), pair, tus)
				return err
			})
			if err != nil {
				return err
			}
			if ctx.jsonOutput() {
				return writeJSON(cmd, result)
			}
			out := cmd.OutOrStdout()
			if len(result.Jobs) > 0 {
				view := newTableView("Provider", "Job", "Status", "TUs").alignRight("TUs")
				for _, job := range result.Jobs {
					view.add(job.TranslationProvider, job.JobGUID, job.Status, len(job.TUs))
				}
				view.render(out)
			}
			fmt.Fprintf(out, "%d of %d TUs leveraged, %d held for internal leverage, %d unresolved\n",
				len(tus)-len(result.Unresolved)-len(result.Held), len(tus), len(result.Held), len(result.Unresolved))
			return nil
		},
	}
}
