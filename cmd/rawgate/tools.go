package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/logflow/rawgate/pkg/batch"
	"github.com/logflow/rawgate/pkg/pipeline"
	"github.com/logflow/rawgate/pkg/quarantine"
	"github.com/logflow/rawgate/pkg/tui"
)

var (
	splitOpts = batch.DefaultOptions()

	archivesVariant string
	runsLimit       int
)

var splitCmd = &cobra.Command{
	Use:   "split <workbook.xlsx> [dest-dir]",
	Short: "Cut a workbook into CSV batch files",
	Long: `Split the first sheet of a workbook into CSV batches named
<prefix>_<date>_<time>.csv. Each batch after the first increments both stamps.

Examples:
  rawgate split clients.xlsx Training_Batch_Files
  rawgate split --size 500 --skip-rows 1 clients.xlsx`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSplit,
}

var archivesCmd = &cobra.Command{
	Use:   "archives",
	Short: "List archived bad-data folders",
	RunE:  runArchives,
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent pipeline runs",
	RunE:  runRuns,
}

func init() {
	splitCmd.Flags().StringVar(&splitOpts.Prefix, "prefix", splitOpts.Prefix, "Batch file name prefix")
	splitCmd.Flags().IntVar(&splitOpts.Size, "size", splitOpts.Size, "Rows per batch")
	splitCmd.Flags().IntVar(&splitOpts.DateSeed, "date-seed", splitOpts.DateSeed, "Date stamp of the first batch")
	splitCmd.Flags().IntVar(&splitOpts.TimeSeed, "time-seed", splitOpts.TimeSeed, "Time stamp of the first batch")
	splitCmd.Flags().StringVar(&splitOpts.Sheet, "sheet", "", "Sheet name (default: first sheet)")
	splitCmd.Flags().IntVar(&splitOpts.SkipRows, "skip-rows", 0, "Rows to skip before the header")

	archivesCmd.Flags().StringVar(&archivesVariant, "variant", string(pipeline.Training), "Variant preset (training, prediction)")
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Number of runs to show (0 for all)")

	rootCmd.AddCommand(splitCmd)
	rootCmd.AddCommand(archivesCmd)
	rootCmd.AddCommand(runsCmd)
}

func runSplit(cmd *cobra.Command, args []string) error {
	dest := cfg.Training.BatchDir
	if len(args) == 2 {
		dest = args[1]
	}

	names, err := batch.Split(cmd.Context(), args[0], dest, splitOpts)
	if err != nil {
		return err
	}
	for _, name := range names {
		fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", name)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d batches written to %s\n", len(names), dest)
	return nil
}

func runArchives(cmd *cobra.Command, args []string) error {
	v, err := pipeline.ParseVariant(archivesVariant)
	if err != nil {
		return err
	}
	folders, err := quarantine.ListArchives(cfg.Variant(v).ArchiveRoot)
	if err != nil {
		return err
	}
	tui.PrintArchives(cmd.OutOrStdout(), folders)
	return nil
}

func runRuns(cmd *cobra.Command, args []string) error {
	env := &runEnv{}
	defer env.Close()

	backend, err := openCheckpoints(cmd.Context(), env)
	if err != nil {
		return err
	}
	runs, err := backend.List(cmd.Context())
	if err != nil {
		return err
	}
	if runsLimit > 0 && len(runs) > runsLimit {
		runs = runs[:runsLimit]
	}
	tui.PrintRuns(cmd.OutOrStdout(), runs)
	return nil
}
