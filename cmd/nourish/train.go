package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Veraticus/nourish/internal/artifacts"
	"github.com/Veraticus/nourish/internal/cli"
	"github.com/Veraticus/nourish/internal/common"
	"github.com/Veraticus/nourish/internal/dataset"
	"github.com/Veraticus/nourish/internal/training"
)

func trainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train <dataset.csv>",
		Short: "Train a model bundle from a CSV dataset",
		Long: `Fit the categorical encoders, the feature schema and a tree ensemble
on a diet recommendation dataset, then write the bundle to the artifacts
directory.

The dataset needs the Recommended_* target columns. Blank categorical cells
receive the same declared defaults used when serving.`,
		Args: cobra.ExactArgs(1),
		RunE: runTrain,
	}

	cmd.Flags().Int("trees", 0, "trees per output (default 100)")
	cmd.Flags().Int("max-depth", 0, "maximum tree depth, 0 for unlimited")
	cmd.Flags().Int("min-samples-leaf", 0, "minimum rows per leaf (default 1)")
	cmd.Flags().Int("workers", 0, "parallel tree builders (default: number of CPUs)")
	cmd.Flags().Float64("test-split", 0, "fraction of rows held out for evaluation (default 0.2)")
	cmd.Flags().Int64("seed", 0, "random seed (default 42)")
	cmd.Flags().StringSlice("one-hot", nil, "categorical columns to one-hot encode instead of label encode")
	cmd.Flags().Bool("quiet", false, "hide the progress bar")

	_ = viper.BindPFlag("training.trees", cmd.Flags().Lookup("trees"))
	_ = viper.BindPFlag("training.max_depth", cmd.Flags().Lookup("max-depth"))
	_ = viper.BindPFlag("training.min_samples_leaf", cmd.Flags().Lookup("min-samples-leaf"))
	_ = viper.BindPFlag("training.workers", cmd.Flags().Lookup("workers"))
	_ = viper.BindPFlag("training.test_split", cmd.Flags().Lookup("test-split"))
	_ = viper.BindPFlag("training.seed", cmd.Flags().Lookup("seed"))
	_ = viper.BindPFlag("training.one_hot", cmd.Flags().Lookup("one-hot"))

	return cmd
}

func runTrain(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	quiet, _ := cmd.Flags().GetBool("quiet")
	path := args[0]

	s, err := loadSettings()
	if err != nil {
		return err
	}

	ds, err := dataset.ReadFile(path)
	if err != nil {
		return common.NewUserError(fmt.Sprintf("Could not read dataset %s", path), err)
	}
	slog.Info("Loaded dataset", "path", path, "rows", ds.Len(), "columns", len(ds.Inputs))

	opts := s.Training
	opts.Dataset = path
	if !quiet {
		opts.Progress = cmd.ErrOrStderr()
	}

	interrupts.SetHint("No bundle was written.")
	res, err := training.Train(ctx, ds, opts)
	if err != nil {
		return fmt.Errorf("training failed: %w", err)
	}

	if err := artifacts.Save(s.Artifacts, res.Bundle); err != nil {
		return fmt.Errorf("failed to save bundle: %w", err)
	}

	out := cmd.OutOrStdout()
	if err := cli.Println(out, cli.FormatTitle("Training complete")); err != nil {
		return err
	}
	return cli.Println(out, cli.RenderTrainingReport(res.Report, s.Artifacts))
}
