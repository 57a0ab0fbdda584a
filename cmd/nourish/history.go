package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/nourish/internal/api"
	"github.com/Veraticus/nourish/internal/cli"
	"github.com/Veraticus/nourish/internal/service"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded predictions",
		RunE:  runHistory,
	}

	cmd.Flags().String("user", "", "only predictions for this user ID")
	cmd.Flags().Int("limit", service.DefaultHistoryLimit, "maximum number of predictions")
	cmd.Flags().Duration("since", 0, "only predictions newer than this (e.g. 24h)")
	cmd.Flags().Bool("json", false, "print predictions as JSON")

	return cmd
}

func runHistory(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	user, _ := cmd.Flags().GetString("user")
	limit, _ := cmd.Flags().GetInt("limit")
	since, _ := cmd.Flags().GetDuration("since")
	asJSON, _ := cmd.Flags().GetBool("json")

	s, err := loadSettings()
	if err != nil {
		return err
	}
	store, err := initStorage(ctx, s)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	filter := service.PredictionFilter{UserID: user, Limit: limit}
	if since > 0 {
		from := time.Now().Add(-since)
		filter.Since = &from
	}

	preds, err := store.ListPredictions(ctx, filter)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		items := make([]api.HistoryItem, 0, len(preds))
		for i := range preds {
			items = append(items, api.NewHistoryItem(&preds[i].Prediction))
		}
		return enc.Encode(items)
	}
	return cli.Println(out, cli.RenderHistory(preds))
}
