package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/nourish/internal/api"
	"github.com/Veraticus/nourish/internal/cli"
	"github.com/Veraticus/nourish/internal/common"
	"github.com/Veraticus/nourish/internal/inference"
	"github.com/Veraticus/nourish/internal/model"
)

func predictCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "predict [field=value ...]",
		Short: "Recommend a diet for one health profile",
		Long: `Run one health profile through the trained bundle.

The profile is read from --file (use - for stdin) as a JSON object, from
field=value arguments, or both; arguments override the file. Values that
parse as numbers are sent as numbers.

Example:
  nourish predict age=34 gender=Male height=5.5 weight=70 preferred_cuisine=Indian`,
		RunE: runPredict,
	}

	cmd.Flags().StringP("file", "f", "", "JSON profile file, - for stdin")
	cmd.Flags().Bool("json", false, "print the API response body instead of a summary")
	cmd.Flags().Bool("record", false, "record the prediction in the history database")

	return cmd
}

func runPredict(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	file, _ := cmd.Flags().GetString("file")
	asJSON, _ := cmd.Flags().GetBool("json")
	record, _ := cmd.Flags().GetBool("record")

	profile, err := readProfile(cmd.InOrStdin(), file, args)
	if err != nil {
		return err
	}

	s, err := loadSettings()
	if err != nil {
		return err
	}
	ictx, err := loadModel(s)
	if err != nil {
		return err
	}

	var opts []inference.Option
	if record {
		store, err := initStorage(ctx, s)
		if err != nil {
			return fmt.Errorf("failed to open prediction history: %w", err)
		}
		defer func() { _ = store.Close() }()
		opts = append(opts, inference.WithRecorder(store))
	}

	p, err := inference.NewService(ictx, opts...).Predict(ctx, profile)
	if err != nil {
		return common.NewUserError("Prediction failed", err)
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(api.Recommendation{
			MealPlan: p.MealPlan,
			UserID:   p.UserID,
			Calories: p.Calories,
			Protein:  p.Protein,
			Carbs:    p.Carbs,
			Fats:     p.Fats,
		})
	}
	return cli.Println(out, cli.RenderPrediction(p))
}

// readProfile merges a JSON profile file with field=value arguments.
func readProfile(stdin io.Reader, file string, args []string) (*model.HealthProfile, error) {
	profile := model.NewHealthProfile()

	if file != "" {
		var (
			data []byte
			err  error
		)
		if file == "-" {
			data, err = io.ReadAll(stdin)
		} else {
			data, err = os.ReadFile(file)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read profile: %w", err)
		}
		if err := json.Unmarshal(data, profile); err != nil {
			return nil, common.NewUserError("Profile is not a valid JSON object", err)
		}
	}

	for _, arg := range args {
		name, raw, ok := strings.Cut(arg, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, common.NewUserError(fmt.Sprintf("Expected field=value, got %q", arg), common.ErrInvalidInput)
		}
		if strings.EqualFold(name, "userId") || strings.EqualFold(name, "user_id") {
			profile.UserID = strings.TrimSpace(raw)
			continue
		}
		profile.Set(name, argValue(raw))
	}

	if len(profile.Names()) == 0 {
		return nil, common.NewUserError("No profile given; pass --file or field=value arguments", common.ErrInvalidInput)
	}
	return profile, nil
}

func argValue(raw string) model.Value {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "" || strings.EqualFold(raw, "null"):
		return model.Null()
	default:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return model.Number(f)
		}
		return model.Text(raw)
	}
}
