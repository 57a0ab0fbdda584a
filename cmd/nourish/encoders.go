package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/Veraticus/nourish/internal/cli"
)

func encodersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "encoders",
		Short: "Show the trained bundle and its categorical encoders",
		Long: `Print the bundle manifest and, for every categorical field, the known
classes with their integer codes. The class marked * is the fallback used
for values never seen in training.`,
		RunE: runEncoders,
	}
	cmd.Flags().Bool("json", false, "print the encoders as JSON")
	return cmd
}

func runEncoders(cmd *cobra.Command, _ []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	s, err := loadSettings()
	if err != nil {
		return err
	}
	ictx, err := loadModel(s)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(ictx.Registry())
	}

	if err := cli.Println(out, cli.RenderManifest(ictx.Manifest(), ictx.ModelVersion())); err != nil {
		return err
	}
	return cli.Println(out, cli.RenderEncoders(ictx.Registry()))
}
