package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"batch-transcriber/internal/environment"
	"batch-transcriber/internal/selector"
)

var profileJSON bool

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show the hardware profile and the resulting selection",
	Args:  cobra.NoArgs,
	RunE:  runProfile,
}

func init() {
	rootCmd.AddCommand(profileCmd)

	profileCmd.Flags().BoolVar(&profileJSON, "json", false, "print as JSON")
}

func runProfile(cmd *cobra.Command, args []string) error {
	svc, err := openService()
	if err != nil {
		return err
	}
	defer svc.Close()

	settings, err := svc.Settings()
	if err != nil {
		return err
	}

	profile := svc.Profile()
	backend := selector.SelectBackend(profile)
	model, err := environment.ChooseModel(profile, settings)
	if err != nil {
		return err
	}

	if profileJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"profile": profile,
			"backend": backend,
			"model":   model,
		})
	}

	printHeader("Hardware")
	fmt.Println("  " + profile.Summary())
	fmt.Printf("  RAM bucket: %s, processing score: %d\n", profile.RAMBucket, profile.ProcessingScore)
	fmt.Println()
	printHeader("Selection")
	fmt.Printf("  Backend: %s %s\n", backend.Name, mutedStyle.Render(fmt.Sprint(backend.CMakeFlags)))
	fmt.Printf("  Model:   %s (%s, min %d GB RAM)\n", model.ID, model.SizeLabel, model.MinRAMGB)
	if settings.ModelID != "" {
		fmt.Println(mutedStyle.Render("  model pinned in settings"))
	}
	if profile.RAMGB < model.MinRAMGB {
		fmt.Println(warningStyle.Render("  system RAM is below the recommended minimum for this model"))
	}
	return nil
}
