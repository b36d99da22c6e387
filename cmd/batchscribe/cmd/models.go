package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List and manage whisper models",
	Long: `Lists the model catalog with download state.

Examples:
  batchscribe models
  batchscribe models download small.en
  batchscribe models pin medium.en
  batchscribe models unpin`,
	Args: cobra.NoArgs,
	RunE: runModels,
}

var modelsDownloadCmd = &cobra.Command{
	Use:   "download <model>",
	Short: "Download a catalog model",
	Args:  cobra.ExactArgs(1),
	RunE:  runModelsDownload,
}

var modelsPinCmd = &cobra.Command{
	Use:   "pin <model>",
	Short: "Always use this model instead of hardware selection",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return pinModel(args[0])
	},
}

var modelsUnpinCmd = &cobra.Command{
	Use:   "unpin",
	Short: "Return to hardware-based model selection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return pinModel("")
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsDownloadCmd, modelsPinCmd, modelsUnpinCmd)
}

func runModels(cmd *cobra.Command, args []string) error {
	svc, err := openService()
	if err != nil {
		return err
	}
	defer svc.Close()

	settings, err := svc.Settings()
	if err != nil {
		return err
	}

	models, selected := svc.Models(settings)
	printHeader("Whisper models")
	for _, m := range models {
		marker := "  "
		if m.ID == selected {
			marker = successStyle.Render("* ")
		}
		state := mutedStyle.Render("not downloaded")
		if m.Downloaded {
			state = successStyle.Render("downloaded")
		}
		fmt.Printf("%s%-22s %-9s %-8s min %2d GB  %s\n", marker, m.ID, m.SizeLabel, m.Variant, m.MinRAMGB, state)
	}
	fmt.Println()
	fmt.Println(mutedStyle.Render("* selected for this host with the current settings"))
	return nil
}

func runModelsDownload(cmd *cobra.Command, args []string) error {
	svc, err := openService()
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	spec, err := svc.DownloadModel(ctx, args[0], printBootstrap)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", successStyle.Render("Saved"), spec.LocalPath)
	return nil
}

func pinModel(id string) error {
	svc, err := openService()
	if err != nil {
		return err
	}
	defer svc.Close()

	settings, err := svc.PinModel(id)
	if err != nil {
		return err
	}
	if settings.ModelID == "" {
		fmt.Println("Model selection follows the hardware profile.")
		return nil
	}
	fmt.Printf("Pinned model %s.\n", settings.ModelID)
	return nil
}
