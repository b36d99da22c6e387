package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Build the engine and download the model and ffmpeg",
	Long: `Profiles the hardware, selects backend and model, then clones and builds
whisper.cpp, downloads the model and acquires ffmpeg. Steps that are already
satisfied are skipped, so setup can be rerun safely.`,
	Args: cobra.NoArgs,
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, args []string) error {
	svc, err := openService()
	if err != nil {
		return err
	}
	defer svc.Close()

	settings, err := svc.Settings()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	printHeader("Toolchain setup")
	env, err := svc.Prepare(ctx, settings, printBootstrap)
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Printf("  Backend: %s\n", env.Backend.Name)
	fmt.Printf("  Model:   %s (%s)\n", env.Model.ID, env.Model.LocalPath)
	fmt.Printf("  Engine:  %s\n", env.Paths.Binary)
	fmt.Printf("  ffmpeg:  %s\n", env.Paths.FFmpeg)
	fmt.Println(successStyle.Render("Ready."))
	return nil
}
