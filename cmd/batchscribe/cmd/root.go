package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"batch-transcriber/internal/batch"
)

var (
	settingsFile string
	logFormat    string
)

var rootCmd = &cobra.Command{
	Use:   "batchscribe",
	Short: "Offline batch transcription with whisper.cpp",
	Long: `batchscribe transcribes every audio and video file in a folder with a
locally built whisper.cpp engine. Transcripts are written next to the media.

The engine, a hardware-appropriate model and ffmpeg are acquired on first use
under the per-user data directory.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command tree.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printError(err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&settingsFile, "config", "", "settings file (.json, .yaml or .toml; default: <data dir>/settings.json)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")
}

// openService builds the batch service for one command invocation.
func openService() (*batch.Service, error) {
	return batch.Open(batch.Options{
		SettingsPath: settingsFile,
		LogFormat:    logFormat,
	})
}

func printError(err error) {
	fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
}
