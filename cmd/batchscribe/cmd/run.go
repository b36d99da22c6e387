package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"batch-transcriber/internal/batch"
	"batch-transcriber/internal/domain"
	"batch-transcriber/internal/jobs"
)

// runOverrides are per-invocation settings that are never persisted.
type runOverrides struct {
	language      string
	format        string
	model         string
	diarizeCmd    string
	timestamps    bool
	timestampsSet bool
}

func (o runOverrides) apply(settings domain.Settings) (domain.Settings, error) {
	if o.language != "" {
		settings.Language = o.language
	}
	if o.format != "" {
		settings.OutputFormat = domain.OutputFormat(o.format)
	}
	if o.model != "" {
		settings.ModelID = o.model
	}
	if o.diarizeCmd != "" {
		settings.Diarization.Enabled = true
		settings.Diarization.Command = o.diarizeCmd
	}
	if o.timestampsSet {
		settings.IncludeTimestamps = o.timestamps
	}
	if err := settings.Validate(); err != nil {
		return domain.Settings{}, err
	}
	return settings, nil
}

var runFlags runOverrides

var runCmd = &cobra.Command{
	Use:   "run [directory]",
	Short: "Transcribe every pending media file in a directory",
	Long: `Walks the directory recursively and transcribes every audio or video file
that has no transcript yet. Files are processed one at a time; a failed file
is reported and the batch continues.

Examples:
  batchscribe run ~/Recordings
  batchscribe run ~/Recordings --format srt --language de
  batchscribe run --diarize-cmd "pyannote-diarize"   # uses the configured input dir`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.language, "language", "l", "", "engine language code (default from settings)")
	runCmd.Flags().StringVarP(&runFlags.format, "format", "f", "", "extra output format: txt, srt or docx")
	runCmd.Flags().StringVarP(&runFlags.model, "model", "m", "", "catalog model id instead of hardware selection")
	runCmd.Flags().StringVar(&runFlags.diarizeCmd, "diarize-cmd", "", "external speaker diarization command")
	runCmd.Flags().BoolVar(&runFlags.timestamps, "timestamps", true, "prefix transcript lines with start and end times")
}

func runBatch(cmd *cobra.Command, args []string) error {
	svc, err := openService()
	if err != nil {
		return err
	}
	defer svc.Close()

	settings, err := svc.Settings()
	if err != nil {
		return err
	}
	overrides := runFlags
	overrides.timestampsSet = cmd.Flags().Changed("timestamps")
	settings, err = overrides.apply(settings)
	if err != nil {
		return err
	}

	inputDir := settings.InputDir
	if len(args) == 1 {
		inputDir = args[0]
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printHeader("Batch Transcriber")
	fmt.Println(mutedStyle.Render(svc.Profile().Summary()))
	fmt.Println()

	summary, err := svc.Run(ctx, settings, inputDir, batch.Hooks{
		Bootstrap: printBootstrap,
		Progress:  printProgress,
	})
	if err != nil {
		return err
	}

	fmt.Println()
	if summary.Total == 0 {
		fmt.Println("Nothing to transcribe.")
		return nil
	}
	fmt.Printf("%s done, %s skipped, %s failed, %s canceled\n",
		successStyle.Render(fmt.Sprint(summary.Done)),
		mutedStyle.Render(fmt.Sprint(summary.Skipped)),
		errorStyle.Render(fmt.Sprint(summary.Failed)),
		warningStyle.Render(fmt.Sprint(summary.Canceled)),
	)
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d file(s) failed", summary.Failed, summary.Total)
	}
	if summary.Canceled > 0 {
		return fmt.Errorf("batch canceled")
	}
	return nil
}

func printBootstrap(step string, status domain.ItemStatus, detail string) {
	fmt.Printf("  %s %-14s %s\n", renderStatus(status), step, mutedStyle.Render(detail))
}

func printProgress(update jobs.Update) {
	fmt.Printf("[%*d/%d] %s %s\n",
		len(fmt.Sprint(update.Total)), update.Completed, update.Total,
		renderStatus(update.Item.Status), update.Item.SourcePath)
	if update.Item.Status == domain.StatusError && update.Item.Detail != "" {
		fmt.Println(mutedStyle.Render("    " + update.Item.Detail))
	}
}
