package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"batch-transcriber/internal/domain"
)

var doctorFix bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check tools, model and directories",
	Long: `Checks ffmpeg, the whisper.cpp binary, git, cmake, the selected model and
the data and input directories.

Examples:
  batchscribe doctor
  batchscribe doctor --fix   # acquire missing tools and model`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)

	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false, "try to fix every failing or warning item")
}

func runDoctor(cmd *cobra.Command, args []string) error {
	svc, err := openService()
	if err != nil {
		return err
	}
	defer svc.Close()

	settings, err := svc.Settings()
	if err != nil {
		return err
	}

	report := svc.Diagnose(settings)
	if doctorFix {
		for _, item := range report.Items {
			if item.Status == domain.DiagnosticStatusPass {
				continue
			}
			if err := svc.Fix(context.Background(), item.ID, settings, printBootstrap); err != nil {
				fmt.Printf("  %s %s: %v\n", warningStyle.Render("[!]"), item.Name, err)
			}
		}
		report = svc.Diagnose(settings)
	}

	printHeader("Diagnostics")
	for _, item := range report.Items {
		icon := "[+]"
		switch item.Status {
		case domain.DiagnosticStatusWarn:
			icon = "[!]"
		case domain.DiagnosticStatusFail:
			icon = "[-]"
		}
		fmt.Printf("  %s %-22s %s\n", diagnosticStyle(item.Status).Render(icon), item.Name, item.Message)
		if item.Hint != "" && item.Status != domain.DiagnosticStatusPass {
			fmt.Println(mutedStyle.Render("      " + item.Hint))
		}
	}

	if report.HasFailures {
		return fmt.Errorf("some checks failed")
	}
	return nil
}
