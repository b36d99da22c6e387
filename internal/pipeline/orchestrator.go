// Package pipeline runs discovered work items one at a time through
// preprocessing, transcription, optional diarization, alignment and output.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"batch-transcriber/internal/align"
	"batch-transcriber/internal/diarize"
	"batch-transcriber/internal/domain"
	"batch-transcriber/internal/jobs"
	"batch-transcriber/internal/output"
	"batch-transcriber/internal/process"
	"batch-transcriber/internal/transcribe"
)

// SkipDetail marks items whose transcript appeared after discovery.
const SkipDetail = "skipped: transcript exists"

// Preprocessor converts media into engine-ready audio.
type Preprocessor interface {
	Prepare(ctx context.Context, source string) (string, error)
}

// Transcriber runs the speech engine on normalized audio.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (transcribe.Result, error)
}

// ItemObserver records terminal item outcomes.
type ItemObserver interface {
	ObserveItem(status domain.ItemStatus)
}

// Summary is the outcome of one run.
type Summary struct {
	RunID    string            `json:"runId"`
	Total    int               `json:"total"`
	Done     int               `json:"done"`
	Skipped  int               `json:"skipped"`
	Failed   int               `json:"failed"`
	Canceled int               `json:"canceled"`
	Items    []domain.WorkItem `json:"items"`
}

// Orchestrator is the single sequential worker of a batch.
type Orchestrator struct {
	Preprocessor Preprocessor
	Transcriber  Transcriber
	// Diarizer is nil when speaker attribution is disabled.
	Diarizer diarize.Diarizer
	Output   output.Options
	MergeGap float64

	// TranscriptExists re-checks the target right before an item starts.
	TranscriptExists func(source string) bool
	Observer         ItemObserver
	Logger           *slog.Logger

	OnProgress func(jobs.Update)
	OnCommand  func(itemID string, log transcribe.CommandLog)

	write    func(string, []domain.AlignedSegment, output.Options) ([]string, error)
	newRunID func() string
}

// Run processes items under a fresh run id.
func (o *Orchestrator) Run(ctx context.Context, items []domain.WorkItem) Summary {
	newID := o.newRunID
	if newID == nil {
		newID = uuid.NewString
	}
	return o.Execute(ctx, jobs.NewTracker(newID(), items))
}

// Execute processes every tracked item in order. Failures are isolated per
// item. Once ctx is canceled the remaining items are marked Canceled without
// starting.
func (o *Orchestrator) Execute(ctx context.Context, tracker *jobs.Tracker) Summary {
	logger := o.logger().With("run", tracker.RunID())
	items := tracker.Items()
	logger.Info("batch started", "total", len(items))

	summary := Summary{RunID: tracker.RunID(), Total: len(items)}
	for _, item := range items {
		if ctx.Err() != nil || tracker.CancelRequested() {
			tracker.RequestCancel()
			o.transition(tracker, item.ID, domain.StatusCanceled, "canceled before start")
			continue
		}
		if o.TranscriptExists != nil && o.TranscriptExists(item.SourcePath) {
			logger.Info("transcript exists, skipping", "item", item.ID, "path", item.SourcePath)
			o.transition(tracker, item.ID, domain.StatusDone, SkipDetail)
			summary.Skipped++
			continue
		}

		if err := o.process(ctx, tracker, item); err != nil {
			status := domain.StatusError
			if process.IsCanceled(err) || ctx.Err() != nil {
				tracker.RequestCancel()
				status = domain.StatusCanceled
			}
			o.fail(tracker, item, status, err)
		}
	}

	summary.Items = tracker.Items()
	for _, item := range summary.Items {
		switch item.Status {
		case domain.StatusDone:
			summary.Done++
		case domain.StatusError:
			summary.Failed++
		case domain.StatusCanceled:
			summary.Canceled++
		}
	}
	summary.Done -= summary.Skipped
	logger.Info("batch finished",
		"done", summary.Done,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"canceled", summary.Canceled,
	)
	return summary
}

func (o *Orchestrator) process(ctx context.Context, tracker *jobs.Tracker, item domain.WorkItem) error {
	logger := o.logger().With("item", item.ID, "path", item.SourcePath)

	o.transition(tracker, item.ID, domain.StatusPreprocessing, item.SourcePath)
	audio, err := o.Preprocessor.Prepare(ctx, item.SourcePath)
	if err != nil {
		return err
	}

	o.transition(tracker, item.ID, domain.StatusTranscribing, audio)
	result, err := o.Transcriber.Transcribe(ctx, audio)
	if err != nil {
		return err
	}
	o.command(item.ID, result.Log)
	logger.Info("transcribed", "segments", len(result.Segments), "schema", result.Schema, "elapsed", result.Elapsed)

	var turns []domain.DiarizationTurn
	if o.Diarizer != nil {
		o.transition(tracker, item.ID, domain.StatusDiarizing, audio)
		turns, err = o.Diarizer.Diarize(ctx, audio)
		if err != nil {
			var pipelineErr *transcribe.PipelineError
			if errors.As(err, &pipelineErr) {
				return err
			}
			return &transcribe.PipelineError{Stage: transcribe.StageDiarizing, Message: "speaker diarization failed", Err: err}
		}
		logger.Info("diarized", "turns", len(turns))
	}

	gap := o.MergeGap
	if gap <= 0 {
		gap = align.DefaultMergeGap
	}
	aligned := align.Merge(align.Assign(result.Segments, turns), gap)

	o.transition(tracker, item.ID, domain.StatusSaving, item.TranscriptPath)
	opts := o.Output
	opts.IncludeSpeakers = o.Diarizer != nil
	write := o.write
	if write == nil {
		write = output.Write
	}
	written, err := write(item.TranscriptPath, aligned, opts)
	if err != nil {
		return &transcribe.PipelineError{Stage: transcribe.StageSaving, Message: "writing transcript failed", Err: err}
	}

	logger.Info("transcript saved", "outputs", written)
	o.transition(tracker, item.ID, domain.StatusDone, strings.Join(written, ", "))
	return nil
}

func (o *Orchestrator) fail(tracker *jobs.Tracker, item domain.WorkItem, status domain.ItemStatus, err error) {
	logger := o.logger().With("item", item.ID, "path", item.SourcePath)
	detail := err.Error()

	var pipelineErr *transcribe.PipelineError
	if errors.As(err, &pipelineErr) {
		o.command(item.ID, pipelineErr.CommandLog)
		if diag := pipelineErr.Diagnostic(); diag != "" && status == domain.StatusError {
			detail += ": " + diag
		}
	}

	if status == domain.StatusCanceled {
		logger.Info("item canceled", "error", err)
	} else {
		logger.Error("item failed", "error", err, "detail", detail)
	}
	o.transition(tracker, item.ID, status, detail)
}

func (o *Orchestrator) transition(tracker *jobs.Tracker, itemID string, status domain.ItemStatus, detail string) {
	update, err := tracker.Transition(itemID, status, detail)
	if err != nil {
		o.logger().Warn("ignored item transition", "item", itemID, "error", err)
		return
	}
	if o.OnProgress != nil {
		o.OnProgress(update)
	}
	if update.Item.Status.Terminal() && o.Observer != nil {
		o.Observer.ObserveItem(update.Item.Status)
	}
}

func (o *Orchestrator) command(itemID string, log transcribe.CommandLog) {
	if log.Command == "" || o.OnCommand == nil {
		return
	}
	o.OnCommand(itemID, log)
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}
