// Package align attributes transcript spans to diarization speakers by
// maximum time overlap and merges adjacent same-speaker spans.
package align

import (
	"strings"

	"batch-transcriber/internal/domain"
)

// UnknownSpeaker labels spans when diarization is unavailable or no turn overlaps.
const UnknownSpeaker = "UNKNOWN"

// DefaultMergeGap is the largest gap, in seconds, bridged when merging.
const DefaultMergeGap = 0.5

// Overlap returns the shared duration of [start,end] and the turn.
func Overlap(start, end float64, turn domain.DiarizationTurn) float64 {
	return max(0, min(end, turn.End)-max(start, turn.Start))
}

// Assign labels every segment with the speaker of its largest-overlap turn.
// Ties keep the first maximum. A nil turns slice labels everything UnknownSpeaker
// and the output has one entry per input segment.
func Assign(segments []domain.TranscriptSegment, turns []domain.DiarizationTurn) []domain.AlignedSegment {
	out := make([]domain.AlignedSegment, 0, len(segments))
	for _, seg := range segments {
		speaker := UnknownSpeaker
		best := 0.0
		for _, turn := range turns {
			if ov := Overlap(seg.Start, seg.End, turn); ov > best {
				best = ov
				speaker = turn.Speaker
			}
		}
		out = append(out, domain.AlignedSegment{
			Start:     seg.Start,
			End:       seg.End,
			Text:      seg.Text,
			Speaker:   speaker,
			Mergeable: turns != nil,
		})
	}
	return out
}

// Merge joins consecutive mergeable spans with the same speaker whose gap is
// below maxGap. Text is space-joined and the span becomes the union.
func Merge(segments []domain.AlignedSegment, maxGap float64) []domain.AlignedSegment {
	if len(segments) == 0 {
		return nil
	}
	out := make([]domain.AlignedSegment, 0, len(segments))
	cur := segments[0]
	for _, next := range segments[1:] {
		if cur.Mergeable && next.Mergeable && cur.Speaker == next.Speaker && next.Start-cur.End < maxGap {
			cur.Text = strings.TrimSpace(cur.Text + " " + next.Text)
			cur.Start = min(cur.Start, next.Start)
			cur.End = max(cur.End, next.End)
			continue
		}
		out = append(out, cur)
		cur = next
	}
	return append(out, cur)
}

// Align runs Assign then Merge with DefaultMergeGap.
func Align(segments []domain.TranscriptSegment, turns []domain.DiarizationTurn) []domain.AlignedSegment {
	return Merge(Assign(segments, turns), DefaultMergeGap)
}
