package transcribe

import (
	"encoding/json"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"

	"batch-transcriber/internal/domain"
)

type rawObject map[string]json.RawMessage

// schemaMatcher locates the segment array in one known result layout.
type schemaMatcher struct {
	name    string
	extract func(payload rawObject) ([]json.RawMessage, bool)
}

// timeDecoder reads a start/end pair from one known timestamp encoding.
type timeDecoder struct {
	name   string
	decode func(segment rawObject) (start, end float64, ok bool)
}

// schemaMatchers are tried in order until one yields an array.
var schemaMatchers = []schemaMatcher{
	{name: "transcription", extract: topLevelArray("transcription")},
	{name: "segments", extract: topLevelArray("segments")},
	{name: "result.segments", extract: nestedResultSegments},
}

// timeDecoders are tried in order; the last one always succeeds.
var timeDecoders = []timeDecoder{
	{name: "seconds", decode: decodeSeconds},
	{name: "offsets", decode: decodeOffsets},
	{name: "timestamps", decode: decodeTimestamps},
}

// ParseSegments extracts canonical segments from an engine JSON result.
// Segments whose text is empty after trimming are dropped; the returned
// schema name is empty when no layout matched.
func ParseSegments(data []byte) ([]domain.TranscriptSegment, string, error) {
	var payload rawObject
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, "", err
	}

	for _, matcher := range schemaMatchers {
		items, ok := matcher.extract(payload)
		if !ok {
			continue
		}
		return decodeSegments(items), matcher.name, nil
	}
	return nil, "", nil
}

func decodeSegments(items []json.RawMessage) []domain.TranscriptSegment {
	out := make([]domain.TranscriptSegment, 0, len(items))
	for _, item := range items {
		var seg rawObject
		if err := json.Unmarshal(item, &seg); err != nil || seg == nil {
			continue
		}
		text := normalizeText(stringField(seg, "text"))
		if text == "" {
			continue
		}

		var start, end float64
		for _, dec := range timeDecoders {
			if s, e, ok := dec.decode(seg); ok {
				start, end = s, e
				break
			}
		}
		out = append(out, domain.TranscriptSegment{Start: start, End: end, Text: text})
	}
	return out
}

func topLevelArray(key string) func(rawObject) ([]json.RawMessage, bool) {
	return func(payload rawObject) ([]json.RawMessage, bool) {
		return asArray(payload[key])
	}
}

func nestedResultSegments(payload rawObject) ([]json.RawMessage, bool) {
	var result rawObject
	if err := json.Unmarshal(payload["result"], &result); err != nil || result == nil {
		return nil, false
	}
	return asArray(result["segments"])
}

func asArray(raw json.RawMessage) ([]json.RawMessage, bool) {
	if len(raw) == 0 {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return nil, false
	}
	return items, true
}

func decodeSeconds(seg rawObject) (float64, float64, bool) {
	start, okStart := numberField(seg, "start")
	end, okEnd := numberField(seg, "end")
	return start, end, okStart && okEnd
}

func decodeOffsets(seg rawObject) (float64, float64, bool) {
	var offsets rawObject
	if err := json.Unmarshal(seg["offsets"], &offsets); err != nil || offsets == nil {
		return 0, 0, false
	}
	from, okFrom := numberField(offsets, "from")
	to, okTo := numberField(offsets, "to")
	if !okFrom || !okTo {
		return 0, 0, false
	}
	return from / 1000, to / 1000, true
}

func decodeTimestamps(seg rawObject) (float64, float64, bool) {
	var stamps rawObject
	_ = json.Unmarshal(seg["timestamps"], &stamps)
	return parseClock(stringField(stamps, "from")), parseClock(stringField(stamps, "to")), true
}

// parseClock converts "HH:MM:SS,mmm" (or with a dot) to seconds; malformed input is 0.
func parseClock(raw string) float64 {
	text := strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	parts := strings.Split(text, ":")
	if len(parts) != 3 {
		return 0
	}
	var total float64
	for i, unit := range []float64{3600, 60, 1} {
		v, err := strconv.ParseFloat(parts[i], 64)
		if err != nil {
			return 0
		}
		total += v * unit
	}
	return total
}

func numberField(obj rawObject, key string) (float64, bool) {
	raw, ok := obj[key]
	if !ok {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, false
	}
	return n, true
}

func stringField(obj rawObject, key string) string {
	raw, ok := obj[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return string(raw)
	}
	return s
}

func normalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
