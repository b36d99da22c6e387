package output

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"batch-transcriber/internal/domain"
)

var sample = []domain.AlignedSegment{
	{Start: 0, End: 8.08, Text: "Hello there.", Speaker: "S1"},
	{Start: 8.5, End: 3725.5, Text: "A & B <ok>", Speaker: "S2"},
	{Start: 4000, End: 4001, Text: "  "},
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "0.00 - 8.08 | Hello there.\n8.50 - 3725.50 | A & B <ok>",
		PlainText(sample, Options{IncludeTimestamps: true}))
	assert.Equal(t, "S1: Hello there.\nS2: A & B <ok>",
		PlainText(sample, Options{IncludeSpeakers: true}))
}

func TestSRTTimestamp(t *testing.T) {
	assert.Equal(t, "00:00:00,000", SRTTimestamp(0))
	assert.Equal(t, "00:00:08,080", SRTTimestamp(8.08))
	assert.Equal(t, "01:02:05,500", SRTTimestamp(3725.5))
	assert.Equal(t, "00:00:00,000", SRTTimestamp(-3))
	assert.Equal(t, "00:00:01,005", SRTTimestamp(1.005))
	assert.Equal(t, "00:00:02,999", SRTTimestamp(2.999))
}

func TestWriteSRT(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSRT(&buf, sample, true))
	assert.Equal(t, "1\n00:00:00,000 --> 00:00:08,080\nS1: Hello there.\n\n2\n00:00:08,500 --> 01:02:05,500\nS2: A & B <ok>\n\n", buf.String())
}

func TestWriteSelectedFormats(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "talk.txt")

	written, err := Write(txt, sample, Options{Format: domain.OutputSRT, IncludeTimestamps: true})
	require.NoError(t, err)
	assert.Equal(t, []string{txt, filepath.Join(dir, "talk.srt")}, written)
	assert.NoFileExists(t, txt+".tmp")

	written, err = Write(txt, sample, Options{Format: domain.OutputDOCX})
	require.NoError(t, err)
	require.Len(t, written, 2)

	data, err := os.ReadFile(written[1])
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	names := map[string]*zip.File{}
	for _, f := range zr.File {
		names[f.Name] = f
	}
	require.Contains(t, names, "word/document.xml")
	rc, err := names["word/document.xml"].Open()
	require.NoError(t, err)
	doc, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Contains(t, string(doc), "A &amp; B &lt;ok&gt;")
}

func TestWriteTXTOnly(t *testing.T) {
	txt := filepath.Join(t.TempDir(), "nested", "a.txt")
	written, err := Write(txt, sample, Options{Format: domain.OutputTXT})
	require.NoError(t, err)
	assert.Equal(t, []string{txt}, written)
	content, err := os.ReadFile(txt)
	require.NoError(t, err)
	assert.Equal(t, "Hello there.\nA & B <ok>", string(content))
}
