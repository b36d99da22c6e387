// Package output renders aligned segments to transcript files.
package output

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"batch-transcriber/internal/domain"
)

// Options controls rendering.
type Options struct {
	Format            domain.OutputFormat
	IncludeTimestamps bool
	IncludeSpeakers   bool
}

// Write renders the TXT transcript at txtPath and, when selected, an SRT or
// DOCX sibling. It returns every path written.
func Write(txtPath string, segments []domain.AlignedSegment, opts Options) ([]string, error) {
	if err := os.MkdirAll(filepath.Dir(txtPath), 0o755); err != nil {
		return nil, fmt.Errorf("create transcript directory: %w", err)
	}

	text := PlainText(segments, opts)
	if err := writeAtomic(txtPath, func(w io.Writer) error {
		_, err := io.WriteString(w, text)
		return err
	}); err != nil {
		return nil, fmt.Errorf("write transcript: %w", err)
	}
	written := []string{txtPath}

	stem := strings.TrimSuffix(txtPath, filepath.Ext(txtPath))
	switch opts.Format {
	case domain.OutputSRT:
		path := stem + ".srt"
		if err := writeAtomic(path, func(w io.Writer) error { return WriteSRT(w, segments, opts.IncludeSpeakers) }); err != nil {
			return written, fmt.Errorf("write subtitles: %w", err)
		}
		written = append(written, path)
	case domain.OutputDOCX:
		path := stem + ".docx"
		if err := writeAtomic(path, func(w io.Writer) error { return WriteDOCX(w, text) }); err != nil {
			return written, fmt.Errorf("write document: %w", err)
		}
		written = append(written, path)
	}
	return written, nil
}

// PlainText renders one line per segment.
func PlainText(segments []domain.AlignedSegment, opts Options) string {
	lines := make([]string, 0, len(segments))
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		if opts.IncludeSpeakers && seg.Speaker != "" {
			text = seg.Speaker + ": " + text
		}
		if opts.IncludeTimestamps {
			text = fmt.Sprintf("%.2f - %.2f | %s", seg.Start, seg.End, text)
		}
		lines = append(lines, text)
	}
	return strings.Join(lines, "\n")
}

// WriteSRT renders numbered subtitle cues.
func WriteSRT(w io.Writer, segments []domain.AlignedSegment, withSpeakers bool) error {
	index := 0
	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		if withSpeakers && seg.Speaker != "" {
			text = seg.Speaker + ": " + text
		}
		index++
		if _, err := fmt.Fprintf(w, "%d\n%s --> %s\n%s\n\n", index, SRTTimestamp(seg.Start), SRTTimestamp(seg.End), text); err != nil {
			return err
		}
	}
	return nil
}

// SRTTimestamp formats seconds as HH:MM:SS,mmm.
func SRTTimestamp(seconds float64) string {
	totalMS := int64(math.Round(seconds * 1000))
	if totalMS < 0 {
		totalMS = 0
	}
	h := totalMS / 3_600_000
	m := (totalMS % 3_600_000) / 60_000
	s := (totalMS % 60_000) / 1000
	ms := totalMS % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

const (
	docxContentTypes = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`
	docxRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`
	docxDocumentRels = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"/>`
)

// WriteDOCX renders text as a minimal WordprocessingML package, one paragraph per line.
func WriteDOCX(w io.Writer, text string) error {
	var body strings.Builder
	for _, line := range strings.Split(text, "\n") {
		body.WriteString(`<w:p><w:r><w:t xml:space="preserve">`)
		if err := xml.EscapeText(&body, []byte(line)); err != nil {
			return err
		}
		body.WriteString(`</w:t></w:r></w:p>`)
	}
	document := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body.String() + `<w:sectPr/></w:body></w:document>`

	zw := zip.NewWriter(w)
	parts := []struct{ name, content string }{
		{"[Content_Types].xml", docxContentTypes},
		{"_rels/.rels", docxRels},
		{"word/document.xml", document},
		{"word/_rels/document.xml.rels", docxDocumentRels},
	}
	for _, part := range parts {
		f, err := zw.Create(part.name)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(f, part.content); err != nil {
			return err
		}
	}
	return zw.Close()
}

// writeAtomic writes through a temp file and renames it into place.
func writeAtomic(path string, render func(io.Writer) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	renderErr := render(f)
	closeErr := f.Close()
	if renderErr != nil {
		_ = os.Remove(tmp)
		return renderErr
	}
	if closeErr != nil {
		_ = os.Remove(tmp)
		return closeErr
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
