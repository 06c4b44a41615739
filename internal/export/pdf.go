/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export renders chapter manifests as printable scripts.
package export

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"vnplayer/internal/playback"
	"vnplayer/internal/script"
)

// PageSize is a named paper preset.
type PageSize string

const (
	PageA4     PageSize = "A4"
	PageLetter PageSize = "Letter"
)

// PDFOptions controls the chapter PDF. Units are millimetres.
type PDFOptions struct {
	Page PageSize
	// Title goes on a cover page when set.
	Title string
	// Chapters limits the export to these IDs in manifest order; empty means all.
	Chapters []string
	// IncludeCues prints background, sprite and audio cues above each line.
	IncludeCues bool
	// PlayerName replaces name tokens; the tokens are kept when empty.
	PlayerName string
}

// ErrNothingToExport is returned when no chapter matches the options.
var ErrNothingToExport = errors.New("export: no chapters selected")

const (
	margin       = 25.0
	speakerShift = 45.0
	dialogShift  = 25.0
	lineHeight   = 5.5
)

// ChapterPDF writes m to outPath as a screenplay-style PDF, creating the
// parent directory when needed.
func ChapterPDF(m script.Manifest, outPath string, opt PDFOptions) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create pdf: %w", err)
	}
	if err := WritePDF(f, m, opt); err != nil {
		_ = f.Close()
		_ = os.Remove(outPath)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close pdf: %w", err)
	}
	return nil
}

// WritePDF renders m to w.
func WritePDF(w io.Writer, m script.Manifest, opt PDFOptions) error {
	chapters, err := selectChapters(m, opt.Chapters)
	if err != nil {
		return err
	}
	if opt.Page == "" {
		opt.Page = PageA4
	}

	pdf := gofpdf.New("P", "mm", string(opt.Page), "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, 20)
	pdf.SetCreator("vnplayer", true)
	if opt.Title != "" {
		pdf.SetTitle(opt.Title, true)
	}
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.SetTextColor(120, 120, 120)
		pdf.CellFormat(0, 10, fmt.Sprintf("%d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	if opt.Title != "" {
		pdf.AddPage()
		pdf.SetY(100)
		pdf.SetFont("Helvetica", "B", 24)
		pdf.SetTextColor(0, 0, 0)
		pdf.MultiCell(0, 12, tr(opt.Title), "", "C", false)
		pdf.SetFont("Helvetica", "", 11)
		pdf.CellFormat(0, 8, tr(fmt.Sprintf("%d chapters", len(chapters))), "", 1, "C", false, 0, "")
	}

	for _, ch := range chapters {
		pdf.AddPage()
		pdf.SetTextColor(0, 0, 0)
		pdf.SetFont("Helvetica", "B", 16)
		pdf.MultiCell(0, 9, tr(heading(ch)), "", "L", false)
		pdf.Ln(4)
		for _, e := range ch.Entries {
			writeEntry(pdf, tr, e, opt)
		}
		pdf.Ln(4)
		pdf.SetX(margin)
		pdf.SetFont("Helvetica", "I", 9)
		pdf.SetTextColor(90, 90, 90)
		end := "End of story"
		if ch.Next != "" {
			end = "Continues in " + ch.Next
		}
		pdf.CellFormat(0, 6, tr(end), "", 1, "R", false, 0, "")
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func selectChapters(m script.Manifest, ids []string) ([]script.Chapter, error) {
	if len(ids) == 0 {
		if len(m.Chapters) == 0 {
			return nil, ErrNothingToExport
		}
		return m.Chapters, nil
	}
	want := map[string]bool{}
	for _, id := range ids {
		if _, ok := m.Find(id); !ok {
			return nil, fmt.Errorf("chapter %q: %w", id, ErrNothingToExport)
		}
		want[id] = true
	}
	var out []script.Chapter
	for _, ch := range m.Chapters {
		if want[ch.ID] {
			out = append(out, ch)
		}
	}
	return out, nil
}

func heading(ch script.Chapter) string {
	switch {
	case ch.Number > 0 && ch.Title != "":
		return fmt.Sprintf("Chapter %d: %s", ch.Number, ch.Title)
	case ch.Number > 0:
		return fmt.Sprintf("Chapter %d", ch.Number)
	case ch.Title != "":
		return ch.Title
	}
	return ch.ID
}

func writeEntry(pdf *gofpdf.Fpdf, tr func(string) string, e script.Entry, opt PDFOptions) {
	name := func(s string) string {
		if opt.PlayerName == "" {
			return s
		}
		return playback.Substitute(s, opt.PlayerName)
	}
	if opt.IncludeCues {
		if c := CueLine(e); c != "" {
			pdf.SetX(margin)
			pdf.SetFont("Helvetica", "", 8)
			pdf.SetTextColor(120, 120, 120)
			pdf.MultiCell(0, 4, tr(c), "", "L", false)
		}
	}
	pdf.SetTextColor(0, 0, 0)
	switch {
	case playback.IsNameInput(e.Text):
		pdf.SetX(margin)
		pdf.SetFont("Helvetica", "I", 10)
		pdf.MultiCell(0, lineHeight, tr("(the player enters a name)"), "", "L", false)
	case strings.TrimSpace(e.SpeakerName) != "":
		pdf.SetX(margin + speakerShift)
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(0, lineHeight, tr(strings.ToUpper(name(e.SpeakerName))), "", 1, "L", false, 0, "")
		pdf.SetX(margin + dialogShift)
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(pageWidth(pdf)-2*margin-2*dialogShift, lineHeight, tr(name(e.Text)), "", "L", false)
	default:
		pdf.SetX(margin)
		pdf.SetFont("Helvetica", "I", 11)
		pdf.MultiCell(0, lineHeight, tr(name(e.Text)), "", "L", false)
	}
	pdf.Ln(3)
}

func pageWidth(pdf *gofpdf.Fpdf) float64 {
	w, _ := pdf.GetPageSize()
	return w
}

// CueLine summarises an entry's media cues as "[bg hall] [music calm]".
func CueLine(e script.Entry) string {
	var parts []string
	add := func(label, v string) {
		if v != "" {
			parts = append(parts, "["+label+" "+v+"]")
		}
	}
	add("bg", e.BackgroundImage)
	if e.HideCharacter {
		parts = append(parts, "[hide character]")
	} else {
		add("char", e.CharacterSprite)
	}
	add("music", e.BackgroundMusic)
	add("sfx", e.SoundEffect)
	if e.VoicePath != "" {
		add("voice", e.VoicePath)
	} else {
		add("voice", e.VoiceClipName)
	}
	if e.SyncVoiceWithText && (e.VoicePath != "" || e.VoiceClipName != "") {
		parts = append(parts, "[sync]")
	}
	return strings.Join(parts, " ")
}
