//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// These tests need the fyne tag and cgo:
//
//	go test -tags fyne ./internal/ui
package ui

import (
	"image/color"
	"testing"

	"fyne.io/fyne/v2/test"

	"vnplayer/internal/display"
	applog "vnplayer/internal/log"
)

func TestStage_LayerAlphaMapsToTranslucency(t *testing.T) {
	test.NewApp()
	w := test.NewWindow(nil)
	defer w.Close()
	st := newStage(w, applog.Discard())

	st.applyAlpha(display.Background, 0.25)
	if got := st.images[display.Background].Translucency; got != 0.75 {
		t.Fatalf("translucency %v", got)
	}
	st.applyAlpha(display.DialogueBox, 1)
	if c, ok := st.box.FillColor.(color.NRGBA); !ok || c.A != 180 {
		t.Fatalf("box fill %#v", st.box.FillColor)
	}
	if c := st.speaker.Color.(color.NRGBA); c.A != 255 {
		t.Fatalf("speaker alpha %d", c.A)
	}
	// Out-of-range layers are ignored.
	st.applyAlpha(display.Layer(42), 1)
}

func TestStage_ContentStacksLayers(t *testing.T) {
	test.NewApp()
	w := test.NewWindow(nil)
	defer w.Close()
	st := newStage(w, applog.Discard())
	if st.content() == nil {
		t.Fatalf("no content")
	}
	for _, img := range st.images {
		if img.Visible() {
			t.Fatalf("layers start hidden")
		}
	}
}
