/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

import (
	"fmt"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
)

// LoadFace parses a TrueType or OpenType file into a face at sizePt. dpi
// defaults to 72, which makes points and pixels equal.
func LoadFace(path string, sizePt, dpi float64) (font.Face, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read font %s: %w", path, err)
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font %s: %w", path, err)
	}
	if sizePt <= 0 {
		sizePt = 12
	}
	if dpi <= 0 {
		dpi = 72
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: sizePt, DPI: dpi, Hinting: font.HintingFull})
	if err != nil {
		return nil, fmt.Errorf("face %s: %w", path, err)
	}
	return face, nil
}

// MeasurerFor returns a pixel measurer for the font at path, or the built-in
// 7x13 face when path is empty.
func MeasurerFor(path string, sizePt float64) (FaceMeasurer, error) {
	if path == "" {
		return FaceMeasurer{}, nil
	}
	face, err := LoadFace(path, sizePt, 72)
	if err != nil {
		return FaceMeasurer{}, err
	}
	return FaceMeasurer{Face: face}, nil
}
