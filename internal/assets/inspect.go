/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package assets

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"vnplayer/internal/domain"
)

// Inspect fills Width/Height for images or Duration for audio from the file at a.Path.
func Inspect(a *domain.Asset) error {
	switch a.Category {
	case domain.CategoryBackground, domain.CategoryCharacter:
		return imageSize(a)
	default:
		f, err := os.Open(a.Path)
		if err != nil {
			return err
		}
		d, err := audioLength(f, filepath.Ext(a.Path))
		if err != nil {
			return err
		}
		a.Duration = d
		return nil
	}
}

func imageSize(a *domain.Asset) error {
	f, err := os.Open(a.Path)
	if err != nil {
		return err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return fmt.Errorf("decode image config: %w", err)
	}
	a.Width, a.Height = cfg.Width, cfg.Height
	return nil
}

// closeOnce lets a decoder and its caller both close the source.
type closeOnce struct {
	io.ReadCloser
	once sync.Once
	err  error
}

func (c *closeOnce) Close() error {
	c.once.Do(func() { c.err = c.ReadCloser.Close() })
	return c.err
}

// audioLength decodes the stream header of r and returns its play length, or
// zero when the decoder cannot tell. It closes r exactly once. The wav decoder
// closes its source on failure while mp3 and vorbis leave it open.
func audioLength(r io.ReadCloser, ext string) (time.Duration, error) {
	rc := &closeOnce{ReadCloser: r}
	defer rc.Close()
	var (
		s      beep.StreamSeekCloser
		format beep.Format
		err    error
	)
	switch strings.ToLower(ext) {
	case ".wav":
		s, format, err = wav.Decode(rc)
	case ".mp3":
		s, format, err = mp3.Decode(rc)
	case ".ogg":
		s, format, err = vorbis.Decode(rc)
	default:
		return 0, fmt.Errorf("unsupported audio format %q", ext)
	}
	if err != nil {
		return 0, fmt.Errorf("decode audio: %w", err)
	}
	defer s.Close()
	if n := s.Len(); n > 0 && format.SampleRate > 0 {
		return format.SampleRate.D(n), nil
	}
	return 0, nil
}
