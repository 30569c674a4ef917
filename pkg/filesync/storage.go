/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package filesync

import (
	"fmt"
	"io"

	"github.com/spf13/afero"

	"github.com/carverauto/dropsync/pkg/hashutil"
	"github.com/carverauto/dropsync/pkg/models"
)

const dirPerm = 0o750

// partial is a hidden file written in the destination directory so the
// final rename stays on one filesystem.
type partial struct {
	fs   afero.Fs
	path string
	sum  string
	size int64
}

// writePartial streams r into a hidden file under dir, hashing as it goes.
// More than maxSize bytes is ErrPayloadTooLarge and leaves nothing behind.
func writePartial(fsys afero.Fs, dir string, r io.Reader, maxSize int64) (*partial, error) {
	if err := fsys.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", models.ErrStorage, dir, err)
	}

	f, err := afero.TempFile(fsys, dir, tempPattern)
	if err != nil {
		return nil, fmt.Errorf("%w: create partial file: %v", models.ErrStorage, err)
	}

	p := &partial{fs: fsys, path: f.Name()}

	src := r
	if maxSize > 0 {
		src = io.LimitReader(r, maxSize+1)
	}

	sum, n, copyErr := hashutil.SumReader(io.TeeReader(src, f))
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		p.discard()
		return nil, fmt.Errorf("%w: write partial file: %v", models.ErrStorage, copyErr)
	case closeErr != nil:
		p.discard()
		return nil, fmt.Errorf("%w: close partial file: %v", models.ErrStorage, closeErr)
	case maxSize > 0 && n > maxSize:
		p.discard()
		return nil, fmt.Errorf("%w: file exceeds %d bytes", models.ErrPayloadTooLarge, maxSize)
	}

	p.sum, p.size = sum, n

	return p, nil
}

// commit moves the partial file to dst, replacing any existing file.
func (p *partial) commit(dst string) error {
	if err := p.fs.Rename(p.path, dst); err != nil {
		p.discard()
		return fmt.Errorf("%w: rename into place: %v", models.ErrStorage, err)
	}

	return nil
}

func (p *partial) discard() {
	_ = p.fs.Remove(p.path)
}
