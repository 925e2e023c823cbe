// Copyright 2025 The Parca Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package branchpath

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxLineSize = 64 << 20

// Reader streams branch samples stored as JSON lines. Gzip and zstd
// compressed input is detected from its magic bytes.
type Reader struct {
	scanner *bufio.Scanner
	closer  io.Closer
	line    int
}

// NewReader wraps r. Close must be called to release the decompressor.
func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read magic bytes: %w", err)
	}

	var (
		src    io.Reader = br
		closer io.Closer
	)
	switch {
	case len(magic) >= 2 && magic[0] == 0x1f && magic[1] == 0x8b:
		gr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("create gzip reader: %w", err)
		}
		src, closer = gr, gr
	case bytes.Equal(magic, []byte{0x28, 0xb5, 0x2f, 0xfd}):
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("create zstd reader: %w", err)
		}
		src, closer = zr, zr.IOReadCloser()
	}

	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	return &Reader{scanner: scanner, closer: closer}, nil
}

// Next returns the next sample or io.EOF after the last one. Blank lines
// are skipped.
func (r *Reader) Next() (BinaryAddressBranchPath, error) {
	for r.scanner.Scan() {
		r.line++
		line := bytes.TrimSpace(r.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var p BinaryAddressBranchPath
		if err := json.Unmarshal(line, &p); err != nil {
			return BinaryAddressBranchPath{}, fmt.Errorf("line %d: %w", r.line, err)
		}
		return p, nil
	}
	if err := r.scanner.Err(); err != nil {
		return BinaryAddressBranchPath{}, fmt.Errorf("line %d: %w", r.line+1, err)
	}
	return BinaryAddressBranchPath{}, io.EOF
}

// ReadAll reads every remaining sample.
func (r *Reader) ReadAll() ([]BinaryAddressBranchPath, error) {
	var res []BinaryAddressBranchPath
	for {
		p, err := r.Next()
		if errors.Is(err, io.EOF) {
			return res, nil
		}
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
}

func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// Writer writes values as JSON lines.
type Writer struct {
	enc *jsoniter.Encoder
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w)}
}

// Write writes each path on its own line.
func (w *Writer) Write(paths ...FlatBbHandleBranchPath) error {
	for _, p := range paths {
		if err := w.enc.Encode(p); err != nil {
			return fmt.Errorf("encode path: %w", err)
		}
	}
	return nil
}

// WriteSample writes one raw sample on its own line.
func (w *Writer) WriteSample(p BinaryAddressBranchPath) error {
	if err := w.enc.Encode(p); err != nil {
		return fmt.Errorf("encode sample: %w", err)
	}
	return nil
}
