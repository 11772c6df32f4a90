// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package fastq writes contig sequences and their qualities in FASTQ format.
package fastq

import (
	"io"

	"github.com/grailbio/base/errors"
)

// PhredOffset is added to a Phred score to get its FASTQ character.
const PhredOffset = 33

var newline = []byte{'\n'}

// A Read is a FASTQ record: an ID line (without the leading '@'), a
// sequence and Phred scores, one per base.
type Read struct {
	ID   string
	Seq  []byte
	Qual []byte
}

// Writer is a FASTQ file writer. The first error sticks: once a write has
// failed, later writes do nothing and return the same error.
type Writer struct {
	w   io.Writer
	buf []byte
	err error
}

// NewWriter constructs a new FASTQ writer
// that writes reads to the underlying writer w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Write writes the read r in FASTQ format. Scores above 93 are capped to
// keep the quality line printable.
func (w *Writer) Write(r *Read) error {
	if w.err != nil {
		return w.err
	}
	if len(r.Seq) != len(r.Qual) {
		w.err = errors.E(errors.Invalid, "fastq: read", r.ID, "has sequence and qualities of different lengths")
		return w.err
	}
	w.buf = append(w.buf[:0], '@')
	w.buf = append(w.buf, r.ID...)
	w.buf = append(w.buf, newline...)
	w.buf = append(w.buf, r.Seq...)
	w.buf = append(w.buf, "\n+\n"...)
	for _, q := range r.Qual {
		if q > '~'-PhredOffset {
			q = '~' - PhredOffset
		}
		w.buf = append(w.buf, q+PhredOffset)
	}
	w.buf = append(w.buf, newline...)
	_, w.err = w.w.Write(w.buf)
	return w.err
}
