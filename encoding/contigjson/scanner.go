// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package contigjson

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
)

var (
	// ErrShort is returned when the array is truncated before its closing bracket.
	ErrShort = errors.E(errors.Invalid, "truncated contig annotation array")
	// ErrInvalid is returned when the input is not a JSON array of objects.
	ErrInvalid = errors.E(errors.Invalid, "invalid contig annotation array")
)

var errEOF = errors.New("eof")

// Scanner yields the raw bytes of each top-level object of a JSON array
// without materializing the whole array. Scanners are not threadsafe.
//
// Scanner only checks that each element is an object; the fields are
// decoded later, by Decode.
type Scanner struct {
	dec     *json.Decoder
	err     error
	started bool
	n       int
	rec     json.RawMessage
}

// NewScanner constructs a new Scanner that reads a JSON array from the
// provided reader.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{dec: json.NewDecoder(bufio.NewReaderSize(r, 1<<20))}
}

// Scan advances to the next object. Scan returns a boolean indicating
// whether the scan succeeded. Once Scan returns false, it never returns
// true again. Upon completion, the user should check the Err method to
// determine whether scanning stopped because of an error or because the
// end of the array was reached. An empty input is an empty array.
func (s *Scanner) Scan() bool {
	if s.err != nil {
		return false
	}
	if !s.started {
		tok, err := s.dec.Token()
		if err == io.EOF {
			s.err = errEOF
			return false
		}
		if err != nil {
			s.err = errors.E(errors.Invalid, err)
			return false
		}
		if d, ok := tok.(json.Delim); !ok || d != '[' {
			s.err = ErrInvalid
			return false
		}
		s.started = true
	}
	if !s.dec.More() {
		tok, err := s.dec.Token()
		if err != nil {
			s.err = ErrShort
			return false
		}
		if d, ok := tok.(json.Delim); !ok || d != ']' {
			s.err = ErrInvalid
			return false
		}
		s.err = errEOF
		return false
	}
	var raw json.RawMessage
	if err := s.dec.Decode(&raw); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			s.err = ErrShort
		} else {
			s.err = errors.E(errors.Invalid, fmt.Sprintf("contig %d", s.n), err)
		}
		return false
	}
	if len(raw) == 0 || raw[0] != '{' {
		s.err = ErrInvalid
		return false
	}
	s.rec = raw
	s.n++
	return true
}

// Bytes returns the raw bytes of the object found by the last Scan call.
// The slice is owned by the caller.
func (s *Scanner) Bytes() json.RawMessage { return s.rec }

// Err returns the scanning error, if any.
func (s *Scanner) Err() error {
	if s.err == errEOF {
		return nil
	}
	return s.err
}

// ReadAll returns the raw bytes of every object of the array.
func ReadAll(r io.Reader) ([]json.RawMessage, error) {
	var recs []json.RawMessage
	s := NewScanner(r)
	for s.Scan() {
		recs = append(recs, s.Bytes())
	}
	return recs, s.Err()
}
