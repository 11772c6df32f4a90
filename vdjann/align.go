// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package vdjann

import (
	"bytes"
	"sort"

	"github.com/10XGenomics/enclone-sub003/vdjref"
	"github.com/grailbio/base/log"
)

// Aligner aligns contigs to the segments of a reference. It is immutable
// after construction and may be shared by any number of goroutines.
type Aligner struct {
	ref   *vdjref.RefData
	opts  Opts
	index *kmerIndex
}

// NewAligner indexes every segment of ref.
func NewAligner(ref *vdjref.RefData, opts Opts) *Aligner {
	if opts.KmerLength <= 0 || opts.KmerLength > 32 {
		log.Panicf("vdjann: kmer length %d out of range", opts.KmerLength)
	}
	a := &Aligner{ref: ref, opts: opts, index: newKmerIndex(opts.KmerLength)}
	for id, seq := range ref.Seq {
		a.index.add(id, seq)
	}
	return a
}

// Ref returns the reference the aligner was built from.
func (a *Aligner) Ref() *vdjref.RefData { return a.ref }

type diagKey struct{ refID, diag int }

type candidate struct {
	Segment
	score int
}

// Align returns the ungapped matches of seq against the reference, ordered
// by contig position. For each segment type, only the best scoring reference
// segment is reported. A V segment may be reported twice when the contig
// carries an indel relative to it; the two pieces are then trimmed so that
// they do not overlap.
func (a *Aligner) Align(seq []byte) []Segment {
	seq = bytes.ToUpper(seq)
	k := a.opts.KmerLength
	type seedSpan struct{ qStart, qEnd, n int }
	spans := map[diagKey]*seedSpan{}
	forEachKmer(seq, k, func(pos int, kmer Kmer) {
		for _, h := range a.index.lookup(kmer) {
			key := diagKey{int(h.refID), pos - int(h.pos)}
			s := spans[key]
			if s == nil {
				spans[key] = &seedSpan{qStart: pos, qEnd: pos + k, n: 1}
				continue
			}
			if pos+k > s.qEnd {
				s.qEnd = pos + k
			}
			s.n++
		}
	})

	var cands []candidate
	for key, s := range spans {
		if s.n < a.opts.MinSeeds {
			continue
		}
		c := a.extend(seq, key.refID, key.diag, s.qStart, s.qEnd)
		if c.Len < a.opts.minLen(a.ref.SegType[c.RefID]) {
			continue
		}
		cands = append(cands, c)
	}
	sort.Slice(cands, func(i, j int) bool {
		ci, cj := cands[i], cands[j]
		if ci.score != cj.score {
			return ci.score > cj.score
		}
		if ci.RefID != cj.RefID {
			return ci.RefID < cj.RefID
		}
		return ci.QueryStart < cj.QueryStart
	})

	bestRef := map[vdjref.SegType]int{}
	chosen := map[int][]Segment{}
	for _, c := range cands {
		t := a.ref.SegType[c.RefID]
		r, ok := bestRef[t]
		if !ok {
			bestRef[t], r = c.RefID, c.RefID
		}
		if c.RefID != r {
			continue
		}
		prev := chosen[r]
		switch {
		case len(prev) == 0:
			chosen[r] = []Segment{c.Segment}
		case t == vdjref.V && len(prev) == 1:
			if pair, ok := a.splitPair(seq, prev[0], c.Segment); ok {
				chosen[r] = pair
			}
		}
	}

	var out []Segment
	for _, segs := range chosen {
		out = append(out, segs...)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].QueryStart != out[j].QueryStart {
			return out[i].QueryStart < out[j].QueryStart
		}
		return out[i].RefID < out[j].RefID
	})
	return out
}

// extend grows the seeded region [q0,q1) on the given diagonal in both
// directions until the score drops XDrop below its best.
func (a *Aligner) extend(seq []byte, refID, diag, q0, q1 int) candidate {
	r := a.ref.Seq[refID]
	step := func(q int) int {
		if seq[q] == r[q-diag] {
			return 1
		}
		return -a.opts.MismatchPenalty
	}
	lo, hi := q0, q1
	score, best := 0, 0
	for q := q0 - 1; q >= 0 && q-diag >= 0; q-- {
		score += step(q)
		if score > best {
			best, lo = score, q
		}
		if best-score > a.opts.XDrop {
			break
		}
	}
	score, best = 0, 0
	for q := q1; q < len(seq) && q-diag < len(r); q++ {
		score += step(q)
		if score > best {
			best, hi = score, q+1
		}
		if best-score > a.opts.XDrop {
			break
		}
	}
	return a.candidate(seq, refID, lo, hi-lo, lo-diag)
}

func (a *Aligner) candidate(seq []byte, refID, qStart, n, refStart int) candidate {
	r := a.ref.Seq[refID]
	c := candidate{Segment: Segment{QueryStart: qStart, Len: n, RefID: refID, RefStart: refStart}}
	for i := 0; i < n; i++ {
		if seq[qStart+i] != r[refStart+i] {
			c.Mismatches++
		}
	}
	c.score = n - (a.opts.MismatchPenalty+1)*c.Mismatches
	return c
}

// splitPair combines two matches of one V segment on different diagonals.
// The later match (on the contig) is trimmed on its left so that it starts
// no earlier than the end of the first match on both the contig and the
// reference. It fails if the pieces cross or too little remains.
func (a *Aligner) splitPair(seq []byte, x, y Segment) ([]Segment, bool) {
	if y.QueryStart < x.QueryStart {
		x, y = y, x
	}
	if y.RefStart <= x.RefStart || y.QueryStart-y.RefStart == x.QueryStart-x.RefStart {
		return nil, false
	}
	trim := 0
	if d := x.End() - y.QueryStart; d > trim {
		trim = d
	}
	if d := x.RefEnd() - y.RefStart; d > trim {
		trim = d
	}
	if y.Len-trim < 2*a.opts.KmerLength {
		return nil, false
	}
	c := a.candidate(seq, y.RefID, y.QueryStart+trim, y.Len-trim, y.RefStart+trim)
	return []Segment{x, c.Segment}, true
}
