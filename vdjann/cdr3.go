// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package vdjann

import (
	"bytes"

	"github.com/10XGenomics/enclone-sub003/vdjref"
)

const (
	// CDR3 length bounds in amino acids, including the leading C and the
	// trailing F or W.
	minCDR3AA = 5
	maxCDR3AA = 27
	// The conserved cysteine is searched for among the last cysWindow codons
	// of the reference V segment.
	cysWindow = 10
	// anchorLen bases of reference V upstream of the cysteine codon are
	// matched against the contig to place the cysteine.
	anchorLen = 15
	// maxAnchorMismatches bounds the Hamming distance of an anchor match.
	maxAnchorMismatches = 3
)

// CDR3 is a located CDR3. Start is the contig position of the first base of
// the cysteine codon. AA is the amino acid sequence, from the cysteine to the
// closing F or W, inclusive.
type CDR3 struct {
	Start int
	AA    []byte
}

// firstOfType returns the index of the first segment of type t, or -1.
func firstOfType(ann []Segment, ref *vdjref.RefData, t vdjref.SegType) int {
	for i, s := range ann {
		if ref.SegType[s.RefID] == t {
			return i
		}
	}
	return -1
}

// conservedCys returns the position of the first base of the conserved
// cysteine codon of a reference V segment, or -1. The segment starts with
// its start codon, so it is read in frame 0.
func conservedCys(refV []byte) int {
	aa := Translate(refV)
	for i := len(aa) - 1; i >= 0 && i >= len(aa)-cysWindow; i-- {
		if aa[i] == 'C' {
			return 3 * i
		}
	}
	return -1
}

func hamming(a, b []byte) int {
	n := 0
	for i := range a {
		if a[i] != b[i] {
			n++
		}
	}
	return n
}

// LocateCDR3 finds the CDR3 of seq. The V segment of ann names the reference
// V segment whose conserved cysteine opens the CDR3; its coordinates are
// only a hint, so ann may be expressed relative to any origin on the contig.
// The CDR3 closes at the first F or W (at least minCDR3AA residues in) that
// is followed by the motif G.G. LocateCDR3 returns nil if no CDR3 is found,
// and otherwise a single candidate.
func LocateCDR3(seq []byte, ref *vdjref.RefData, ann []Segment) []CDR3 {
	vi := firstOfType(ann, ref, vdjref.V)
	if vi < 0 {
		return nil
	}
	v := ann[vi]
	refV := ref.Seq[v.RefID]
	cys := conservedCys(refV)
	if cys < 0 {
		return nil
	}
	ws := cys - anchorLen
	if ws < 0 {
		ws = 0
	}
	win := refV[ws : cys+3]
	seq = bytes.ToUpper(seq)

	pos := -1
	if e := v.QueryStart + ws - v.RefStart; e >= 0 && e+len(win) <= len(seq) &&
		hamming(seq[e:e+len(win)], win) <= maxAnchorMismatches {
		pos = e
	}
	if pos < 0 {
		best := maxAnchorMismatches + 1
		for p := 0; p+len(win) <= len(seq); p++ {
			if d := hamming(seq[p:p+len(win)], win); d < best {
				best, pos = d, p
			}
		}
	}
	if pos < 0 {
		return nil
	}
	start := pos + cys - ws
	aa := Translate(seq[start:])
	if len(aa) == 0 || aa[0] != 'C' {
		return nil
	}
	for j := minCDR3AA - 1; j < maxCDR3AA && j+3 < len(aa); j++ {
		if (aa[j] == 'F' || aa[j] == 'W') && aa[j+1] == 'G' && aa[j+3] == 'G' {
			return []CDR3{{Start: start, AA: append([]byte(nil), aa[:j+1]...)}}
		}
	}
	return nil
}

// Valid reports whether ann describes a full length chain: a V segment
// aligned from its start codon, followed by a J segment, with an open
// reading frame from the start of V to the end of J.
func Valid(seq []byte, ref *vdjref.RefData, ann []Segment) bool {
	vi := firstOfType(ann, ref, vdjref.V)
	if vi < 0 {
		return false
	}
	v := ann[vi]
	if v.RefStart != 0 {
		return false
	}
	ji := -1
	for i := vi + 1; i < len(ann); i++ {
		if ref.SegType[ann[i].RefID] == vdjref.J {
			ji = i
			break
		}
	}
	if ji < 0 {
		return false
	}
	j := ann[ji]
	if j.End() <= v.End() || j.End() > len(seq) {
		return false
	}
	return bytes.IndexByte(Translate(seq[v.QueryStart:j.End()]), '*') < 0
}
