// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package vdjann annotates assembled contigs against a V(D)J reference: it
// aligns a contig to the U/V/D/J/C segments, checks that the result
// describes a plausible receptor chain, and locates the CDR3.
package vdjann

import (
	"fmt"

	"github.com/10XGenomics/enclone-sub003/vdjref"
)

// Segment is one ungapped match between a contig and a reference segment.
// Coordinates are 0-based. Segments are immutable once created.
type Segment struct {
	// QueryStart is the match start on the contig.
	QueryStart int
	// Len is the match length, identical on both sides.
	Len int
	// RefID is the reference segment index in vdjref.RefData.
	RefID int
	// RefStart is the match start on the reference segment.
	RefStart int
	// Mismatches is the number of mismatching bases in the match.
	Mismatches int
}

// End returns the end of the match on the contig.
func (s Segment) End() int { return s.QueryStart + s.Len }

// RefEnd returns the end of the match on the reference segment.
func (s Segment) RefEnd() int { return s.RefStart + s.Len }

// String implements fmt.Stringer.
func (s Segment) String() string {
	return fmt.Sprintf("(%d,%d,%d,%d,%d)", s.QueryStart, s.Len, s.RefID, s.RefStart, s.Mismatches)
}

// ReduceVRuns collapses runs of consecutive V segments. In a run of two or
// more V segments only the first is kept, plus the second when it is on the
// same reference segment and either continues the first on the contig while
// skipping ahead on the reference, or continues it on the reference while
// skipping ahead on the contig. Runs of other types, and single V segments,
// are kept unchanged. ReduceVRuns is idempotent.
func ReduceVRuns(ann []Segment, ref *vdjref.RefData) []Segment {
	out := make([]Segment, 0, len(ann))
	for j := 0; j < len(ann); {
		t := ref.SegType[ann[j].RefID]
		k := j + 1
		for k < len(ann) && ref.SegType[ann[k].RefID] == t {
			k++
		}
		if t != vdjref.V || k-j == 1 {
			out = append(out, ann[j:k]...)
			j = k
			continue
		}
		out = append(out, ann[j])
		a, b := ann[j], ann[j+1]
		if b.RefID == a.RefID &&
			((a.End() == b.QueryStart && a.RefEnd() < b.RefStart) ||
				(a.End() < b.QueryStart && a.RefEnd() == b.RefStart)) {
			out = append(out, b)
		}
		j = k
	}
	return out
}
