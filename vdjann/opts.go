// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package vdjann

import "github.com/10XGenomics/enclone-sub003/vdjref"

// Opts configures the Aligner.
type Opts struct {
	// KmerLength is the length of the exact seeds looked up in the reference
	// index. It must be in [1, 32].
	KmerLength int
	// MinSeeds is the number of seeds that must fall on one diagonal of one
	// reference segment before the diagonal is extended.
	MinSeeds int
	// MismatchPenalty is subtracted from the extension score for each
	// mismatch. Each match adds one.
	MismatchPenalty int
	// XDrop stops an extension once its score falls this far below the best
	// score seen.
	XDrop int

	// Minimum alignment lengths, per segment type. Shorter alignments are
	// discarded.
	MinULen int
	MinVLen int
	MinDLen int
	MinJLen int
	MinCLen int
}

// DefaultOpts sets the default values to Opts.
var DefaultOpts = Opts{
	KmerLength:      12,
	MinSeeds:        1,
	MismatchPenalty: 3,
	XDrop:           8,
	MinULen:         20,
	MinVLen:         60,
	MinDLen:         10,
	MinJLen:         20,
	MinCLen:         30,
}

func (o *Opts) minLen(t vdjref.SegType) int {
	switch t {
	case vdjref.U:
		return o.MinULen
	case vdjref.V:
		return o.MinVLen
	case vdjref.D:
		return o.MinDLen
	case vdjref.J:
		return o.MinJLen
	case vdjref.C:
		return o.MinCLen
	}
	return 0
}
