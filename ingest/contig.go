// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package ingest turns the contig annotation files of V(D)J datasets into
// validated, normalized contigs grouped by cell barcode.
package ingest

import (
	"github.com/10XGenomics/enclone-sub003/vdjann"
)

// None marks an absent optional coordinate or reference id.
const None = -1

// Contig is one normalized contig. Coordinates are 0-based, on the full
// contig unless noted. The V..J part of the contig is [VStart, JStop).
type Contig struct {
	Barcode string
	Name    string

	// FullSeq and FullQuals cover the whole contig; Seq and Quals the V..J
	// part. Qualities are Phred scores (offset already removed).
	FullSeq   []byte
	FullQuals []byte
	Seq       []byte
	Quals     []byte

	VStart   int
	VStop    int
	VStopRef int // on the reference V
	DStart   int // None if no D
	JStart   int
	// JStartRef is on the reference J.
	JStartRef int
	JStop     int
	CStart    int // None if no C

	// Reference segment indexes. U, D and C are None when absent.
	URef int
	VRef int
	DRef int
	JRef int
	CRef int

	// ChainType is e.g. "IGH". Left is set for the heavy chain of a
	// heavy/light pair, IGH or TRB.
	ChainType string
	Left      bool

	CDR3AA  string
	CDR3DNA string
	// CDR3Start is relative to VStart.
	CDR3Start int

	// VAnn is the alignment of V, one or two intervals, relative to VStart.
	VAnn []vdjann.Segment

	UMICount  int
	ReadCount int

	DatasetIndex int
	// Indexes into the lists of an origin.Interner; origin.NoIndex if absent.
	OriginIndex int
	DonorIndex  int
	TagIndex    int

	// The UMI lists are nil when the pipeline did not report them.
	ValidatedUMIs    []string
	NonValidatedUMIs []string
	InvalidatedUMIs  []string
	// FracReadsUsed is the fraction of the barcode's reads given to the
	// assembler, in parts per million; None if not reported.
	FracReadsUsed int
}
