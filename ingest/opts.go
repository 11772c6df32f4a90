// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package ingest

import "runtime"

// Opts controls which contigs are kept and how they are annotated. One Opts
// value applies to a whole ingestion run.
type Opts struct {
	// Reannotate recomputes the segment annotations and the CDR3 from the
	// contig sequence, ignoring the annotations written by the pipeline.
	Reannotate bool
	// Reproduce mimics legacy output: it implies Reannotate and keeps
	// non-productive and low confidence contigs.
	Reproduce bool
	// IncludeNonCells keeps contigs whose barcode was not called a cell, and
	// contigs that are not high confidence.
	IncludeNonCells bool
	// AcceptInconsistent ignores gene names in the pipeline annotations that
	// disagree with the reference.
	AcceptInconsistent bool
	// Internal allows datasets produced by different pipeline versions to be
	// combined.
	Internal bool
	// CellrangerMode reads contig_annotations.json (called cells only)
	// instead of all_contig_annotations.json.
	CellrangerMode bool
	// Parallelism bounds the number of workers. Load divides it between
	// the datasets loaded concurrently and the contigs of each.
	Parallelism int
}

// DefaultOpts sets the default values to Opts.
var DefaultOpts = Opts{
	Reannotate:         false, // -reannotate
	Reproduce:          false, // -reproduce
	IncludeNonCells:    false, // -include-non-cells
	AcceptInconsistent: false, // -accept-inconsistent
	Internal:           false, // -internal
	CellrangerMode:     false, // -cellranger
	Parallelism:        runtime.NumCPU(),
}

func (o *Opts) parallelism() int {
	if o.Parallelism <= 0 {
		return runtime.NumCPU()
	}
	return o.Parallelism
}

// realign reports whether contigs are annotated by realignment rather than
// from the pipeline annotations.
func (o *Opts) realign() bool { return o.Reannotate || o.Reproduce }
