// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package ingest

import (
	"fmt"
	"sync/atomic"

	"github.com/grailbio/base/errors"
)

// Fatal errors are reported with these kinds:
//
//   errors.Invalid       a record does not decode (Malformed)
//   errors.Integrity     a pipeline gene name disagrees with the reference
//   errors.Precondition  derived coordinates are inconsistent
//   errors.NotSupported  datasets come from incompatible pipeline versions
//
// Records that merely fail a business rule are skipped without an error.

// OnceFlag makes sure that at most one diagnostic is reported for a dataset
// load, however many contigs hit a reportable condition concurrently. It is
// owned by one LoadDataset call and shared by its workers.
type OnceFlag struct {
	reported atomic.Bool
}

// Report returns err for the first caller only. Every later caller gets
// errSilent: its contig is dropped without a diagnostic. The returned error
// is the diagnostic; Report does not log it.
func (f *OnceFlag) Report(err error) error {
	if !f.reported.CompareAndSwap(false, true) {
		return errSilent
	}
	return err
}

// Reported tells whether a diagnostic has been issued.
func (f *OnceFlag) Reported() bool { return f.reported.Load() }

// errSilent is returned by OnceFlag.Report to every caller but the first.
// It drops the contig and is never surfaced.
var errSilent = errors.New("already reported")

func malformed(dataset, contig string, err error) error {
	return errors.E(errors.Invalid, fmt.Sprintf("dataset %s, contig %s", dataset, contig), err)
}

func referenceInconsistency(dataset string, featureID int, pipelineGene, refGene string) error {
	return errors.E(errors.Integrity, fmt.Sprintf(
		"the reference used to create %s is inconsistent with the reference in use: "+
			"feature %d is the gene %s in one and the gene %s in the other; "+
			"supply the reference the data was made with, or reannotate",
		dataset, featureID, pipelineGene, refGene))
}

func coordinateInconsistency(dataset, contig, msg string) error {
	return errors.E(errors.Precondition, fmt.Sprintf(
		"dataset %s, contig %s: inconsistent coordinates: %s", dataset, contig, msg))
}

func versionMismatch(versions []string) error {
	return errors.E(errors.NotSupported, fmt.Sprintf(
		"datasets were produced by different pipeline versions %v; they cannot be combined", versions))
}
