// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package ingest

import (
	"fmt"
	"strings"

	"github.com/10XGenomics/enclone-sub003/vdjann"
)

// recomputeCDR3 relocates the CDR3 of a contig annotated by the pipeline.
// The pipeline may have used an older CDR3 definition; when the two
// disagree the recomputed CDR3 wins.
func (l *loader) recomputeCDR3(w *work) (bool, error) {
	ref := l.shared.Ref
	if refV := ref.Seq[w.tig.VRef]; len(w.vAnn) == 2 && w.vAnn[0].Len > len(refV) {
		return false, coordinateInconsistency(l.ds.Name, w.tig.Name,
			fmt.Sprintf("V alignment of length %d exceeds the reference V of length %d", w.vAnn[0].Len, len(refV)))
	}
	cdr3 := vdjann.LocateCDR3(w.seq, ref, w.vAnn)
	if len(cdr3) == 0 {
		return false, nil
	}
	aa := string(cdr3[0].AA)
	if aa == w.cdr3AA {
		return true, nil
	}
	start := cdr3[0].Start
	if start < w.tigStart {
		return false, nil
	}
	w.cdr3AA = aa
	w.cdr3DNA = string(w.seq[start : start+3*len(aa)])
	w.cdr3Start = start - w.tigStart
	return true, nil
}

// checkCDR3 applies the checks shared by both annotation paths, after the
// segments and the CDR3 are known.
func (l *loader) checkCDR3(w *work) (bool, error) {
	if len(w.vAnn) == 2 && w.vAnn[1].QueryStart > w.vAnn[0].End() {
		ins := w.vAnn[1].QueryStart - w.vAnn[0].End()
		if ins > w.cdr3Start {
			return false, nil
		}
		w.cdr3Start -= ins
	}
	if strings.IndexByte(w.cdr3AA, '*') >= 0 {
		return false, nil
	}
	if w.tigStart < 0 || w.tigStop < 0 || w.tigStart > w.tigStop || w.tigStop > len(w.seq) {
		return false, coordinateInconsistency(l.ds.Name, w.tig.Name,
			fmt.Sprintf("tig_start = %d, tig_stop = %d, length %d", w.tigStart, w.tigStop, len(w.seq)))
	}
	if w.cdr3Start+3*len(w.cdr3AA) > w.tigStop-w.tigStart {
		return false, nil
	}
	return true, nil
}
