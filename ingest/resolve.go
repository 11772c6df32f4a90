// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package ingest

import (
	"fmt"

	"github.com/10XGenomics/enclone-sub003/encoding/contigjson"
	"github.com/10XGenomics/enclone-sub003/vdjann"
	"github.com/10XGenomics/enclone-sub003/vdjref"
)

// resolver determines the segments and the CDR3 of a contig. A resolver
// returns false to drop the contig; a non-nil error aborts the dataset.
type resolver interface {
	resolve(l *loader, w *work) (bool, error)
}

func isLeft(chainType string) bool { return chainType == "IGH" || chainType == "TRB" }

// realigner annotates contigs by aligning them to the reference.
type realigner struct {
	aligner *vdjann.Aligner
}

func (r realigner) resolve(l *loader, w *work) (bool, error) {
	ref := r.aligner.Ref()
	ann := vdjann.ReduceVRuns(r.aligner.Align(w.seq), ref)
	if !vdjann.Valid(w.seq, ref, ann) {
		return false, nil
	}
	cdr3 := vdjann.LocateCDR3(w.seq, ref, ann)
	if len(cdr3) == 0 {
		return false, nil
	}
	w.cdr3Start = cdr3[0].Start
	w.cdr3AA = string(cdr3[0].AA)
	w.cdr3DNA = string(w.seq[w.cdr3Start : w.cdr3Start+3*len(cdr3[0].AA)])

	tig := &w.tig
	seenJ := false
	for _, s := range ann {
		switch ref.SegType[s.RefID] {
		case vdjref.U:
			if tig.URef == None {
				tig.URef = s.RefID
			}
		case vdjref.V:
			if seenJ {
				continue
			}
			if tig.VRef == None {
				tig.VRef = s.RefID
				tig.ChainType = ref.ChainType(s.RefID)
				tig.Left = isLeft(tig.ChainType)
			}
			w.vAnn = append(w.vAnn, s)
			if s.RefStart == 0 && w.tigStart == None {
				if s.QueryStart > w.cdr3Start {
					return false, coordinateInconsistency(l.ds.Name, tig.Name,
						fmt.Sprintf("V starts at %d, after the CDR3 at %d", s.QueryStart, w.cdr3Start))
				}
				w.tigStart = s.QueryStart
				w.cdr3Start -= w.tigStart
			}
			tig.VStop = s.End()
			tig.VStopRef = s.RefEnd()
		case vdjref.D:
			if tig.DRef == None {
				tig.DRef = s.RefID
				tig.DStart = s.QueryStart
			}
		case vdjref.J:
			if !seenJ {
				seenJ = true
				tig.JRef = s.RefID
				tig.JStart = s.QueryStart
				tig.JStartRef = s.RefStart
				w.tigStop = s.End()
			}
		case vdjref.C:
			if tig.CRef == None {
				tig.CRef = s.RefID
				tig.CStart = s.QueryStart
			}
		}
	}
	if len(w.vAnn) > 0 {
		base := w.vAnn[0].QueryStart
		for i := range w.vAnn {
			w.vAnn[i].QueryStart -= base
		}
	}
	return true, nil
}

// annotationTrust takes the segments and the CDR3 from the pipeline
// annotations, after checking them against the reference.
type annotationTrust struct {
	ref *vdjref.RefData
}

func (r annotationTrust) resolve(l *loader, w *work) (bool, error) {
	c := w.c
	if c.CDR3 == nil || c.CDR3Seq == nil || c.CDR3Start == nil {
		return false, malformed(l.ds.Name, c.ContigName, fmt.Errorf("productive contig lacks cdr3, cdr3_seq or cdr3_start"))
	}
	w.cdr3AA = *c.CDR3
	w.cdr3DNA = *c.CDR3Seq
	w.cdr3Start = *c.CDR3Start

	tig := &w.tig
	cigar := ""
	for _, a := range c.Annotations {
		id, ok := r.ref.FeatureIndex[a.Feature.FeatureID]
		if !ok {
			continue
		}
		region := a.Feature.RegionType
		if region == contigjson.RegionV {
			tig.VStop = a.ContigMatchEnd
			tig.VStopRef = a.AnnotationMatchEnd
		}
		if gene := r.ref.Name[id]; gene != a.Feature.GeneName && !l.opts.AcceptInconsistent {
			return false, referenceInconsistency(l.ds.Name, a.Feature.FeatureID, a.Feature.GeneName, gene)
		}
		switch region {
		case contigjson.RegionV:
			if a.AnnotationMatchStart != 0 || w.tigStart != None {
				continue
			}
			if a.ContigMatchStart > w.cdr3Start {
				return false, coordinateInconsistency(l.ds.Name, c.ContigName,
					fmt.Sprintf("V starts at %d, after the CDR3 at %d", a.ContigMatchStart, w.cdr3Start))
			}
			w.tigStart = a.ContigMatchStart
			w.cdr3Start -= w.tigStart
			tig.VRef = id
			tig.ChainType = a.Feature.Chain
			if tig.ChainType == "" {
				tig.ChainType = r.ref.ChainType(id)
			}
			tig.Left = isLeft(tig.ChainType)
			cigar = a.Cigar
		case contigjson.RegionJ:
			if a.AnnotationLength != nil && a.AnnotationMatchEnd != *a.AnnotationLength {
				continue
			}
			w.tigStop = a.ContigMatchEnd
			tig.JRef = id
			tig.JStart = a.ContigMatchStart
			tig.JStartRef = a.AnnotationMatchStart
		case contigjson.RegionUTR:
			tig.URef = id
		case contigjson.RegionD:
			tig.DRef = id
			tig.DStart = a.ContigMatchStart
		case contigjson.RegionC:
			tig.CRef = id
			tig.CStart = a.ContigMatchStart
		}
	}
	if w.tigStart == None {
		return false, nil
	}
	w.vAnn = synthesizeV(parseVCigar(cigar), tig.VRef)
	return true, nil
}
