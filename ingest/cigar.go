// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package ingest

import (
	"github.com/10XGenomics/enclone-sub003/vdjann"
	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
)

// vCigar is the summary of the CIGAR of a V annotation: up to two match
// blocks separated by an insertion or a deletion.
type vCigar struct {
	len1, len2 int
	ins, del   int
}

// parseVCigar summarizes a V CIGAR. A CIGAR with more than two match blocks,
// or one that does not parse, yields zero match lengths.
func parseVCigar(cigar string) vCigar {
	var v vCigar
	if cigar == "" {
		return v
	}
	ops, err := sam.ParseCigar([]byte(cigar))
	if err != nil {
		log.Debug.Printf("cigar %q: %v", cigar, err)
		return v
	}
	for _, op := range ops {
		switch op.Type() {
		case sam.CigarMatch, sam.CigarEqual, sam.CigarMismatch:
			switch {
			case v.len1 == 0:
				v.len1 = op.Len()
			case v.len2 == 0:
				v.len2 = op.Len()
			default:
				v.len1, v.len2 = 0, 0
				return v
			}
		case sam.CigarInsertion:
			v.ins = op.Len()
		case sam.CigarDeletion:
			v.del = op.Len()
		}
	}
	return v
}

// synthesizeV builds the V alignment, relative to the V start, from a CIGAR
// summary. A second interval is added only for a single in-frame insertion
// or deletion. Mismatch counts are not computed.
func synthesizeV(c vCigar, vRef int) []vdjann.Segment {
	ann := []vdjann.Segment{{QueryStart: 0, Len: c.len1, RefID: vRef, RefStart: 0}}
	switch {
	case c.ins > 0 && c.ins%3 == 0 && c.del == 0 && c.len2 > 0:
		ann = append(ann, vdjann.Segment{QueryStart: c.len1 + c.ins, Len: c.len2, RefID: vRef, RefStart: c.len1})
	case c.del > 0 && c.del%3 == 0 && c.ins == 0 && c.len2 > 0:
		ann = append(ann, vdjann.Segment{QueryStart: c.len1, Len: c.len2, RefID: vRef, RefStart: c.len1 + c.del})
	}
	return ann
}
