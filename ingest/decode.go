// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package ingest

import (
	"fmt"
	"math"

	"github.com/10XGenomics/enclone-sub003/encoding/contigjson"
	"github.com/10XGenomics/enclone-sub003/vdjann"
	"github.com/grailbio/base/log"
)

// slot is the private accumulator of one record. Each worker writes only
// the slot of the record it processes.
type slot struct {
	barcode string
	// vdjCell and gexCell are set when the barcode is a VDJ or GEX cell.
	vdjCell bool
	gexCell bool
	// gexSeen is set when the record carries an explicit GEX cell flag.
	gexSeen bool
	version string
	contig  *Contig
	err     error
}

// work is the state of one contig between decoding and emission.
type work struct {
	c   *contigjson.Contig
	seq []byte
	tig Contig
	// tigStart and tigStop bound the V..J part of the contig; None until
	// resolved.
	tigStart, tigStop int
	// cdr3Start is relative to tigStart once tigStart is resolved.
	cdr3Start int
	cdr3AA    string
	cdr3DNA   string
	vAnn      []vdjann.Segment
}

func newWork(c *contigjson.Contig) *work {
	return &work{
		c:        c,
		seq:      []byte(c.Sequence),
		tigStart: None,
		tigStop:  None,
		tig: Contig{
			Barcode: c.Barcode,
			Name:    c.ContigName,
			DStart:  None,
			CStart:  None,
			URef:    None,
			VRef:    None,
			DRef:    None,
			JRef:    None,
			CRef:    None,
		},
	}
}

// decode parses one record and applies the cell, productivity and
// confidence filters. It returns nil, without error, for a filtered record.
// Cell flags are recorded in s even for filtered records; the version only
// for records that pass the filters.
func (l *loader) decode(i int, raw []byte, s *slot) (*contigjson.Contig, error) {
	c, err := contigjson.Decode(raw)
	if err != nil {
		return nil, malformed(l.ds.Name, fmt.Sprintf("#%d", i), err)
	}
	s.barcode = c.Barcode
	isCell := c.IsCell || c.IsAsmCell
	if c.IsGexCell != nil {
		s.gexSeen = true
		s.gexCell = *c.IsGexCell
	}
	if !isCell && !l.opts.IncludeNonCells {
		return nil, nil
	}
	s.vdjCell = isCell
	if !l.opts.Reproduce && !c.Productive {
		return nil, nil
	}
	if !l.opts.Reproduce && !l.opts.IncludeNonCells && !c.HighConfidence {
		return nil, nil
	}
	s.version = c.Version
	return c, nil
}

// finish decodes the qualities, resolves the barcode metadata and fills in
// the output contig.
func (l *loader) finish(w *work) (*Contig, error) {
	c := w.c
	if len(c.Quals) != len(w.seq) {
		return nil, malformed(l.ds.Name, c.ContigName,
			fmt.Errorf("%d quality values for %d bases", len(c.Quals), len(w.seq)))
	}
	quals := make([]byte, len(c.Quals))
	for i := 0; i < len(c.Quals); i++ {
		if c.Quals[i] < 33 {
			return nil, malformed(l.ds.Name, c.ContigName, fmt.Errorf("quality character %q below '!'", c.Quals[i]))
		}
		quals[i] = c.Quals[i] - 33
	}
	tig := &w.tig
	tig.FullSeq = w.seq
	tig.FullQuals = quals
	tig.Seq = w.seq[w.tigStart:w.tigStop]
	tig.Quals = quals[w.tigStart:w.tigStop]
	tig.VStart = w.tigStart
	tig.JStop = w.tigStop
	tig.CDR3AA = w.cdr3AA
	tig.CDR3DNA = w.cdr3DNA
	tig.CDR3Start = w.cdr3Start
	tig.VAnn = w.vAnn
	tig.UMICount = c.UMICount
	tig.ReadCount = c.ReadCount
	tig.DatasetIndex = l.index
	tig.OriginIndex, tig.DonorIndex, tig.TagIndex = l.shared.Interner.Index(l.ds.Meta.Resolve(c.Barcode))
	tig.ValidatedUMIs = c.ValidatedUMIs
	tig.NonValidatedUMIs = c.NonValidatedUMIs
	tig.InvalidatedUMIs = c.InvalidatedUMIs
	tig.FracReadsUsed = None
	if c.FracReads != nil {
		tig.FracReadsUsed = int(math.Round(*c.FracReads * 1e6))
	}
	if log.At(log.Debug) {
		log.Debug.Printf("%s: kept %s (%s, cdr3 %s)", l.ds.Name, tig.Name, tig.ChainType, tig.CDR3AA)
	}
	return tig, nil
}
