// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package vdjref holds the V(D)J reference: the catalogue of U/V/D/J/C
// segment sequences that contigs are annotated against.
package vdjref

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/10XGenomics/enclone-sub003/encoding/fasta"
	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
)

// SegType is the kind of a reference segment.
type SegType byte

// Segment types.
const (
	U SegType = 'U' // 5' untranslated region
	V SegType = 'V'
	D SegType = 'D'
	J SegType = 'J'
	C SegType = 'C'
)

// String implements fmt.Stringer.
func (t SegType) String() string { return string(t) }

// ParseRegionType maps a 10x region type (e.g. "L-REGION+V-REGION") to a
// segment type.
func ParseRegionType(region string) (SegType, bool) {
	switch region {
	case "5'UTR":
		return U, true
	case "L-REGION+V-REGION":
		return V, true
	case "D-REGION":
		return D, true
	case "J-REGION":
		return J, true
	case "C-REGION":
		return C, true
	}
	return 0, false
}

// RefData is the reference segment database. Segments are identified by a
// dense index 0, 1, ...; all the slices are indexed by it. RefData is
// immutable once built and may be shared by any number of goroutines.
type RefData struct {
	// Name is the gene name, e.g. "IGHV1-2". The first three characters name
	// the chain ("IGH").
	Name []string
	// Allele is the sequence name of the segment, e.g. "IGHV1-2*01".
	Allele  []string
	SegType []SegType
	// Chain is the chain recorded in the FASTA header, e.g. "IGH".
	Chain []string
	Seq   [][]byte
	// FeatureID is the numeric id the pipeline uses to refer to the segment.
	FeatureID []int
	// FeatureIndex maps FeatureID values back to segment indexes.
	FeatureIndex map[int]int
}

// New creates an empty RefData.
func New() *RefData {
	return &RefData{FeatureIndex: map[int]int{}}
}

// Add registers a segment and returns its index. It fails if featureID is
// already registered.
func (r *RefData) Add(featureID int, name, allele string, t SegType, chain string, seq []byte) (int, error) {
	if _, ok := r.FeatureIndex[featureID]; ok {
		return -1, errors.E(errors.Invalid, fmt.Sprintf("duplicate reference feature id %d", featureID))
	}
	id := len(r.Name)
	r.Name = append(r.Name, name)
	r.Allele = append(r.Allele, allele)
	r.SegType = append(r.SegType, t)
	r.Chain = append(r.Chain, chain)
	r.Seq = append(r.Seq, seq)
	r.FeatureID = append(r.FeatureID, featureID)
	r.FeatureIndex[featureID] = id
	return id, nil
}

// Len returns the number of segments.
func (r *RefData) Len() int { return len(r.Name) }

// Is reports whether segment id has type t.
func (r *RefData) Is(id int, t SegType) bool { return r.SegType[id] == t }

// ChainType returns the chain type implied by the gene name of segment id,
// e.g. "TRB" for "TRBV20-1".
func (r *RefData) ChainType(id int) string {
	name := r.Name[id]
	if len(name) < 3 {
		return name
	}
	return name[:3]
}

// Parse builds a RefData from a 10x V(D)J reference FASTA. Each header has
// the form
//
//   >{feature_id}|{allele} {transcript}|{gene}|{region}|{chain_type}|{chain}|{isotype}|{allele_code}
//
// Records whose region type is not one of the five segment types are
// skipped.
func Parse(fa fasta.Fasta) (*RefData, error) {
	r := New()
	for _, seqName := range fa.SeqNames() {
		head := strings.SplitN(seqName, "|", 2)
		if len(head) != 2 {
			return nil, errors.E(errors.Invalid, "malformed reference header", seqName)
		}
		featureID, err := strconv.Atoi(head[0])
		if err != nil {
			return nil, errors.E(errors.Invalid, "malformed reference feature id", seqName, err)
		}
		desc, err := fa.Description(seqName)
		if err != nil {
			return nil, err
		}
		fields := strings.Split(desc, "|")
		if len(fields) < 5 {
			return nil, errors.E(errors.Invalid, "malformed reference header", seqName, desc)
		}
		t, ok := ParseRegionType(fields[2])
		if !ok {
			log.Debug.Printf("vdjref: skipping %s with region %s", seqName, fields[2])
			continue
		}
		n, err := fa.Len(seqName)
		if err != nil {
			return nil, err
		}
		var seq string
		if n > 0 {
			if seq, err = fa.Get(seqName, 0, n); err != nil {
				return nil, err
			}
		}
		if _, err := r.Add(featureID, fields[1], head[1], t, fields[4], []byte(strings.ToUpper(seq))); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Load reads a 10x V(D)J reference FASTA, possibly compressed, from any
// path supported by github.com/grailbio/base/file.
func Load(ctx context.Context, path string) (ref *RefData, err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open reference", path)
	}
	defer func() {
		if e := in.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	var r io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(r, path); u != nil {
		defer u.Close() // nolint: errcheck
		r = u
	}
	fa, err := fasta.New(r)
	if err != nil {
		return nil, errors.E(errors.Invalid, path, err)
	}
	ref, err = Parse(fa)
	if err == nil {
		log.Printf("vdjref: loaded %d segments from %s", ref.Len(), path)
	}
	return ref, err
}
