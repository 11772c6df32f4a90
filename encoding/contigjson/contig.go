// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package contigjson reads the per-contig annotation files written by the
// 10x V(D)J pipeline: a JSON array with one object per assembled contig.
package contigjson

import (
	"encoding/json"

	"github.com/grailbio/base/errors"
)

// Region types used in Feature.RegionType.
const (
	RegionUTR = "5'UTR"
	RegionV   = "L-REGION+V-REGION"
	RegionD   = "D-REGION"
	RegionJ   = "J-REGION"
	RegionC   = "C-REGION"
)

// Feature identifies the reference segment an annotation aligns to.
type Feature struct {
	RegionType string `json:"region_type"`
	FeatureID  int    `json:"feature_id"`
	GeneName   string `json:"gene_name"`
	Chain      string `json:"chain"`
}

// Annotation is one aligned region of a contig, as computed by the pipeline.
// Coordinates are 0-based and half-open. "Annotation" coordinates are on
// the reference segment; "contig" coordinates are on the contig.
type Annotation struct {
	Feature              Feature `json:"feature"`
	AnnotationMatchStart int     `json:"annotation_match_start"`
	AnnotationMatchEnd   int     `json:"annotation_match_end"`
	// AnnotationLength is the length of the reference segment. Older
	// pipeline versions omit it.
	AnnotationLength *int   `json:"annotation_length,omitempty"`
	ContigMatchStart int    `json:"contig_match_start"`
	ContigMatchEnd   int    `json:"contig_match_end"`
	Cigar            string `json:"cigar"`
}

// Contig is one element of a contig annotation array. Only the fields read
// by the ingestion are declared; the rest are ignored.
type Contig struct {
	Barcode    string `json:"barcode"`
	ContigName string `json:"contig_name"`
	// IsCell is the legacy cell call; IsAsmCell is the assembler's call.
	IsCell    bool `json:"is_cell"`
	IsAsmCell bool `json:"is_asm_cell"`
	// IsGexCell is nil when the pipeline ran without gene expression.
	IsGexCell      *bool  `json:"is_gex_cell"`
	Productive     bool   `json:"productive"`
	HighConfidence bool   `json:"high_confidence"`
	Sequence       string `json:"sequence"`
	// Quals holds Phred+33 quality characters, one per sequence base.
	Quals     string `json:"quals"`
	Version   string `json:"version"`
	UMICount  int    `json:"umi_count"`
	ReadCount int    `json:"read_count"`

	// The UMI lists are nil when absent from the record.
	ValidatedUMIs    []string `json:"validated_umis"`
	NonValidatedUMIs []string `json:"non_validated_umis"`
	InvalidatedUMIs  []string `json:"invalidated_umis"`

	FracReads *float64 `json:"fraction_of_reads_for_this_barcode_provided_as_input_to_assembly"`

	// Pipeline CDR3 and annotations. Nil pointers mean the field was absent or null.
	CDR3        *string      `json:"cdr3"`
	CDR3Seq     *string      `json:"cdr3_seq"`
	CDR3Start   *int         `json:"cdr3_start"`
	Annotations []Annotation `json:"annotations"`
}

// Decode parses one raw object produced by Scanner. A buffer that does not
// have the expected shape yields an errors.Invalid error.
func Decode(raw []byte) (*Contig, error) {
	c := &Contig{}
	if err := json.Unmarshal(raw, c); err != nil {
		return nil, errors.E(errors.Invalid, "failed to parse contig annotation", err)
	}
	return c, nil
}
