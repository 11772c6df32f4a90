// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package vdjreftest builds a small synthetic TRA/TRB reference and contigs
// assembled from it, for tests.
package vdjreftest

import (
	"fmt"
	"strings"

	"github.com/10XGenomics/enclone-sub003/encoding/fasta"
	"github.com/10XGenomics/enclone-sub003/vdjref"
)

var codon = map[byte]string{
	'A': "GCC", 'C': "TGT", 'D': "GAC", 'E': "GAG", 'F': "TTC",
	'G': "GGC", 'H': "CAC", 'I': "ATC", 'K': "AAG", 'L': "CTG",
	'M': "ATG", 'N': "AAC", 'P': "CCC", 'Q': "CAG", 'R': "CGC",
	'S': "AGC", 'T': "ACC", 'V': "GTG", 'W': "TGG", 'Y': "TAC",
	'*': "TGA",
}

// Encode back-translates an amino acid string with one fixed codon per residue.
func Encode(aa string) string {
	var b strings.Builder
	for i := 0; i < len(aa); i++ {
		c, ok := codon[aa[i]]
		if !ok {
			panic(fmt.Sprintf("vdjreftest: no codon for %q", aa[i]))
		}
		b.WriteString(c)
	}
	return b.String()
}

// Segment is one reference record of the synthetic reference.
type Segment struct {
	FeatureID int
	Gene      string
	Region    string
	Chain     string
	Seq       string
}

const (
	trbUTR = "AGTCTGCCATCCCCAACCAGACAGCTCTTTACTTCTGCCA"
	traUTR = "GGAATTCTTAAAGCCAGCCTCATTTGTCTGTCTTCATCCA"
)

// Segments lists the synthetic reference, in FASTA order.
var Segments = []Segment{
	{1, "TRBV20-1", "5'UTR", "TRB", trbUTR},
	{2, "TRBV20-1", "L-REGION+V-REGION", "TRB", Encode(
		"MGTSLLCWVVLGFLGTDHTGAGVSQSPRYKVTKRGQDVALRCDPISGHVSLYWYRQALGQGPEFLTYFNYEAQQDKSGLPNDRFSAERPEGSISTLTIQRTEQRDSAMYRCASS")},
	{3, "TRBD1", "D-REGION", "TRB", Encode("GTGG")},
	{4, "TRBJ1-1", "J-REGION", "TRB", Encode("NTEAFFGQGTRLTVV")},
	{5, "TRBC1", "C-REGION", "TRB", Encode("EDLNKVFPPEVAVFEPSEAEISHTQKATLVCLATGFFPDH")},
	{6, "TRAV12-1", "5'UTR", "TRA", traUTR},
	{7, "TRAV12-1", "L-REGION+V-REGION", "TRA", Encode(
		"MKSLRVLLVILWLQLSWVWSQQKEVEQNSGPLSVPEGAIASLNCTYSDRGSQSFFWYRQYSGKSPELIMSIYSNGDKEDGRFTAQLNKASQYVSLLIRDSQPSDSATYLCAVN")},
	{8, "TRAJ23", "J-REGION", "TRA", Encode("NSGGSNYKLTFGKGTLLTVNP")},
	{9, "TRAC", "C-REGION", "TRA", Encode("IQNPDPAVYQLRDSKSSDKSVCLFTDFDSQTNVSQSKDSDV")},
}

// FASTA renders Segments in the 10x reference FASTA format.
func FASTA() string {
	var b strings.Builder
	for _, s := range Segments {
		fmt.Fprintf(&b, ">%d|%s ENST%08d|%s|%s|TR|%s|None|00\n", s.FeatureID, s.Gene, s.FeatureID, s.Gene, s.Region, s.Chain)
		for i := 0; i < len(s.Seq); i += 60 {
			end := i + 60
			if end > len(s.Seq) {
				end = len(s.Seq)
			}
			b.WriteString(s.Seq[i:end])
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Reference parses FASTA into a RefData. Segment i of Segments gets
// reference index i.
func Reference() *vdjref.RefData {
	fa, err := fasta.New(strings.NewReader(FASTA()))
	if err != nil {
		panic(err)
	}
	ref, err := vdjref.Parse(fa)
	if err != nil {
		panic(err)
	}
	return ref
}

// Span is a half-open interval on a contig.
type Span struct{ Start, End int }

// Contig is a synthetic contig with its true layout. Ref fields are indexes
// into Segments (and into the RefData built by Reference); -1 means absent.
type Contig struct {
	Seq                          string
	UTR, V, D, J, C              Span
	UTRRef, VRef, DRef, JRef, CRef int
	Chain                        string
	// CDR3Start is the position of the CDR3 on the full contig.
	CDR3Start int
	CDR3AA    string
	CDR3Seq   string
}

// TRB returns a productive TRB contig: UTR, V, D, J and the start of C.
func TRB() Contig {
	return assemble("TRB", 0, 1, 2, 3, 4, "", "CASSGTGGNTEAFF")
}

// TRA returns a productive TRA contig without D, with one junction codon.
func TRA() Contig {
	return assemble("TRA", 5, 6, -1, 7, 8, Encode("G"), "CAVNGNSGGSNYKLTF")
}

func assemble(chain string, u, v, d, j, c int, junction, cdr3 string) Contig {
	tig := Contig{UTRRef: u, VRef: v, DRef: d, JRef: j, CRef: c, Chain: chain}
	var b strings.Builder
	add := func(seq string) Span {
		s := Span{b.Len(), b.Len() + len(seq)}
		b.WriteString(seq)
		return s
	}
	tig.UTR = add(Segments[u].Seq)
	tig.V = add(Segments[v].Seq)
	if d >= 0 {
		tig.D = add(Segments[d].Seq)
	}
	add(junction)
	tig.J = add(Segments[j].Seq)
	tig.C = add(Segments[c].Seq)
	tig.Seq = b.String()
	// The CDR3 opens at the last cysteine of V; every synthetic V ends with
	// C followed by three residues (CASS, CAVN).
	tig.CDR3Start = tig.V.End - 12
	tig.CDR3AA = cdr3
	tig.CDR3Seq = tig.Seq[tig.CDR3Start : tig.CDR3Start+3*len(cdr3)]
	return tig
}

// Quals returns a Phred+33 quality string for the contig with every base at
// quality q.
func (c Contig) Quals(q byte) string {
	return strings.Repeat(string([]byte{q + 33}), len(c.Seq))
}
