// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package ingest

import (
	"bytes"
	"sort"
	"strings"

	"github.com/10XGenomics/enclone-sub003/vdjann"
)

// MaxContigsPerBarcode is the largest group kept. Larger groups are likely
// doublets or debris and are dropped whole.
const MaxContigsPerBarcode = 4

// BarcodeGroup is the contigs of one barcode of one dataset.
type BarcodeGroup struct {
	DatasetIndex int
	Barcode      string
	Contigs      []Contig
}

// GroupByBarcode groups the contigs of all datasets by (dataset, barcode).
// A barcode with more than MaxContigsPerBarcode contigs is dropped, counting
// repeats. Within a kept group contigs are sorted by compareContigs and
// identical contigs are collapsed. The output does not depend on the order
// of the contigs in results.
func GroupByBarcode(results []DatasetResult) []BarcodeGroup {
	var all []*Contig
	for i := range results {
		for j := range results[i].Contigs {
			all = append(all, &results[i].Contigs[j])
		}
	}
	sort.Slice(all, func(i, j int) bool {
		a, b := all[i], all[j]
		if a.DatasetIndex != b.DatasetIndex {
			return a.DatasetIndex < b.DatasetIndex
		}
		return a.Barcode < b.Barcode
	})
	var groups []BarcodeGroup
	for i := 0; i < len(all); {
		j := i + 1
		for j < len(all) && all[j].DatasetIndex == all[i].DatasetIndex && all[j].Barcode == all[i].Barcode {
			j++
		}
		run := all[i:j]
		i = j
		if len(run) > MaxContigsPerBarcode {
			continue
		}
		sort.Slice(run, func(x, y int) bool { return compareContigs(run[x], run[y]) < 0 })
		g := BarcodeGroup{DatasetIndex: run[0].DatasetIndex, Barcode: run[0].Barcode}
		for k, c := range run {
			if k > 0 && compareContigs(run[k-1], c) == 0 {
				continue
			}
			g.Contigs = append(g.Contigs, *c)
		}
		groups = append(groups, g)
	}
	return groups
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case b:
		return -1
	}
	return 1
}

func cmpStrings(a, b []string) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := strings.Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return cmpInt(len(a), len(b))
}

func cmpSegments(a, b []vdjann.Segment) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		x, y := a[i], b[i]
		for _, c := range [...]int{
			cmpInt(x.QueryStart, y.QueryStart),
			cmpInt(x.Len, y.Len),
			cmpInt(x.RefID, y.RefID),
			cmpInt(x.RefStart, y.RefStart),
			cmpInt(x.Mismatches, y.Mismatches),
		} {
			if c != 0 {
				return c
			}
		}
	}
	return cmpInt(len(a), len(b))
}

// compareContigs is a total order on contigs: field by field, starting with
// the CDR3 DNA, then lengths, sequences and coordinates. Two contigs compare
// equal only if they are identical.
func compareContigs(a, b *Contig) int {
	if c := strings.Compare(a.CDR3DNA, b.CDR3DNA); c != 0 {
		return c
	}
	if c := cmpInt(len(a.Seq), len(b.Seq)); c != 0 {
		return c
	}
	if c := bytes.Compare(a.Seq, b.Seq); c != 0 {
		return c
	}
	for _, c := range [...]int{
		cmpInt(a.VStart, b.VStart),
		cmpInt(a.VStop, b.VStop),
		cmpInt(a.VStopRef, b.VStopRef),
		cmpInt(a.DStart, b.DStart),
		cmpInt(a.JStart, b.JStart),
		cmpInt(a.JStartRef, b.JStartRef),
		cmpInt(a.JStop, b.JStop),
		cmpInt(a.CStart, b.CStart),
		bytes.Compare(a.FullSeq, b.FullSeq),
		cmpInt(a.URef, b.URef),
		cmpInt(a.VRef, b.VRef),
		cmpInt(a.DRef, b.DRef),
		cmpInt(a.JRef, b.JRef),
		cmpInt(a.CRef, b.CRef),
		strings.Compare(a.CDR3AA, b.CDR3AA),
		cmpInt(a.CDR3Start, b.CDR3Start),
		bytes.Compare(a.Quals, b.Quals),
		bytes.Compare(a.FullQuals, b.FullQuals),
		strings.Compare(a.Barcode, b.Barcode),
		strings.Compare(a.Name, b.Name),
		cmpBool(a.Left, b.Left),
		cmpInt(a.DatasetIndex, b.DatasetIndex),
		cmpInt(a.OriginIndex, b.OriginIndex),
		cmpInt(a.DonorIndex, b.DonorIndex),
		cmpInt(a.TagIndex, b.TagIndex),
		cmpInt(a.UMICount, b.UMICount),
		cmpInt(a.ReadCount, b.ReadCount),
		strings.Compare(a.ChainType, b.ChainType),
		cmpSegments(a.VAnn, b.VAnn),
		cmpStrings(a.ValidatedUMIs, b.ValidatedUMIs),
		cmpStrings(a.NonValidatedUMIs, b.NonValidatedUMIs),
		cmpStrings(a.InvalidatedUMIs, b.InvalidatedUMIs),
		cmpInt(a.FracReadsUsed, b.FracReadsUsed),
	} {
		if c != 0 {
			return c
		}
	}
	return 0
}
