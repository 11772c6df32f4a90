// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/10XGenomics/enclone-sub003/encoding/contigjson"
	"github.com/10XGenomics/enclone-sub003/origin"
	"github.com/10XGenomics/enclone-sub003/vdjann"
	"github.com/10XGenomics/enclone-sub003/vdjref"
	"github.com/10XGenomics/enclone-sub003/vdjref/vdjreftest"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	shutdown := grail.Init()
	defer shutdown()
	os.Exit(m.Run())
}

type rec map[string]interface{}

// record renders a synthetic contig as a pipeline annotation object, with
// annotations and CDR3 on full contig coordinates.
func record(tig vdjreftest.Contig, barcode, name string) rec {
	var anns []rec
	add := func(ref int, s vdjreftest.Span) {
		seg := vdjreftest.Segments[ref]
		n := s.End - s.Start
		anns = append(anns, rec{
			"feature": rec{
				"region_type": seg.Region,
				"feature_id":  seg.FeatureID,
				"gene_name":   seg.Gene,
				"chain":       seg.Chain,
			},
			"annotation_match_start": 0,
			"annotation_match_end":   n,
			"annotation_length":      len(seg.Seq),
			"contig_match_start":     s.Start,
			"contig_match_end":       s.End,
			"cigar":                  fmt.Sprintf("%dM", n),
		})
	}
	add(tig.UTRRef, tig.UTR)
	add(tig.VRef, tig.V)
	if tig.DRef >= 0 {
		add(tig.DRef, tig.D)
	}
	add(tig.JRef, tig.J)
	add(tig.CRef, tig.C)
	return rec{
		"barcode":         barcode,
		"contig_name":     name,
		"is_cell":         true,
		"productive":      true,
		"high_confidence": true,
		"sequence":        tig.Seq,
		"quals":           tig.Quals(30),
		"umi_count":       5,
		"read_count":      120,
		"cdr3":            tig.CDR3AA,
		"cdr3_seq":        tig.CDR3Seq,
		"cdr3_start":      tig.CDR3Start,
		"annotations":     anns,
	}
}

// annotation returns the annotation of r for region.
func annotation(r rec, region string) rec {
	for _, a := range r["annotations"].([]rec) {
		if a["feature"].(rec)["region_type"] == region {
			return a
		}
	}
	panic(region)
}

func dataset(name string, recs ...interface{}) Dataset {
	ds := Dataset{Name: name}
	for _, r := range recs {
		var b []byte
		switch r := r.(type) {
		case string:
			b = []byte(r)
		default:
			var err error
			if b, err = json.Marshal(r); err != nil {
				panic(err)
			}
		}
		ds.Records = append(ds.Records, b)
	}
	return ds
}

func loadOne(t *testing.T, ds Dataset, opts Opts) (DatasetResult, error) {
	shared := NewShared(vdjreftest.Reference(), []Dataset{ds}, opts)
	return LoadDataset(&ds, 0, shared)
}

func checkInvariants(t *testing.T, c Contig) {
	assert.Equal(t, len(c.FullSeq), len(c.FullQuals), c.Name)
	assert.Equal(t, len(c.Seq), len(c.Quals), c.Name)
	assert.Equal(t, c.JStop-c.VStart, len(c.Seq), c.Name)
	assert.True(t, c.VStart >= 0 && c.VStart <= c.JStop && c.JStop <= len(c.FullSeq), c.Name)
	assert.True(t, c.CDR3Start >= 0 && c.CDR3Start+3*len(c.CDR3AA) <= len(c.Seq), c.Name)
	assert.Equal(t, 3*len(c.CDR3AA), len(c.CDR3DNA), c.Name)
	assert.False(t, strings.Contains(c.CDR3AA, "*"), c.Name)
}

func TestLoadAnnotated(t *testing.T) {
	trb, tra := vdjreftest.TRB(), vdjreftest.TRA()
	ds := dataset("d1", record(trb, "AAAC-1", "AAAC-1_contig_1"), record(tra, "AAAC-1", "AAAC-1_contig_2"))
	r, err := loadOne(t, ds, DefaultOpts)
	require.NoError(t, err)
	require.Len(t, r.Contigs, 2)
	expect.EQ(t, r.VDJCells, []string{"AAAC-1"})
	expect.EQ(t, len(r.GEXCells), 0)
	assert.False(t, r.GEXSpecified)

	b := r.Contigs[0]
	checkInvariants(t, b)
	assert.Equal(t, "AAAC-1_contig_1", b.Name)
	assert.Equal(t, trb.V.Start, b.VStart)
	assert.Equal(t, trb.V.End, b.VStop)
	assert.Equal(t, trb.V.End-trb.V.Start, b.VStopRef)
	assert.Equal(t, trb.D.Start, b.DStart)
	assert.Equal(t, trb.J.Start, b.JStart)
	assert.Equal(t, 0, b.JStartRef)
	assert.Equal(t, trb.J.End, b.JStop)
	assert.Equal(t, trb.C.Start, b.CStart)
	assert.Equal(t, []int{trb.UTRRef, trb.VRef, trb.DRef, trb.JRef, trb.CRef}, []int{b.URef, b.VRef, b.DRef, b.JRef, b.CRef})
	assert.Equal(t, "TRB", b.ChainType)
	assert.True(t, b.Left)
	assert.Equal(t, trb.CDR3AA, b.CDR3AA)
	assert.Equal(t, trb.CDR3Seq, b.CDR3DNA)
	assert.Equal(t, trb.CDR3Start-trb.V.Start, b.CDR3Start)
	assert.Equal(t, trb.Seq[trb.V.Start:trb.J.End], string(b.Seq))
	assert.Equal(t, []vdjann.Segment{{QueryStart: 0, Len: trb.V.End - trb.V.Start, RefID: trb.VRef}}, b.VAnn)
	assert.Equal(t, byte(30), b.Quals[0])
	assert.Equal(t, 5, b.UMICount)
	assert.Equal(t, 120, b.ReadCount)
	assert.Equal(t, []int{origin.NoIndex, origin.NoIndex, origin.NoIndex}, []int{b.OriginIndex, b.DonorIndex, b.TagIndex})
	assert.Equal(t, None, b.FracReadsUsed)
	assert.Nil(t, b.ValidatedUMIs)

	a := r.Contigs[1]
	checkInvariants(t, a)
	assert.Equal(t, "TRA", a.ChainType)
	assert.False(t, a.Left)
	assert.Equal(t, None, a.DRef)
	assert.Equal(t, None, a.DStart)
	assert.Equal(t, tra.J.End, a.JStop)
	assert.Equal(t, tra.CDR3AA, a.CDR3AA)
	assert.Equal(t, tra.CDR3Start-tra.V.Start, a.CDR3Start)
}

func stripAnnotations(r rec) rec {
	out := rec{}
	for k, v := range r {
		switch k {
		case "annotations", "cdr3", "cdr3_seq", "cdr3_start":
		default:
			out[k] = v
		}
	}
	return out
}

func TestLoadRealigned(t *testing.T) {
	trb, tra := vdjreftest.TRB(), vdjreftest.TRA()
	recs := []rec{record(trb, "AAAC-1", "c1"), record(tra, "AAAC-1", "c2")}
	annotated, err := loadOne(t, dataset("d1", recs[0], recs[1]), DefaultOpts)
	require.NoError(t, err)

	opts := DefaultOpts
	opts.Reannotate = true
	realigned, err := loadOne(t, dataset("d1", stripAnnotations(recs[0]), stripAnnotations(recs[1])), opts)
	require.NoError(t, err)
	require.Len(t, realigned.Contigs, 2)
	assert.Equal(t, annotated.Contigs[0], realigned.Contigs[0])

	a := realigned.Contigs[1]
	checkInvariants(t, a)
	assert.Equal(t, tra.V.Start, a.VStart)
	assert.Equal(t, tra.J.End, a.JStop)
	assert.Equal(t, tra.CDR3AA, a.CDR3AA)
	assert.Equal(t, tra.CDR3Start-tra.V.Start, a.CDR3Start)
	assert.Equal(t, tra.VRef, a.VRef)
	assert.Equal(t, tra.JRef, a.JRef)
	assert.Equal(t, None, a.DRef)
}

func TestFilters(t *testing.T) {
	tig := vdjreftest.TRB()
	mk := func(bc string, set map[string]interface{}) rec {
		r := record(tig, bc, bc+"_contig_1")
		for k, v := range set {
			r[k] = v
		}
		return r
	}
	ds := dataset("d1",
		mk("CELL-1", nil),
		mk("ASM-1", rec{"is_cell": false, "is_asm_cell": true}),
		mk("NOTCELL-1", rec{"is_cell": false}),
		mk("NONPROD-1", rec{"productive": false}),
		mk("LOWCONF-1", rec{"high_confidence": false}),
	)
	tests := []struct {
		name string
		opts Opts
		want []string
	}{
		{"default", DefaultOpts, []string{"ASM-1", "CELL-1"}},
		{"include non cells", Opts{IncludeNonCells: true}, []string{"ASM-1", "CELL-1", "LOWCONF-1", "NOTCELL-1"}},
		{"reproduce", Opts{Reproduce: true}, []string{"ASM-1", "CELL-1", "LOWCONF-1", "NONPROD-1"}},
	}
	for _, tt := range tests {
		r, err := loadOne(t, ds, tt.opts)
		require.NoError(t, err, tt.name)
		var got []string
		for _, c := range r.Contigs {
			got = append(got, c.Barcode)
			checkInvariants(t, c)
		}
		assert.ElementsMatch(t, tt.want, got, tt.name)
		assert.Equal(t, []string{"ASM-1", "CELL-1", "LOWCONF-1", "NONPROD-1"}, r.VDJCells, tt.name)
	}
}

func TestGEXCells(t *testing.T) {
	tig := vdjreftest.TRB()
	gex, notGEX := record(tig, "A-1", "a"), record(tig, "B-1", "b")
	gex["is_gex_cell"] = true
	notGEX["is_gex_cell"] = false
	notCell := record(tig, "C-1", "c")
	notCell["is_cell"] = false
	notCell["is_gex_cell"] = true

	r, err := loadOne(t, dataset("d1", gex, notGEX, notCell), DefaultOpts)
	require.NoError(t, err)
	assert.True(t, r.GEXSpecified)
	// GEX calls are collected even for barcodes that are not VDJ cells.
	assert.Equal(t, []string{"A-1", "C-1"}, r.GEXCells)
	assert.Equal(t, []string{"A-1", "B-1"}, r.VDJCells)

	r, err = loadOne(t, dataset("d2", record(tig, "A-1", "a")), DefaultOpts)
	require.NoError(t, err)
	assert.False(t, r.GEXSpecified)
	assert.Empty(t, r.GEXCells)
}

func TestMetadata(t *testing.T) {
	r := record(vdjreftest.TRB(), "A-1", "a")
	r["fraction_of_reads_for_this_barcode_provided_as_input_to_assembly"] = 0.25
	r["validated_umis"] = []string{"AAAA", "CCCC"}
	r["non_validated_umis"] = []string{}
	r["version"] = "4.0"
	// Filtered records do not contribute a version.
	nonProd := record(vdjreftest.TRB(), "B-1", "b")
	nonProd["productive"] = false
	nonProd["version"] = "3.0"
	ds := dataset("d1", r, nonProd)
	ds.Meta = origin.Dataset{OriginID: "blood", DonorID: "alice", TagForBC: map[string]string{"A-1": "t1"}}
	res, err := loadOne(t, ds, DefaultOpts)
	require.NoError(t, err)
	require.Len(t, res.Contigs, 1)
	c := res.Contigs[0]
	assert.Equal(t, "4.0", res.Version)
	assert.Equal(t, 250000, c.FracReadsUsed)
	assert.Equal(t, []string{"AAAA", "CCCC"}, c.ValidatedUMIs)
	assert.Equal(t, []string{}, c.NonValidatedUMIs)
	assert.Nil(t, c.InvalidatedUMIs)
	assert.Equal(t, []int{0, 0, 0}, []int{c.OriginIndex, c.DonorIndex, c.TagIndex})
}

func TestStopCodonInCDR3(t *testing.T) {
	tig := vdjreftest.TRB()
	seq := []byte(tig.Seq)
	copy(seq[tig.CDR3Start+12:], vdjreftest.Encode("*"))
	tig.Seq = string(seq)
	r := record(tig, "A-1", "a")
	for _, opts := range []Opts{DefaultOpts, {Reannotate: true}} {
		res, err := loadOne(t, dataset("d1", r), opts)
		require.NoError(t, err)
		assert.Empty(t, res.Contigs)
		assert.Equal(t, []string{"A-1"}, res.VDJCells)
	}
}

func TestRecomputedCDR3(t *testing.T) {
	tig := vdjreftest.TRB()
	r := record(tig, "A-1", "a")
	// An older CDR3 definition, one codon shorter.
	r["cdr3"] = tig.CDR3AA[:len(tig.CDR3AA)-1]
	r["cdr3_seq"] = tig.CDR3Seq[:len(tig.CDR3Seq)-3]
	res, err := loadOne(t, dataset("d1", r), DefaultOpts)
	require.NoError(t, err)
	require.Len(t, res.Contigs, 1)
	c := res.Contigs[0]
	assert.Equal(t, tig.CDR3AA, c.CDR3AA)
	assert.Equal(t, tig.CDR3Seq, c.CDR3DNA)
	assert.Equal(t, tig.CDR3Start-tig.V.Start, c.CDR3Start)
}

func TestInsertionInV(t *testing.T) {
	tig := vdjreftest.TRB()
	at := tig.V.Start + 147
	ins := vdjreftest.Encode("A")
	tig.Seq = tig.Seq[:at] + ins + tig.Seq[at:]
	shift := func(s vdjreftest.Span) vdjreftest.Span { return vdjreftest.Span{Start: s.Start + 3, End: s.End + 3} }
	tig.D, tig.J, tig.C = shift(tig.D), shift(tig.J), shift(tig.C)
	tig.CDR3Start += 3
	r := record(tig, "A-1", "a")
	v := annotation(r, contigjson.RegionV)
	v["contig_match_end"] = tig.V.End + 3
	v["cigar"] = "147M3I195M"

	res, err := loadOne(t, dataset("d1", r), DefaultOpts)
	require.NoError(t, err)
	require.Len(t, res.Contigs, 1)
	c := res.Contigs[0]
	assert.Equal(t, []vdjann.Segment{
		{QueryStart: 0, Len: 147, RefID: tig.VRef, RefStart: 0},
		{QueryStart: 150, Len: 195, RefID: tig.VRef, RefStart: 147},
	}, c.VAnn)
	// The CDR3 start is corrected for the inserted bases.
	assert.Equal(t, tig.CDR3Start-tig.V.Start-3, c.CDR3Start)
	assert.Equal(t, tig.CDR3AA, c.CDR3AA)
}

func TestClippedJ(t *testing.T) {
	tig := vdjreftest.TRB()
	r := record(tig, "A-1", "a")
	j := annotation(r, contigjson.RegionJ)
	delete(j, "annotation_length")
	j["contig_match_end"] = tig.J.Start + 6
	j["annotation_match_end"] = 6
	res, err := loadOne(t, dataset("d1", r), DefaultOpts)
	require.NoError(t, err)
	// The CDR3 runs past the end of J.
	assert.Empty(t, res.Contigs)
}

func TestPartialJ(t *testing.T) {
	tig := vdjreftest.TRB()
	r := record(tig, "A-1", "a")
	j := annotation(r, contigjson.RegionJ)
	j["annotation_match_end"] = 40
	_, err := loadOne(t, dataset("d1", r), DefaultOpts)
	require.Error(t, err)
	assert.True(t, errors.Is(errors.Precondition, err), "%v", err)
}

func TestReferenceInconsistency(t *testing.T) {
	var recs []interface{}
	for i := 0; i < 20; i++ {
		r := record(vdjreftest.TRB(), fmt.Sprintf("B%d-1", i), fmt.Sprintf("c%d", i))
		annotation(r, contigjson.RegionV)["feature"].(rec)["gene_name"] = "TRBV9"
		recs = append(recs, r)
	}
	_, err := loadOne(t, dataset("d1", recs...), DefaultOpts)
	require.Error(t, err)
	assert.True(t, errors.Is(errors.Integrity, err), "%v", err)
	assert.Contains(t, err.Error(), "TRBV9")

	// The chain comes from the record, or from the reference if the record
	// does not name one.
	annotation(recs[0].(rec), contigjson.RegionV)["feature"].(rec)["chain"] = "TRD"
	annotation(recs[1].(rec), contigjson.RegionV)["feature"].(rec)["chain"] = ""
	res, err := loadOne(t, dataset("d1", recs...), Opts{AcceptInconsistent: true})
	require.NoError(t, err)
	require.Len(t, res.Contigs, 20)
	assert.Equal(t, []string{"TRD", "TRB", "TRB"},
		[]string{res.Contigs[0].ChainType, res.Contigs[1].ChainType, res.Contigs[2].ChainType})
}

func TestMalformed(t *testing.T) {
	tig := vdjreftest.TRB()
	badQuals := record(tig, "A-1", "a")
	badQuals["quals"] = tig.Quals(30)[1:]
	noCDR3 := record(tig, "B-1", "b")
	delete(noCDR3, "cdr3_start")

	tests := []struct {
		name string
		recs []interface{}
		want string
	}{
		{"bad json", []interface{}{record(tig, "C-1", "c"), `{"barcode": 5}`, record(tig, "D-1", "d")}, "contig #1: "},
		{"quals", []interface{}{badQuals}, "contig a"},
		{"no cdr3", []interface{}{noCDR3}, "contig b"},
	}
	for _, tt := range tests {
		_, err := loadOne(t, dataset("d1", tt.recs...), DefaultOpts)
		require.Error(t, err, tt.name)
		assert.True(t, errors.Is(errors.Invalid, err), "%s: %v", tt.name, err)
		assert.Contains(t, err.Error(), tt.want, tt.name)
	}
}

func TestParallelismDeterminism(t *testing.T) {
	var recs []interface{}
	for i := 0; i < 50; i++ {
		tig := vdjreftest.TRB()
		if i%2 == 1 {
			tig = vdjreftest.TRA()
		}
		recs = append(recs, record(tig, fmt.Sprintf("B%d-1", i/3), fmt.Sprintf("c%d", i)))
	}
	ds := dataset("d1", recs...)
	var results []DatasetResult
	for _, p := range []int{1, 3, 16} {
		r, err := loadOne(t, ds, Opts{Parallelism: p})
		require.NoError(t, err)
		results = append(results, r)
	}
	assert.Len(t, results[0].Contigs, 50)
	assert.Equal(t, results[0], results[1])
	assert.Equal(t, results[0], results[2])
}

// errorLog counts the messages logged at log.Error.
type errorLog struct {
	mu   sync.Mutex
	msgs []string
}

func (*errorLog) Level() log.Level { return log.Debug }

func (e *errorLog) Output(calldepth int, level log.Level, s string) error {
	if level == log.Error {
		e.mu.Lock()
		e.msgs = append(e.msgs, s)
		e.mu.Unlock()
	}
	return nil
}

func TestOneDiagnosticPerLoad(t *testing.T) {
	recs := []interface{}{`{"barcode": 5}`}
	for i := 0; i < 20; i++ {
		r := record(vdjreftest.TRB(), fmt.Sprintf("B%d-1", i), fmt.Sprintf("c%d", i))
		annotation(r, contigjson.RegionV)["feature"].(rec)["gene_name"] = "TRBV9"
		recs = append(recs, r)
	}
	var el errorLog
	old := log.SetOutputter(&el)
	defer log.SetOutputter(old)
	for _, parallelism := range []int{1, 4, 16} {
		_, err := loadOne(t, dataset("d1", recs...), Opts{Parallelism: parallelism})
		require.Error(t, err)
		assert.True(t, errors.Is(errors.Invalid, err) || errors.Is(errors.Integrity, err), "%v", err)
		assert.NotContains(t, err.Error(), "::")
	}
	// The returned error is the only diagnostic.
	assert.Empty(t, el.msgs)
}

func TestSplitParallelism(t *testing.T) {
	tests := []struct {
		p, n, outer, inner int
	}{
		{8, 1, 1, 8},
		{8, 2, 2, 4},
		{8, 3, 3, 2},
		{8, 20, 8, 1},
		{1, 5, 1, 1},
		{4, 0, 1, 4},
	}
	for _, tt := range tests {
		outer, inner := splitParallelism(tt.p, tt.n)
		assert.Equal(t, []int{tt.outer, tt.inner}, []int{outer, inner}, "p=%d n=%d", tt.p, tt.n)
		assert.True(t, outer*inner <= tt.p)
	}
}

func TestOnceFlag(t *testing.T) {
	var (
		f        OnceFlag
		wg       sync.WaitGroup
		mu       sync.Mutex
		reported int
	)
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := f.Report(errors.E(errors.Integrity, fmt.Sprintf("worker %d", i)))
			if err != errSilent {
				mu.Lock()
				reported++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, reported)
	assert.True(t, f.Reported())
}

func TestCheckVersions(t *testing.T) {
	tests := []struct {
		versions []string
		internal bool
		ok       bool
	}{
		{[]string{"4.0", "4.0"}, false, true},
		{[]string{"", ""}, false, true},
		{[]string{"4.0", "4009.52.0-82-g2244c685a"}, false, true},
		{[]string{"4009.52.0-82-g2244c685a", "4.0", "4.0"}, false, true},
		{[]string{"4.0", "5.0"}, false, false},
		{[]string{"", "4.0"}, false, false},
		{[]string{"3.1", "4.0", "4009.52.0-82-g2244c685a"}, false, false},
		{[]string{"4.0", "5.0"}, true, true},
	}
	for _, tt := range tests {
		var results []DatasetResult
		for _, v := range tt.versions {
			results = append(results, DatasetResult{Version: v})
		}
		err := checkVersions(results, &Opts{Internal: tt.internal})
		if tt.ok {
			assert.NoError(t, err, "%v", tt.versions)
		} else {
			require.Error(t, err, "%v", tt.versions)
			assert.True(t, errors.Is(errors.NotSupported, err))
		}
	}
}

func TestLoad(t *testing.T) {
	trb, tra := vdjreftest.TRB(), vdjreftest.TRA()
	v1 := record(trb, "A-1", "a1")
	v1["version"] = "4.0"
	d1 := dataset("d1", v1, record(tra, "A-1", "a2"), record(trb, "B-1", "b1"))
	v2 := record(trb, "A-1", "a1")
	v2["version"] = "4009.52.0-82-g2244c685a"
	d2 := dataset("d2", v2)
	d2.Meta = origin.Dataset{OriginID: "s2"}
	datasets := []Dataset{d1, d2}

	res, err := Load(datasets, NewShared(vdjreftest.Reference(), datasets, DefaultOpts))
	require.NoError(t, err)
	require.Len(t, res.Datasets, 2)
	require.Len(t, res.Groups, 3)
	assert.Equal(t, []string{"A-1", "B-1", "A-1"},
		[]string{res.Groups[0].Barcode, res.Groups[1].Barcode, res.Groups[2].Barcode})
	assert.Equal(t, []int{0, 0, 1},
		[]int{res.Groups[0].DatasetIndex, res.Groups[1].DatasetIndex, res.Groups[2].DatasetIndex})
	assert.Len(t, res.Groups[0].Contigs, 2)
	assert.Equal(t, 1, res.Groups[2].Contigs[0].DatasetIndex)
	assert.Equal(t, 0, res.Groups[2].Contigs[0].OriginIndex)

	v2["version"] = "5.0"
	datasets[1] = dataset("d2", v2)
	_, err = Load(datasets, NewShared(vdjreftest.Reference(), datasets, DefaultOpts))
	require.Error(t, err)
	assert.True(t, errors.Is(errors.NotSupported, err))
}

func TestRefTestFixture(t *testing.T) {
	ref := vdjreftest.Reference()
	for i, s := range vdjreftest.Segments {
		assert.Equal(t, s.Gene, ref.Name[i])
		assert.Equal(t, i, ref.FeatureIndex[s.FeatureID])
	}
	assert.True(t, ref.Is(vdjreftest.TRB().VRef, vdjref.V))
}
