// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package ingest

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/10XGenomics/enclone-sub003/encoding/contigjson"
	"github.com/10XGenomics/enclone-sub003/origin"
	"github.com/10XGenomics/enclone-sub003/vdjann"
	"github.com/10XGenomics/enclone-sub003/vdjref"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/traverse"
	"v.io/x/lib/vlog"
)

const (
	// unknownVersion stands for datasets that do not record the pipeline
	// version; only old pipelines omit it.
	unknownVersion = "≤3.1"
)

// CompatibleVersions are two distinct pipeline versions whose output may be
// combined.
var CompatibleVersions = [2]string{"4.0", "4009.52.0-82-g2244c685a"}

// Dataset is one dataset to ingest, with its records already in memory.
type Dataset struct {
	// Name identifies the dataset in messages, usually its path.
	Name string
	Meta origin.Dataset
	// Records are the raw contig objects of the annotation file.
	Records []json.RawMessage
}

// DatasetResult is what is kept of one dataset.
type DatasetResult struct {
	// Contigs are the kept contigs, in record order.
	Contigs []Contig
	// VDJCells and GEXCells are the sorted, distinct cell barcodes.
	VDJCells []string
	GEXCells []string
	// GEXSpecified is set when any record carried a GEX cell flag.
	GEXSpecified bool
	// Version is the first pipeline version recorded by a kept record, or "".
	Version string
}

// Shared holds the read-only inputs of an ingestion run.
type Shared struct {
	Ref *vdjref.RefData
	// Aligner is used when Opts asks for reannotation.
	Aligner  *vdjann.Aligner
	Interner *origin.Interner
	Opts     Opts
}

// NewShared prepares the shared inputs for the given datasets. The aligner
// is built only if reannotation is requested.
func NewShared(ref *vdjref.RefData, datasets []Dataset, opts Opts) *Shared {
	meta := make([]*origin.Dataset, len(datasets))
	for i := range datasets {
		meta[i] = &datasets[i].Meta
	}
	s := &Shared{Ref: ref, Interner: origin.NewInterner(meta), Opts: opts}
	if opts.realign() {
		s.Aligner = vdjann.NewAligner(ref, vdjann.DefaultOpts)
	}
	return s
}

// loader ingests one dataset.
type loader struct {
	ds       *Dataset
	index    int
	shared   *Shared
	opts     *Opts
	once     *OnceFlag
	resolver resolver
}

func (l *loader) process(i int, s *slot) error {
	c, err := l.decode(i, l.ds.Records[i], s)
	if c == nil || err != nil {
		return err
	}
	w := newWork(c)
	ok, err := l.resolver.resolve(l, w)
	if !ok || err != nil {
		return err
	}
	if _, trusted := l.resolver.(annotationTrust); trusted {
		if ok, err = l.recomputeCDR3(w); !ok || err != nil {
			return err
		}
	}
	if ok, err = l.checkCDR3(w); !ok || err != nil {
		return err
	}
	s.contig, err = l.finish(w)
	return err
}

// LoadDataset ingests the records of one dataset, in parallel. The result
// does not depend on scheduling: each record writes only its own slot and
// the slots are merged in record order. A load yields at most one error:
// the first record to fail reports it and every other failing record is
// dropped silently. All records are processed even after a failure.
func LoadDataset(ds *Dataset, index int, shared *Shared) (DatasetResult, error) {
	return loadDataset(ds, index, shared, shared.Opts.parallelism())
}

func loadDataset(ds *Dataset, index int, shared *Shared, parallelism int) (DatasetResult, error) {
	l := &loader{
		ds:     ds,
		index:  index,
		shared: shared,
		opts:   &shared.Opts,
		once:   new(OnceFlag),
	}
	if l.opts.realign() {
		a := shared.Aligner
		if a == nil {
			a = vdjann.NewAligner(shared.Ref, vdjann.DefaultOpts)
		}
		l.resolver = realigner{a}
	} else {
		l.resolver = annotationTrust{shared.Ref}
	}

	slots := make([]slot, len(ds.Records))
	_ = traverse.Limit(parallelism).Each(len(slots), func(i int) error {
		if err := l.process(i, &slots[i]); err != nil {
			if err = l.once.Report(err); err != errSilent {
				slots[i].err = err
			}
		}
		return nil
	})

	var (
		r         DatasetResult
		vdj, gex  []string
		nFiltered int
	)
	for i := range slots {
		s := &slots[i]
		if s.err != nil {
			return DatasetResult{}, s.err
		}
		if r.Version == "" {
			r.Version = s.version
		}
		if s.vdjCell {
			vdj = append(vdj, s.barcode)
		}
		if s.gexSeen {
			r.GEXSpecified = true
			if s.gexCell {
				gex = append(gex, s.barcode)
			}
		}
		if s.contig == nil {
			nFiltered++
			continue
		}
		r.Contigs = append(r.Contigs, *s.contig)
	}
	r.VDJCells = sortUnique(vdj)
	r.GEXCells = sortUnique(gex)
	vlog.VI(1).Infof("%s: %d records, %d contigs kept, %d dropped, %d VDJ cells, %d GEX cells",
		ds.Name, len(slots), len(r.Contigs), nFiltered, len(r.VDJCells), len(r.GEXCells))
	return r, nil
}

// Result is the outcome of an ingestion run.
type Result struct {
	Datasets []DatasetResult
	// Groups are the kept barcode groups, ordered by dataset then barcode.
	Groups []BarcodeGroup
}

// Load ingests all datasets, checks that their pipeline versions may be
// combined, and groups the contigs by barcode. Datasets are processed
// concurrently; the first error in dataset order is returned.
func Load(datasets []Dataset, shared *Shared) (*Result, error) {
	var (
		results = make([]DatasetResult, len(datasets))
		errs    = make([]error, len(datasets))
	)
	outer, inner := splitParallelism(shared.Opts.parallelism(), len(datasets))
	_ = traverse.Limit(outer).Each(len(datasets), func(i int) error {
		results[i], errs[i] = loadDataset(&datasets[i], i, shared, inner)
		return nil
	})
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	if err := checkVersions(results, &shared.Opts); err != nil {
		return nil, err
	}
	return &Result{Datasets: results, Groups: GroupByBarcode(results)}, nil
}

// checkVersions fails unless all datasets were produced by the same
// pipeline version, or by the two CompatibleVersions.
// splitParallelism divides a worker budget between n datasets loaded
// concurrently and the records of each, so that at most p workers run.
func splitParallelism(p, n int) (outer, inner int) {
	outer = p
	if n < outer {
		outer = n
	}
	if outer < 1 {
		outer = 1
	}
	inner = p / outer
	if inner < 1 {
		inner = 1
	}
	return outer, inner
}

func checkVersions(results []DatasetResult, opts *Opts) error {
	if opts.Internal {
		return nil
	}
	vs := make([]string, len(results))
	for i, r := range results {
		vs[i] = r.Version
		if vs[i] == "" {
			vs[i] = unknownVersion
		}
	}
	vs = sortUnique(vs)
	if len(vs) <= 1 || (len(vs) == 2 && vs[0] == CompatibleVersions[0] && vs[1] == CompatibleVersions[1]) {
		return nil
	}
	return versionMismatch(vs)
}

func sortUnique(s []string) []string {
	if len(s) == 0 {
		return s
	}
	sort.Strings(s)
	n := 1
	for i := 1; i < len(s); i++ {
		if s[i] != s[n-1] {
			s[n] = s[i]
			n++
		}
	}
	return s[:n]
}

// ReadDataset locates and reads the annotation file of a dataset. path is
// either the annotation file or a pipeline output directory.
func ReadDataset(ctx context.Context, path string, meta origin.Dataset, opts Opts) (Dataset, error) {
	p, err := contigjson.Resolve(ctx, path, opts.CellrangerMode)
	if err != nil {
		return Dataset{}, err
	}
	in, err := contigjson.Open(ctx, p)
	if err != nil {
		return Dataset{}, err
	}
	records, err := contigjson.ReadAll(in)
	if cerr := in.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return Dataset{}, errors.E(err, "reading", p)
	}
	vlog.VI(1).Infof("%s: read %d records", p, len(records))
	return Dataset{Name: path, Meta: meta, Records: records}, nil
}

// ReadDatasets reads the datasets of a manifest concurrently.
func ReadDatasets(ctx context.Context, entries []origin.Entry, opts Opts) ([]Dataset, error) {
	datasets := make([]Dataset, len(entries))
	err := traverse.Limit(opts.parallelism()).Each(len(entries), func(i int) (err error) {
		datasets[i], err = ReadDataset(ctx, entries[i].Path, entries[i].Meta, opts)
		return
	})
	return datasets, err
}
