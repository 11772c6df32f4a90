// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/10XGenomics/enclone-sub003/encoding/fastq"
	"github.com/10XGenomics/enclone-sub003/ingest"
	"github.com/10XGenomics/enclone-sub003/origin"
	"github.com/10XGenomics/enclone-sub003/vdjref"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/base/vcontext"
	"github.com/klauspost/compress/gzip"
)

type ingestFlags struct {
	ref      *string
	manifest *string
	out      *string
	dump     *string
	fastq    *string
}

func datasetEntries(ctx context.Context, manifest string, paths []string) ([]origin.Entry, error) {
	if manifest != "" {
		return origin.ReadManifest(ctx, manifest)
	}
	entries := make([]origin.Entry, len(paths))
	for i, p := range paths {
		entries[i].Path = p
	}
	return entries, nil
}

func runIngest(out io.Writer, flags ingestFlags, opts ingest.Opts, paths []string) error {
	ctx := vcontext.Background()
	ref, err := vdjref.Load(ctx, *flags.ref)
	if err != nil {
		return err
	}
	log.Printf("read %d reference segments from %s", ref.Len(), *flags.ref)
	entries, err := datasetEntries(ctx, *flags.manifest, paths)
	if err != nil {
		return err
	}
	datasets, err := ingest.ReadDatasets(ctx, entries, opts)
	if err != nil {
		return err
	}
	shared := ingest.NewShared(ref, datasets, opts)
	res, err := ingest.Load(datasets, shared)
	if err != nil {
		return err
	}
	for i, r := range res.Datasets {
		version := r.Version
		if version == "" {
			version = "unknown"
		}
		fmt.Fprintf(out, "%s\tversion:%s contigs:%d vdj_cells:%d gex_cells:%d\n",
			datasets[i].Name, version, len(r.Contigs), len(r.VDJCells), len(r.GEXCells))
	}
	fmt.Fprintln(out, ingest.ComputeDigest(res.Groups))
	if *flags.dump != "" {
		if err := dumpContigs(ctx, *flags.dump, datasets, res.Groups); err != nil {
			return err
		}
	}
	if *flags.fastq != "" {
		if err := writeFASTQ(ctx, *flags.fastq, datasets, res.Groups); err != nil {
			return err
		}
	}
	if *flags.out != "" {
		info := ingest.NewRunInfo(datasets, shared, res)
		if err := ingest.WriteGroups(ctx, *flags.out, info, res.Groups); err != nil {
			return err
		}
		log.Printf("wrote %d barcode groups to %s", len(res.Groups), *flags.out)
	}
	return nil
}

// dumpContigs writes one TSV line per contig of groups.
func dumpContigs(ctx context.Context, path string, datasets []ingest.Dataset, groups []ingest.BarcodeGroup) (err error) {
	dst, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create", path)
	}
	defer func() {
		if e := dst.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	w := tsv.NewWriter(dst.Writer(ctx))
	w.WriteString("#dataset\tbarcode\tcontig\tchain\tv_ref\tj_ref\tcdr3_aa\tcdr3_start\tv_start\tj_stop\tumis\treads")
	if err = w.EndLine(); err != nil {
		return
	}
	for _, g := range groups {
		for _, c := range g.Contigs {
			w.WriteString(datasets[g.DatasetIndex].Name)
			w.WriteString(c.Barcode)
			w.WriteString(c.Name)
			w.WriteString(c.ChainType)
			w.WriteString(strconv.Itoa(c.VRef))
			w.WriteString(strconv.Itoa(c.JRef))
			w.WriteString(c.CDR3AA)
			w.WriteUint32(uint32(c.CDR3Start))
			w.WriteUint32(uint32(c.VStart))
			w.WriteUint32(uint32(c.JStop))
			w.WriteUint32(uint32(c.UMICount))
			w.WriteUint32(uint32(c.ReadCount))
			if err = w.EndLine(); err != nil {
				return
			}
		}
	}
	return w.Flush()
}

// writeFASTQ writes the V..J part of every contig of groups as a FASTQ
// record. The output is gzipped if path ends in ".gz".
func writeFASTQ(ctx context.Context, path string, datasets []ingest.Dataset, groups []ingest.BarcodeGroup) (err error) {
	dst, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "create", path)
	}
	defer func() {
		if e := dst.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	var out io.Writer = dst.Writer(ctx)
	if strings.HasSuffix(path, ".gz") {
		gz := gzip.NewWriter(out)
		defer func() {
			if e := gz.Close(); e != nil && err == nil {
				err = e
			}
		}()
		out = gz
	}
	w := fastq.NewWriter(out)
	for _, g := range groups {
		for _, c := range g.Contigs {
			r := fastq.Read{
				ID:   fmt.Sprintf("%s:%s %s %s", datasets[g.DatasetIndex].Name, c.Name, c.ChainType, c.CDR3AA),
				Seq:  c.Seq,
				Qual: c.Quals,
			}
			if err = w.Write(&r); err != nil {
				return
			}
		}
	}
	return nil
}

func runDigest(out io.Writer, path string) error {
	ctx := vcontext.Background()
	groups, info, err := ingest.ReadGroups(ctx, path)
	if err != nil {
		return err
	}
	for i, name := range info.Datasets {
		fmt.Fprintf(out, "dataset %d\t%s\t%s\n", i, name, info.Versions[i])
	}
	fmt.Fprintln(out, ingest.ComputeDigest(groups))
	return nil
}
