// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package ingest

// This file defines GroupWriter and GroupReader. A GroupWriter dumps barcode
// groups into a recordio file, one group per record, and a GroupReader reads
// them back. The file lets later stages skip ingestion.

import (
	"bytes"
	"context"
	"encoding/gob"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/recordio"
	"github.com/grailbio/base/recordio/recordiozstd"
)

const (
	// <fileVersionHeader, fileVersion> is stored in a recordio header.
	fileVersionHeader = "vdjversion"
	fileVersion       = "VDJ_GROUPS_V1"
)

// RunInfo describes an ingestion run. It is stored in the trailer of a
// group file.
type RunInfo struct {
	Opts Opts
	// Datasets are the dataset names, by dataset index.
	Datasets []string
	// Versions are the pipeline versions, by dataset index.
	Versions []string
	// Origins, Donors and Tags are the interned labels that the contig
	// indexes refer to.
	Origins, Donors, Tags []string
}

// NewRunInfo collects the run description of an ingestion result.
func NewRunInfo(datasets []Dataset, shared *Shared, r *Result) RunInfo {
	info := RunInfo{Opts: shared.Opts}
	for i := range datasets {
		info.Datasets = append(info.Datasets, datasets[i].Name)
		info.Versions = append(info.Versions, r.Datasets[i].Version)
	}
	if in := shared.Interner; in != nil {
		info.Origins, info.Donors, info.Tags = in.Origins, in.Donors, in.Tags
	}
	return info
}

// GroupWriter writes barcode groups to a recordio file.
type GroupWriter struct {
	out  file.File
	w    recordio.Writer
	info RunInfo
}

// NewGroupWriter creates a group file at path.
func NewGroupWriter(ctx context.Context, path string, info RunInfo) (*GroupWriter, error) {
	recordiozstd.Init()
	out, err := file.Create(ctx, path)
	if err != nil {
		return nil, errors.E(err, "create", path)
	}
	w := recordio.NewWriter(out.Writer(ctx), recordio.WriterOpts{
		Transformers: []string{recordiozstd.Name},
	})
	w.AddHeader(fileVersionHeader, fileVersion)
	w.AddHeader(recordio.KeyTrailer, true)
	return &GroupWriter{out: out, w: w, info: info}, nil
}

// Write adds a group.
func (w *GroupWriter) Write(g BarcodeGroup) error {
	var b bytes.Buffer
	if err := gob.NewEncoder(&b).Encode(g); err != nil {
		return errors.E(err, "encode group", g.Barcode)
	}
	w.w.Append(b.Bytes())
	return nil
}

// Close writes the trailer and closes the file. It must be called exactly
// once, after writing all the groups.
func (w *GroupWriter) Close(ctx context.Context) error {
	var b bytes.Buffer
	if err := gob.NewEncoder(&b).Encode(w.info); err != nil {
		return errors.E(err, "encode trailer")
	}
	w.w.SetTrailer(b.Bytes())
	err := w.w.Finish()
	if cerr := w.out.Close(ctx); err == nil {
		err = cerr
	}
	if err != nil {
		return errors.E(err, "close", w.out.Name())
	}
	return nil
}

// WriteGroups writes groups to a new group file at path.
func WriteGroups(ctx context.Context, path string, info RunInfo, groups []BarcodeGroup) error {
	w, err := NewGroupWriter(ctx, path, info)
	if err != nil {
		return err
	}
	for _, g := range groups {
		if err := w.Write(g); err != nil {
			_ = w.Close(ctx)
			return err
		}
	}
	return w.Close(ctx)
}

// GroupReader reads the groups of a file created by GroupWriter.
type GroupReader struct {
	in   file.File
	r    recordio.Scanner
	info RunInfo
	g    BarcodeGroup
	err  errors.Once
}

// NewGroupReader opens the group file at path and reads its trailer.
func NewGroupReader(ctx context.Context, path string) (*GroupReader, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open", path)
	}
	recordiozstd.Init()
	r := recordio.NewScanner(in.Reader(ctx), recordio.ScannerOpts{})
	version := ""
	for _, kv := range r.Header() {
		if kv.Key == fileVersionHeader {
			version, _ = kv.Value.(string)
			break
		}
	}
	fail := func(err error) (*GroupReader, error) {
		_ = in.Close(ctx)
		return nil, err
	}
	if err := r.Err(); err != nil {
		return fail(errors.E(err, "read", path))
	}
	if version != fileVersion {
		return fail(errors.E(errors.Invalid, path, "group file version", version, "expected", fileVersion))
	}
	gr := &GroupReader{in: in, r: r}
	if err := gob.NewDecoder(bytes.NewReader(r.Trailer())).Decode(&gr.info); err != nil {
		return fail(errors.E(errors.Invalid, err, "decode trailer of", path))
	}
	return gr, nil
}

// Info returns the run description stored in the file.
func (r *GroupReader) Info() RunInfo { return r.info }

// Scan reads the next group.
func (r *GroupReader) Scan() bool {
	if r.err.Err() != nil || !r.r.Scan() {
		return false
	}
	r.g = BarcodeGroup{}
	if err := gob.NewDecoder(bytes.NewReader(r.r.Get().([]byte))).Decode(&r.g); err != nil {
		r.err.Set(errors.E(errors.Invalid, err, "decode group"))
		return false
	}
	return true
}

// Get yields the current group.
//
// REQUIRES: Last Scan call returned true.
func (r *GroupReader) Get() BarcodeGroup { return r.g }

// Close closes the reader and returns any error seen while reading. It must
// be called exactly once.
func (r *GroupReader) Close(ctx context.Context) error {
	r.err.Set(r.r.Err())
	r.err.Set(r.in.Close(ctx))
	return r.err.Err()
}

// ReadGroups reads all the groups of the file at path.
func ReadGroups(ctx context.Context, path string) ([]BarcodeGroup, RunInfo, error) {
	r, err := NewGroupReader(ctx, path)
	if err != nil {
		return nil, RunInfo{}, err
	}
	var groups []BarcodeGroup
	for r.Scan() {
		groups = append(groups, r.Get())
	}
	info := r.Info()
	return groups, info, r.Close(ctx)
}
