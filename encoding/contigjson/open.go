// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package contigjson

import (
	"context"
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

const (
	// AllContigsName is the per-dataset file holding every assembled contig.
	AllContigsName = "all_contig_annotations.json"
	// CellContigsName holds only the contigs of called cells. It is used in
	// cellranger mode.
	CellContigsName = "contig_annotations.json"
	// lz4Suffix marks the compressed variant written alongside the json files.
	lz4Suffix = ".lz4"
)

// reader closes the decompressor, if any, then the underlying file.
type reader struct {
	ctx context.Context
	io.Reader
	decomp io.Closer
	in     file.File
}

func (r *reader) Close() error {
	e := errors.Once{}
	if r.decomp != nil {
		e.Set(r.decomp.Close())
	}
	e.Set(r.in.Close(r.ctx))
	return e.Err()
}

type closerFunc func()

func (f closerFunc) Close() error {
	f()
	return nil
}

// Open opens a contig annotation file. The contents are decompressed
// according to the path suffix: ".gz", ".zst", ".sz" (snappy framing) and
// ".lz4" are recognized explicitly; other suffixes known to
// github.com/grailbio/base/compress are handled there. The path may name
// any file implementation registered with github.com/grailbio/base/file.
func Open(ctx context.Context, path string) (io.ReadCloser, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "open contig annotations", path)
	}
	r := &reader{ctx: ctx, in: in}
	raw := in.Reader(ctx)
	switch {
	case strings.HasSuffix(path, ".gz"):
		gz, err := gzip.NewReader(raw)
		if err != nil {
			_ = in.Close(ctx)
			return nil, errors.E(errors.Invalid, "gzip", path, err)
		}
		r.Reader, r.decomp = gz, gz
	case strings.HasSuffix(path, ".zst"):
		zr, err := zstd.NewReader(raw)
		if err != nil {
			_ = in.Close(ctx)
			return nil, errors.E(errors.Invalid, "zstd", path, err)
		}
		r.Reader, r.decomp = zr, closerFunc(zr.Close)
	case strings.HasSuffix(path, ".sz"):
		r.Reader = snappy.NewReader(raw)
	case strings.HasSuffix(path, lz4Suffix):
		r.Reader = lz4.NewReader(raw)
	default:
		if u := compress.NewReaderPath(raw, path); u != nil {
			r.Reader, r.decomp = u, u
		} else {
			r.Reader = raw
		}
	}
	return r, nil
}

// Resolve returns the contig annotation file for a dataset. If path already
// names a json file (possibly compressed), it is returned as is. Otherwise
// path is treated as a dataset directory and the file is looked up in it,
// preferring the uncompressed name and falling back to its ".lz4" variant.
// In cellranger mode only the contigs of called cells are read.
func Resolve(ctx context.Context, path string, cellranger bool) (string, error) {
	for _, suffix := range []string{".json", ".json.gz", ".json.zst", ".json.sz", ".json.lz4"} {
		if strings.HasSuffix(path, suffix) {
			return path, nil
		}
	}
	name := AllContigsName
	if cellranger {
		name = CellContigsName
	}
	var candidates []string
	for _, c := range []string{name, name + lz4Suffix} {
		candidates = append(candidates, file.Join(path, c), file.Join(path, "outs", c))
	}
	for _, c := range candidates {
		if _, err := file.Stat(ctx, c); err == nil {
			return c, nil
		}
	}
	return "", errors.E(errors.NotExist, "no", name, "under", path)
}
