// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package origin

import (
	"context"
	"io"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
)

// Entry is one dataset listed in a manifest.
type Entry struct {
	// Path is the dataset directory or contig annotation file.
	Path string
	Meta Dataset
}

type manifestRow struct {
	Path     string `tsv:"path"`
	Origin   string `tsv:"origin"`
	Donor    string `tsv:"donor"`
	Barcodes string `tsv:"barcodes"`
}

type barcodeRow struct {
	Barcode string `tsv:"barcode"`
	Origin  string `tsv:"origin"`
	Donor   string `tsv:"donor"`
	Tag     string `tsv:"tag"`
}

// readTSV calls fn for every row of a headed TSV file.
func readTSV(ctx context.Context, path string, row interface{}, fn func() error) (err error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return errors.E(err, "open", path)
	}
	defer func() {
		if e := in.Close(ctx); e != nil && err == nil {
			err = e
		}
	}()
	r := tsv.NewReader(in.Reader(ctx))
	r.HasHeaderRow = true
	r.UseHeaderNames = true
	r.Comment = '#'
	for {
		if err := r.Read(row); err != nil {
			if err == io.EOF {
				return nil
			}
			return errors.E(errors.Invalid, path, err)
		}
		if err := fn(); err != nil {
			return err
		}
	}
}

// relativeTo resolves p against the directory holding base, unless p is
// absolute or carries a scheme.
func relativeTo(base, p string) string {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "://") {
		return p
	}
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		return base[:i+1] + p
	}
	return p
}

// ReadManifest reads a dataset manifest: a TSV with the columns "path",
// "origin", "donor" and "barcodes". The last three may be empty. "barcodes"
// names a per-barcode TSV read by ReadBarcodes; relative paths are resolved
// against the manifest's directory.
func ReadManifest(ctx context.Context, path string) ([]Entry, error) {
	var (
		row     manifestRow
		entries []Entry
	)
	err := readTSV(ctx, path, &row, func() error {
		if row.Path == "" {
			return errors.E(errors.Invalid, path, "empty dataset path")
		}
		e := Entry{
			Path: relativeTo(path, row.Path),
			Meta: Dataset{OriginID: row.Origin, DonorID: row.Donor},
		}
		if row.Barcodes != "" {
			if err := ReadBarcodes(ctx, relativeTo(path, row.Barcodes), &e.Meta); err != nil {
				return err
			}
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("origin: %s lists %d datasets", path, len(entries))
	return entries, nil
}

// ReadBarcodes adds per-barcode assignments to d from a TSV with the columns
// "barcode", "origin", "donor" and "tag". Empty cells assign nothing.
func ReadBarcodes(ctx context.Context, path string, d *Dataset) error {
	var row barcodeRow
	set := func(m *map[string]string, bc, v string) {
		if v == "" {
			return
		}
		if *m == nil {
			*m = map[string]string{}
		}
		(*m)[bc] = v
	}
	return readTSV(ctx, path, &row, func() error {
		if row.Barcode == "" {
			return errors.E(errors.Invalid, path, "empty barcode")
		}
		set(&d.OriginForBC, row.Barcode, row.Origin)
		set(&d.DonorForBC, row.Barcode, row.Donor)
		set(&d.TagForBC, row.Barcode, row.Tag)
		return nil
	})
}
