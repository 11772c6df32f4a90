// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package origin assigns sample metadata (origin, donor, tag) to the cell
// barcodes of a dataset.
package origin

const (
	// DefaultOriginID and DefaultDonorID are the placeholder ids given to
	// datasets whose origin or donor was not named.
	DefaultOriginID = "s1"
	DefaultDonorID  = "d1"
)

// Dataset is the metadata of one dataset: defaults that apply to the whole
// dataset and per-barcode overrides. A Dataset is read-only once ingestion
// starts.
type Dataset struct {
	// OriginID and DonorID are the dataset defaults; empty means none.
	OriginID string
	DonorID  string
	// Per-barcode assignments. Nil maps are treated as empty.
	OriginForBC map[string]string
	DonorForBC  map[string]string
	TagForBC    map[string]string
}

// Labels is the metadata resolved for one barcode.
type Labels struct {
	Origin, Donor, Tag          string
	HasOrigin, HasDonor, HasTag bool
}

// Resolve returns the metadata of a barcode. A per-barcode assignment always
// wins. Otherwise the dataset default origin applies if it is set and either
// differs from the "s1" placeholder or the dataset assigns no origin per
// barcode at all. The donor default follows the same rule with "d1", except
// that it is gated on the dataset origin: a dataset without a default origin
// gives no default donor either, even if it names one. The rule is
// approximate: a dataset that names its origin "s1" and assigns some
// barcodes individually leaves its other barcodes without an origin. Tags
// have no default.
func (d *Dataset) Resolve(barcode string) Labels {
	var l Labels
	if o, ok := d.OriginForBC[barcode]; ok {
		l.Origin, l.HasOrigin = o, true
	} else if d.OriginID != "" && (d.OriginID != DefaultOriginID || len(d.OriginForBC) == 0) {
		l.Origin, l.HasOrigin = d.OriginID, true
	}
	if o, ok := d.DonorForBC[barcode]; ok {
		l.Donor, l.HasDonor = o, true
	} else if d.OriginID != "" && d.DonorID != "" && (d.DonorID != DefaultDonorID || len(d.DonorForBC) == 0) {
		l.Donor, l.HasDonor = d.DonorID, true
	}
	if t, ok := d.TagForBC[barcode]; ok {
		l.Tag, l.HasTag = t, true
	}
	return l
}
