// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package origin

import (
	"sort"

	"github.com/biogo/store/llrb"
)

// NoIndex marks an absent origin, donor or tag index.
const NoIndex = -1

type label string

// Compare implements llrb.Comparable.
func (l label) Compare(c llrb.Comparable) int {
	o := c.(label)
	switch {
	case l < o:
		return -1
	case l > o:
		return 1
	}
	return 0
}

func sortedLabels(t *llrb.Tree) []string {
	var out []string
	t.Do(func(c llrb.Comparable) bool {
		out = append(out, string(c.(label)))
		return false
	})
	return out
}

// Interner holds the sorted, deduplicated lists of every origin, donor and
// tag named by a set of datasets. Indexes into these lists identify the
// labels of a contig. An Interner is immutable once built.
type Interner struct {
	Origins []string
	Donors  []string
	Tags    []string
}

// NewInterner collects the labels of all the datasets.
func NewInterner(datasets []*Dataset) *Interner {
	var origins, donors, tags llrb.Tree
	add := func(t *llrb.Tree, v string) {
		if v != "" {
			t.Insert(label(v))
		}
	}
	for _, d := range datasets {
		add(&origins, d.OriginID)
		add(&donors, d.DonorID)
		for _, v := range d.OriginForBC {
			add(&origins, v)
		}
		for _, v := range d.DonorForBC {
			add(&donors, v)
		}
		for _, v := range d.TagForBC {
			add(&tags, v)
		}
	}
	return &Interner{
		Origins: sortedLabels(&origins),
		Donors:  sortedLabels(&donors),
		Tags:    sortedLabels(&tags),
	}
}

func position(list []string, v string) int {
	i := sort.SearchStrings(list, v)
	if i < len(list) && list[i] == v {
		return i
	}
	return NoIndex
}

// Index maps labels to list indexes. The donor index is only assigned when an
// origin was resolved too. Labels missing from the lists get NoIndex.
func (in *Interner) Index(l Labels) (origin, donor, tag int) {
	origin, donor, tag = NoIndex, NoIndex, NoIndex
	if l.HasOrigin {
		origin = position(in.Origins, l.Origin)
		if l.HasDonor {
			donor = position(in.Donors, l.Donor)
		}
	}
	if l.HasTag {
		tag = position(in.Tags, l.Tag)
	}
	return
}
