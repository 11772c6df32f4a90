// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package ingest

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/10XGenomics/enclone-sub003/vdjref/vdjreftest"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
	tassert "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testResult(t *testing.T) ([]Dataset, *Shared, *Result) {
	trb, tra := vdjreftest.TRB(), vdjreftest.TRA()
	datasets := []Dataset{
		dataset("d1", record(trb, "A-1", "a1"), record(tra, "A-1", "a2"), record(trb, "B-1", "b1")),
		dataset("d2", record(tra, "A-1", "a1")),
	}
	shared := NewShared(vdjreftest.Reference(), datasets, DefaultOpts)
	res, err := Load(datasets, shared)
	require.NoError(t, err)
	require.Len(t, res.Groups, 3)
	return datasets, shared, res
}

func TestGroupFileRoundTrip(t *testing.T) {
	ctx := vcontext.Background()
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	datasets, shared, res := testResult(t)
	info := NewRunInfo(datasets, shared, res)
	path := filepath.Join(tempDir, "groups.rio")
	assert.NoError(t, WriteGroups(ctx, path, info, res.Groups))

	groups, gotInfo, err := ReadGroups(ctx, path)
	assert.NoError(t, err)
	expect.EQ(t, gotInfo.Datasets, []string{"d1", "d2"})
	expect.EQ(t, gotInfo.Versions, []string{"", ""})
	tassert.Equal(t, info, gotInfo)
	tassert.Equal(t, res.Groups, groups)
	expect.EQ(t, ComputeDigest(groups), ComputeDigest(res.Groups))
}

func TestGroupFileVersion(t *testing.T) {
	ctx := vcontext.Background()
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	_, _, err := ReadGroups(ctx, filepath.Join(tempDir, "missing.rio"))
	tassert.Error(t, err)
}

func TestDigest(t *testing.T) {
	_, _, res := testResult(t)
	d := ComputeDigest(res.Groups)
	expect.EQ(t, d.NGroups, 3)
	expect.EQ(t, d.NContigs, 4)

	shuffled := append([]BarcodeGroup(nil), res.Groups...)
	rand.New(rand.NewSource(1)).Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	expect.EQ(t, ComputeDigest(shuffled), d)

	// Any change to a contig shows.
	changed := append([]BarcodeGroup(nil), res.Groups...)
	g := changed[0]
	g.Contigs = append([]Contig(nil), g.Contigs...)
	g.Contigs[0].CDR3Start++
	changed[0] = g
	d2 := ComputeDigest(changed)
	tassert.NotEqual(t, d.SumCoord, d2.SumCoord)
	tassert.NotEqual(t, d.SumGroup, d2.SumGroup)
	expect.EQ(t, d2.SumSeq, d.SumSeq)
}
