// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package ingest

import (
	"encoding/binary"
	"fmt"
	"hash"

	"blainsmith.com/go/seahash"
	"github.com/grailbio/base/unsafe"
	"github.com/minio/highwayhash"
)

// Digest summarizes an ingestion result. Sums of per-item hashes are used,
// so a Digest does not depend on the order of the groups.
type Digest struct {
	NGroups  int
	NContigs int
	// SumBarcode is the sum of the hashes of the (dataset, barcode) keys.
	SumBarcode uint64
	// SumSeq is the sum of the hashes of the V..J sequences.
	SumSeq uint64
	// SumQual is the sum of the hashes of the V..J qualities.
	SumQual uint64
	// SumCDR3 is the sum of the hashes of the CDR3 amino acid sequences.
	SumCDR3 uint64
	// SumCoord is the sum of the hashes of the coordinates and reference ids.
	SumCoord uint64
	// SumGroup is the sum of keyed fingerprints of whole groups.
	SumGroup uint64
}

// String implements fmt.Stringer.
func (d Digest) String() string {
	return fmt.Sprintf("groups:%d contigs:%d barcode:%016x seq:%016x qual:%016x cdr3:%016x coord:%016x group:%016x",
		d.NGroups, d.NContigs, d.SumBarcode, d.SumSeq, d.SumQual, d.SumCDR3, d.SumCoord, d.SumGroup)
}

// digestKey keys the group fingerprints.
var digestKey [highwayhash.Size]byte

func hashField(h hash.Hash64, salt []byte, data []byte) uint64 {
	h.Reset()
	h.Write(salt)
	h.Write(data)
	return h.Sum64()
}

// ComputeDigest computes the digest of groups.
func ComputeDigest(groups []BarcodeGroup) Digest {
	var (
		d     Digest
		h     = seahash.New()
		salt  [4]byte
		coord []byte
		buf   []byte
	)
	for _, g := range groups {
		d.NGroups++
		binary.LittleEndian.PutUint32(salt[:], uint32(g.DatasetIndex))
		d.SumBarcode += hashField(h, salt[:], unsafe.StringToBytes(g.Barcode))
		buf = append(buf[:0], salt[:]...)
		buf = append(buf, g.Barcode...)
		for i := range g.Contigs {
			c := &g.Contigs[i]
			d.NContigs++
			d.SumSeq += hashField(h, salt[:], c.Seq)
			d.SumQual += hashField(h, salt[:], c.Quals)
			d.SumCDR3 += hashField(h, salt[:], unsafe.StringToBytes(c.CDR3AA))
			coord = coord[:0]
			for _, v := range [...]int{
				c.VStart, c.VStop, c.VStopRef, c.DStart, c.JStart, c.JStartRef, c.JStop, c.CStart,
				c.URef, c.VRef, c.DRef, c.JRef, c.CRef, c.CDR3Start,
				c.OriginIndex, c.DonorIndex, c.TagIndex, c.UMICount, c.ReadCount, c.FracReadsUsed,
			} {
				coord = binary.LittleEndian.AppendUint64(coord, uint64(v))
			}
			d.SumCoord += hashField(h, salt[:], coord)
			buf = append(buf, c.Name...)
			buf = append(buf, c.FullSeq...)
			buf = append(buf, c.CDR3DNA...)
			buf = append(buf, coord...)
		}
		d.SumGroup += highwayhash.Sum64(buf, digestKey[:])
	}
	return d
}
