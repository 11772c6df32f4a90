// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package vdjann

import (
	farm "github.com/dgryski/go-farm"
)

// This file implements the kmer -> (segment, position) index used to seed
// alignments. The index is sharded by the upper bits of farmhash(kmer); each
// shard is a plain map. The reference is small (a few thousand segments), so
// unlike a transcriptome index there is no need for a hand-rolled table.

const nKmerIndexShard = 64

// Kmer is a 2-bit packed DNA sequence of at most 32 bases.
type Kmer uint64

type kmerHit struct {
	refID int32
	pos   int32
}

type kmerIndex struct {
	k      int
	shards [nKmerIndexShard]map[Kmer][]kmerHit
}

func hashKmer(k Kmer) uint64 {
	return farm.Hash64WithSeed(nil, uint64(k))
}

func shardOf(k Kmer) int {
	return int(hashKmer(k) >> 58)
}

// baseCode returns the 2-bit code of an unambiguous base.
func baseCode(b byte) (Kmer, bool) {
	switch b {
	case 'A', 'a':
		return 0, true
	case 'C', 'c':
		return 1, true
	case 'G', 'g':
		return 2, true
	case 'T', 't':
		return 3, true
	}
	return 0, false
}

// forEachKmer calls fn for every k-base window of seq that contains only
// A, C, G, T. pos is the start of the window.
func forEachKmer(seq []byte, k int, fn func(pos int, kmer Kmer)) {
	mask := Kmer(1)<<(2*uint(k)) - 1
	var (
		kmer Kmer
		n    int
	)
	for i, b := range seq {
		c, ok := baseCode(b)
		if !ok {
			kmer, n = 0, 0
			continue
		}
		kmer = (kmer<<2 | c) & mask
		n++
		if n >= k {
			fn(i-k+1, kmer)
		}
	}
}

func newKmerIndex(k int) *kmerIndex {
	idx := &kmerIndex{k: k}
	for i := range idx.shards {
		idx.shards[i] = map[Kmer][]kmerHit{}
	}
	return idx
}

func (idx *kmerIndex) add(refID int, seq []byte) {
	forEachKmer(seq, idx.k, func(pos int, kmer Kmer) {
		s := idx.shards[shardOf(kmer)]
		s[kmer] = append(s[kmer], kmerHit{refID: int32(refID), pos: int32(pos)})
	})
}

func (idx *kmerIndex) lookup(kmer Kmer) []kmerHit {
	return idx.shards[shardOf(kmer)][kmer]
}
