// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package vdjann

// codonTable is the standard genetic code, indexed by the 6-bit packed codon
// (first base in the high bits, A=0 C=1 G=2 T=3). Stop codons are '*'.
const codonTable = "KNKNTTTTRSRSIIMIQHQHPPPPRRRRLLLLEDEDAAAAGGGGVVVV*Y*YSSSS*CWCLFLF"

// Translate translates seq in frame 0. Trailing bases that do not form a
// full codon are ignored. Codons with an ambiguous base translate to 'X'.
func Translate(seq []byte) []byte {
	aa := make([]byte, 0, len(seq)/3)
	for i := 0; i+3 <= len(seq); i += 3 {
		aa = append(aa, translateCodon(seq[i:i+3]))
	}
	return aa
}

func translateCodon(codon []byte) byte {
	var c Kmer
	for _, b := range codon {
		x, ok := baseCode(b)
		if !ok {
			return 'X'
		}
		c = c<<2 | x
	}
	return codonTable[c]
}
