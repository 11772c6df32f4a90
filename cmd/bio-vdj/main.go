// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

/*
  bio-vdj ingests the contig annotations written by the 10x V(D)J pipeline.
  Run "bio-vdj help" for the list of subcommands.
*/

import (
	"github.com/10XGenomics/enclone-sub003/cmd/bio-vdj/cmd"
	"github.com/grailbio/base/grail"
)

func main() {
	shutdown := grail.Init()
	defer shutdown()
	cmd.Run()
}
