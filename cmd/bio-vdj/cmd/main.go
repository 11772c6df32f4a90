// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package cmd implements the bio-vdj subcommands.
package cmd

import (
	"fmt"
	"log"

	"github.com/10XGenomics/enclone-sub003/ingest"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/file/s3file"
	"v.io/x/lib/cmdline"
)

func newCmdIngest() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "ingest",
		Short: "Ingest V(D)J contig annotations and group them by barcode",
		Long: `
Ingest reads the contig annotation files of one or more datasets, validates
and normalizes the contigs, and groups them by (dataset, barcode). Each
dataset is either an annotation file or a pipeline output directory holding
all_contig_annotations.json (or contig_annotations.json with -cellranger).

Datasets are named on the command line, or listed in a -manifest TSV file
with columns path, origin, donor and barcodes.`,
		ArgsName: "dataset...",
	}
	opts := ingest.DefaultOpts
	flags := ingestFlags{
		ref:      cmd.Flags.String("ref", "", "V(D)J reference FASTA, possibly compressed. Required."),
		manifest: cmd.Flags.String("manifest", "", "TSV file listing the datasets and their metadata"),
		out:      cmd.Flags.String("out", "", "If set, write the barcode groups to this recordio file"),
		dump:     cmd.Flags.String("dump", "", "If set, write one TSV line per kept contig to this file"),
		fastq:    cmd.Flags.String("fastq", "", "If set, write the V..J sequence of each kept contig to this FASTQ file; gzipped if the name ends in .gz"),
	}
	cmd.Flags.BoolVar(&opts.Reannotate, "reannotate", opts.Reannotate, "Recompute annotations by aligning contigs to the reference")
	cmd.Flags.BoolVar(&opts.Reproduce, "reproduce", opts.Reproduce, "Mimic legacy output; implies -reannotate and keeps non-productive and low confidence contigs")
	cmd.Flags.BoolVar(&opts.IncludeNonCells, "include-non-cells", opts.IncludeNonCells, "Keep contigs whose barcode is not a cell, and low confidence contigs")
	cmd.Flags.BoolVar(&opts.AcceptInconsistent, "accept-inconsistent", opts.AcceptInconsistent, "Ignore gene names that disagree with the reference")
	cmd.Flags.BoolVar(&opts.Internal, "internal", opts.Internal, "Allow datasets from different pipeline versions")
	cmd.Flags.BoolVar(&opts.CellrangerMode, "cellranger", opts.CellrangerMode, "Read contig_annotations.json instead of all_contig_annotations.json")
	cmd.Flags.IntVar(&opts.Parallelism, "parallelism", opts.Parallelism, "Maximum number of concurrent workers, shared between datasets and their contigs")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if *flags.ref == "" {
			return fmt.Errorf("ingest: -ref is required")
		}
		if (*flags.manifest == "") == (len(argv) == 0) {
			return fmt.Errorf("ingest takes either -manifest or dataset paths, but got %v", argv)
		}
		return runIngest(env.Stdout, flags, opts, argv)
	})
	return cmd
}

func newCmdDigest() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "digest",
		Short:    "Print an order independent digest of a barcode group file",
		ArgsName: "path",
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("digest takes one pathname argument, but got %v", argv)
		}
		return runDigest(env.Stdout, argv[0])
	})
	return cmd
}

func registerS3() {
	file.RegisterImplementation("s3", func() file.Implementation {
		return s3file.NewImplementation(s3file.NewDefaultProvider(session.Options{}), s3file.Options{})
	})
}

// Run runs bio-vdj.
func Run() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	registerS3()
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(
		&cmdline.Command{
			Name:     "bio-vdj",
			Short:    "Tools for ingesting 10x V(D)J contig annotations",
			LookPath: false,
			Children: []*cmdline.Command{
				newCmdIngest(),
				newCmdDigest(),
			},
		})
}
