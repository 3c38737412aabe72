package main

/*
bio-view summarizes and plots coverage and annotations over a reference
genome.

  bio-view -annotation genes.gtf -alignment sample.bam -summary ref.fa
  bio-view -alignment a.bam=wt -alignment b.bam=mut -refid-plot refids.png ref.fa
  bio-view -annotation genes.gff3 -alignment a.bam -region chr1:10,000-20,000 -out chr1.svg ref.fa

A source is given as path or path=name.  The name defaults to the file
basename.
*/

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/biogo/hts/sam"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/genomeview/alignment"
	"github.com/grailbio/genomeview/coverage"
	"github.com/grailbio/genomeview/encoding/bed"
	"github.com/grailbio/genomeview/interval"
	"github.com/grailbio/genomeview/render"
	"github.com/grailbio/genomeview/util"
	"github.com/grailbio/genomeview/viewer"
)

// sourceList is a repeatable "path[=name]" flag.
type sourceList []string

func (s *sourceList) String() string { return strings.Join(*s, ",") }

func (s *sourceList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func splitSource(s string) (path, name string) {
	if i := strings.LastIndexByte(s, '='); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}

var (
	annotations, alignments sourceList

	verbose        = flag.Bool("verbose", false, "Log progress")
	refList        = flag.String("ref-list", "", "Comma-separated reference sequences to keep; default all")
	outputIndex    = flag.String("output-index", "", "If set, write the two-column reference index to this path")
	bamIndex       = flag.Bool("index-bam", false, "Build a missing .bai for BAM alignments before loading them")
	allowUnindexed = flag.Bool("allow-unindexed", false, "Load BAM files without an index; their coverage cannot be plotted")
	flagExclude    = flag.Int("flag-exclude", int(viewer.DefaultAddOpts.FlagExclude), "Reads with a FLAG bit intersecting this value are skipped")
	mapq           = flag.Int("mapq", viewer.DefaultAddOpts.MinMapQ, "Reads with MAPQ below this level are skipped")

	summary   = flag.Bool("summary", false, "Write annotation and alignment summaries to stdout")
	refidPlot = flag.String("refid-plot", "", "If set, write the per-refid coverage bar chart to this path (.png, .svg, .pdf)")
	normDepth = flag.Bool("norm-depth", viewer.DefaultRefidPlotOpts.NormDepth, "Normalize refid coverage by the total aligned bases of each source")
	normLen   = flag.Bool("norm-len", viewer.DefaultRefidPlotOpts.NormLen, "Normalize refid coverage by reference length")

	region       = flag.String("region", "", "Window to plot, as chr, chr:pos or chr:start-end (1-based, inclusive)")
	out          = flag.String("out", "", "Output path of the -region figure (.png, .svg, .pdf)")
	bins         = flag.Int("bins", viewer.DefaultIntervalPlotOpts.Bins, "Number of coverage bins in the -region window")
	featureTypes = flag.String("feature-types", "", "Comma-separated feature types to show; default all")
	maxFeatures  = flag.Int("max-features-per-type", viewer.DefaultIntervalPlotOpts.MaxFeaturesPerType, "Maximum features shown per type; 0 = no limit")
	maxDepth     = flag.Int("max-depth", viewer.DefaultIntervalPlotOpts.MaxDepth, "Maximum rows of a feature track")
	offset       = flag.Int("annotation-offset", -1, "Minimum gap between features on one row; -1 = window/400")
	logScale     = flag.Bool("log", render.DefaultIntervalStyle.Log, "Plot coverage on a log scale")
	labels       = flag.Bool("labels", false, "Draw feature IDs")
	seed         = flag.Int64("seed", 0, "Seed for feature subsampling")
	coverageTSV  = flag.String("coverage-tsv", "", "If set, write the binned coverage of the -region window to this path")
	coverageBED  = flag.String("coverage-bed", "", "If set, write the binned coverage of the -region window as BED (gzipped if the path ends in .gz)")
)

func init() {
	flag.Var(&annotations, "annotation", "GTF, GFF3 or BED annotation as path[=name]; may be repeated")
	flag.Var(&alignments, "alignment", "BAM, SAM or BED alignment as path[=name]; may be repeated")
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// format returns the image format implied by path's extension.
func format(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if ext == "" {
		return "png"
	}
	return ext
}

func writeTo(ctx context.Context, path string, fn func(io.Writer) error) (err error) {
	w, err := util.Create(ctx, path)
	if err != nil {
		return err
	}
	var e errors.Once
	e.Set(fn(w))
	e.Set(w.Close())
	return e.Err()
}

func run(ctx context.Context, refPath string) (err error) {
	v, err := viewer.New(ctx, refPath, viewer.Opts{
		Verbose:     *verbose,
		RefList:     splitList(*refList),
		OutputIndex: *outputIndex,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := v.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	addOpts := viewer.DefaultAddOpts
	addOpts.AllowUnindexed = *allowUnindexed
	addOpts.FlagExclude = sam.Flags(*flagExclude)
	addOpts.MinMapQ = *mapq
	for _, a := range annotations {
		path, name := splitSource(a)
		if err := v.AddAnnotation(ctx, path, name, addOpts); err != nil {
			return err
		}
	}
	for _, a := range alignments {
		path, name := splitSource(a)
		if *bamIndex && util.Extension(path) == "bam" {
			if _, err := file.Stat(ctx, path+".bai"); errors.Is(errors.NotExist, err) {
				log.Printf("Indexing %s", path)
				if err := alignment.IndexBAM(ctx, path, ""); err != nil {
					return err
				}
			}
		}
		if err := v.AddAlignment(ctx, path, name, addOpts); err != nil {
			return err
		}
	}

	if *summary {
		if len(annotations) > 0 {
			fmt.Println("# annotations")
			if err := v.AnnotationSummary().WriteTSV(os.Stdout); err != nil {
				return err
			}
		}
		if len(alignments) > 0 {
			fmt.Println("# alignments")
			if err := v.AlignmentSummary().WriteTSV(os.Stdout); err != nil {
				return err
			}
		}
	}

	if *refidPlot != "" {
		opts := viewer.DefaultRefidPlotOpts
		opts.NormDepth = *normDepth
		opts.NormLen = *normLen
		opts.RefList = splitList(*refList)
		rc, err := v.RefidCoveragePlot(opts)
		if err != nil {
			return err
		}
		style := render.DefaultRefidStyle
		style.Format = format(*refidPlot)
		if err := writeTo(ctx, *refidPlot, func(w io.Writer) error { return rc.Render(w, style) }); err != nil {
			return err
		}
	}

	if *region == "" {
		return nil
	}
	r, err := interval.ParseRegion(*region)
	if err != nil {
		return err
	}
	opts := viewer.DefaultIntervalPlotOpts
	if r.Bounded {
		opts.Start, opts.End = &r.Start, &r.End
	}
	opts.Bins = *bins
	opts.FeatureTypes = splitList(*featureTypes)
	opts.MaxFeaturesPerType = *maxFeatures
	opts.MaxDepth = *maxDepth
	opts.Seed = *seed
	if *offset >= 0 {
		opts.AnnotationOffset = offset
	}
	ip, err := v.IntervalPlot(ctx, r.RefID, opts)
	if err != nil {
		return err
	}
	if *verbose {
		log.Printf("%v", ip)
	}
	if *out != "" {
		style := render.DefaultIntervalStyle
		style.Log = *logScale
		style.Labels = *labels
		style.Format = format(*out)
		if err := writeTo(ctx, *out, func(w io.Writer) error { return ip.Render(w, style) }); err != nil {
			return err
		}
	}
	if *coverageTSV != "" {
		if err := writeTo(ctx, *coverageTSV, ip.WriteCoverageTSV); err != nil {
			return err
		}
	}
	if *coverageBED != "" {
		var header []bed.HeaderSeq
		for _, s := range v.Reference().Seqs() {
			header = append(header, bed.HeaderSeq{RefID: s.Name, Length: s.Length})
		}
		err := writeTo(ctx, *coverageBED, func(w io.Writer) error {
			return coverage.WriteBED(w, header, ip.Coverage)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] reference\n", os.Args[0])
		flag.PrintDefaults()
	}
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	if *region != "" && *out == "" && *coverageTSV == "" && *coverageBED == "" {
		log.Fatalf("-region requires -out, -coverage-tsv or -coverage-bed")
	}
	if err := run(context.Background(), flag.Arg(0)); err != nil {
		log.Fatalf("%v", err)
	}
}
