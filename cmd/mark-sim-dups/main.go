// Command mark-sim-dups appends a similarity-duplicate exemplar column to a
// read-pair TSV.
//
// The input is a (possibly gzipped) TSV carrying one read pair per row,
// produced by the alignment-duplicate marking stage.  Rows whose seq_id
// equals prim_align_dup_exemplar are "alignment-unique": no earlier stage
// found a duplicate for them, so they are the only rows eligible for
// similarity deduplication.
//
// The tool runs two passes over the input.  Pass 1 feeds every
// alignment-unique row to the dedup engine and finalizes it.  Pass 2
// re-reads the input and writes every row with one appended
// sim_dup_exemplar column: the final exemplar id for alignment-unique
// rows, and the sentinel "NA" for rows already handled upstream.
//
// Example:
//
//	mark-sim-dups -expected-reads 20000000 input.tsv.gz output.tsv.gz
package main

import (
	"bufio"
	"bytes"
	"context"
	"flag"
	"io"
	"strconv"
	"time"

	"github.com/grailbio/base/compress"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/base/vcontext"
	"github.com/klauspost/compress/gzip"
	"github.com/securebio/nao-mgs-workflow/dedup"
)

const (
	// naExemplar marks rows that were excluded from Pass 1.
	naExemplar = "NA"
	// appendedColumn is the name of the output column added by this tool.
	appendedColumn = "sim_dup_exemplar"

	// Long-read headers and annotation pipelines produce multi-MB rows.
	maxLineBytes = 256 << 20
)

// Required input columns.
const (
	colSeqID     = "seq_id"
	colFwdSeq    = "query_seq"
	colRevSeq    = "query_seq_rev"
	colFwdQual   = "query_qual"
	colRevQual   = "query_qual_rev"
	colPrimAlign = "prim_align_dup_exemplar"
)

// columnIndex holds the positions of the required columns in the header.
type columnIndex struct {
	seqID, fwdSeq, revSeq, fwdQual, revQual, primAlign int
	max                                                int
}

// parseHeader locates the required columns, returning the name of the
// first missing one as ok=false.
func parseHeader(header []byte) (cols columnIndex, missing string, ok bool) {
	pos := map[string]int{}
	for i, name := range bytes.Split(header, []byte{'\t'}) {
		pos[string(name)] = i
	}
	lookup := func(name string) int {
		i, found := pos[name]
		if !found && missing == "" {
			missing = name
		}
		if i > cols.max {
			cols.max = i
		}
		return i
	}
	cols.seqID = lookup(colSeqID)
	cols.fwdSeq = lookup(colFwdSeq)
	cols.revSeq = lookup(colRevSeq)
	cols.fwdQual = lookup(colFwdQual)
	cols.revQual = lookup(colRevQual)
	cols.primAlign = lookup(colPrimAlign)
	return cols, missing, missing == ""
}

// splitFields splits a TSV row in place, reusing the fields slice across
// rows.
func splitFields(line []byte, fields [][]byte) [][]byte {
	fields = fields[:0]
	for {
		i := bytes.IndexByte(line, '\t')
		if i < 0 {
			return append(fields, line)
		}
		fields = append(fields, line[:i])
		line = line[i+1:]
	}
}

// newLineScanner wraps r in a scanner sized for very long rows.
func newLineScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1<<20), maxLineBytes)
	return sc
}

// openInput opens path and transparently decompresses it based on the
// file name.
func openInput(ctx context.Context, path string) (io.Reader, file.File) {
	in, err := file.Open(ctx, path)
	if err != nil {
		log.Fatalf("open %v: %v", path, err)
	}
	var r io.Reader = in.Reader(ctx)
	if u := compress.NewReaderPath(r, in.Name()); u != nil {
		r = u
	}
	return r, in
}

func closeAndLog(ctx context.Context, in file.File, path string) {
	if err := in.Close(ctx); err != nil {
		log.Error.Printf("close %v: %v", path, err)
	}
}

// runPassOne feeds every alignment-unique row to the engine.
func runPassOne(ctx context.Context, path string, d *dedup.Deduper) (total, eligible int) {
	r, in := openInput(ctx, path)
	defer closeAndLog(ctx, in, path)

	sc := newLineScanner(r)
	if !sc.Scan() {
		log.Fatalf("%v: empty input", path)
	}
	cols, missing, ok := parseHeader(sc.Bytes())
	if !ok {
		log.Fatalf("%v: missing required column %q", path, missing)
	}

	var fields [][]byte
	for sc.Scan() {
		total++
		fields = splitFields(sc.Bytes(), fields)
		if len(fields) <= cols.max {
			continue
		}
		seqID := fields[cols.seqID]
		if !bytes.Equal(seqID, fields[cols.primAlign]) {
			continue // already marked as an alignment duplicate upstream
		}
		eligible++
		d.ProcessRead(seqID,
			fields[cols.fwdSeq], fields[cols.revSeq],
			fields[cols.fwdQual], fields[cols.revQual])
		if eligible%(1024*1024) == 0 {
			log.Printf("%s: %dMi alignment-unique reads", path, eligible/(1024*1024))
		}
	}
	if err := sc.Err(); err != nil {
		log.Fatalf("read %v: %v", path, err)
	}
	return total, eligible
}

// runPassTwo rewrites the input with the appended exemplar column.
func runPassTwo(ctx context.Context, inPath, outPath string, d *dedup.Deduper) (alignDups, simDups int) {
	r, in := openInput(ctx, inPath)
	defer closeAndLog(ctx, in, inPath)

	out, err := file.Create(ctx, outPath)
	if err != nil {
		log.Fatalf("create %v: %v", outPath, err)
	}
	gz := gzip.NewWriter(out.Writer(ctx))
	w := bufio.NewWriterSize(gz, 1<<20)

	sc := newLineScanner(r)
	if !sc.Scan() {
		log.Fatalf("%v: empty input", inPath)
	}
	cols, missing, ok := parseHeader(sc.Bytes())
	if !ok {
		log.Fatalf("%v: missing required column %q", inPath, missing)
	}
	// bufio.Writer latches the first error; it surfaces at Flush below.
	writeRow := func(line []byte, exemplar string) {
		_, _ = w.Write(line)
		_ = w.WriteByte('\t')
		_, _ = w.WriteString(exemplar)
		_ = w.WriteByte('\n')
	}
	writeRow(sc.Bytes(), appendedColumn)

	var fields [][]byte
	for sc.Scan() {
		line := sc.Bytes()
		fields = splitFields(line, fields)
		if len(fields) <= cols.max {
			writeRow(line, naExemplar)
			continue
		}
		seqID := fields[cols.seqID]
		if !bytes.Equal(seqID, fields[cols.primAlign]) {
			writeRow(line, naExemplar)
			alignDups++
			continue
		}
		exemplar := d.FinalExemplar(string(seqID))
		writeRow(line, exemplar)
		if exemplar != string(seqID) {
			simDups++
		}
	}
	if err := sc.Err(); err != nil {
		log.Fatalf("read %v: %v", inPath, err)
	}
	if err := w.Flush(); err != nil {
		log.Fatalf("write %v: %v", outPath, err)
	}
	if err := gz.Close(); err != nil {
		log.Fatalf("write %v: %v", outPath, err)
	}
	if err := out.Close(ctx); err != nil {
		log.Fatalf("close %v: %v", outPath, err)
	}
	return alignDups, simDups
}

// writeStatsTSV writes a one-row summary.
func writeStatsTSV(ctx context.Context, path string, s dedup.Stats, total, alignDups, simDups int) {
	out, err := file.Create(ctx, path)
	if err != nil {
		log.Fatalf("create %v: %v", path, err)
	}
	w := tsv.NewWriter(out.Writer(ctx))
	for _, name := range []string{
		"reads_total", "reads_processed", "unique_clusters",
		"prim_align_dups", "sim_dups", "scratch_bytes_used", "result_bytes_used",
	} {
		w.WriteString(name)
	}
	if err := w.EndLine(); err != nil {
		log.Fatalf("write %v: %v", path, err)
	}
	for _, v := range []int{
		total, s.ReadsProcessed, s.UniqueClusters,
		alignDups, simDups, s.ScratchBytesUsed, s.ResultBytesUsed,
	} {
		w.WriteString(strconv.Itoa(v))
	}
	if err := w.EndLine(); err != nil {
		log.Fatalf("write %v: %v", path, err)
	}
	if err := w.Flush(); err != nil {
		log.Fatalf("write %v: %v", path, err)
	}
	if err := out.Close(ctx); err != nil {
		log.Fatalf("close %v: %v", path, err)
	}
}

func main() {
	opts := dedup.DefaultOpts
	statsPath := ""
	flag.IntVar(&opts.KmerLen, "k", dedup.DefaultOpts.KmerLen, "Length of k-mers used for minimizer bucketing.")
	flag.IntVar(&opts.WindowLen, "window-len", dedup.DefaultOpts.WindowLen, "Width in bases of one minimizer window.")
	flag.IntVar(&opts.NumWindows, "num-windows", dedup.DefaultOpts.NumWindows, "Number of minimizer windows per mate, placed from the read start.")
	flag.IntVar(&opts.MaxOffset, "max-offset", dedup.DefaultOpts.MaxOffset, "Maximum alignment shift in bases tolerated between duplicates.")
	flag.Float64Var(&opts.MaxErrorFrac, "max-error-frac", dedup.DefaultOpts.MaxErrorFrac, "Bound on (shift + mismatches) as a fraction of the overlap length.")
	flag.IntVar(&opts.ExpectedReads, "expected-reads", dedup.DefaultOpts.ExpectedReads, "Expected number of alignment-unique reads; sizes the exemplar index.")
	flag.IntVar(&opts.ScratchArenaBytes, "scratch-arena-bytes", 0, "Scratch arena capacity in bytes (0 = 2 GiB default).")
	flag.IntVar(&opts.ResultArenaBytes, "result-arena-bytes", 0, "Result arena capacity in bytes (0 = 512 MiB default).")
	flag.StringVar(&statsPath, "stats", "", "Optional path for a one-row summary TSV.")

	cleanup := grail.Init()
	defer cleanup()
	ctx := vcontext.Background()

	if flag.NArg() != 2 {
		log.Fatalf("usage: mark-sim-dups [flags] <input.tsv[.gz]> <output.tsv.gz>")
	}
	inPath, outPath := flag.Arg(0), flag.Arg(1)

	start := time.Now()
	d, err := dedup.NewDeduper(opts)
	if err != nil {
		log.Fatalf("create dedup engine: %v", err)
	}
	defer d.Close()

	total, eligible := runPassOne(ctx, inPath, d)
	stats := d.Stats()
	log.Printf("pass 1: %d alignment-unique reads (of %d total), %d unique clusters",
		eligible, total, stats.UniqueClusters)

	d.Finalize()

	alignDups, simDups := runPassTwo(ctx, inPath, outPath, d)
	if statsPath != "" {
		writeStatsTSV(ctx, statsPath, stats, total, alignDups, simDups)
	}
	log.Printf("marked similarity duplicates over %d reads in %s: %d were already alignment duplicates, %d newly recognized",
		total, time.Since(start).Round(time.Second), alignDups, simDups)
}
