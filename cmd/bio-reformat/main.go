package main

// See doc.go for documentation.

import (
	"flag"
	"net/http"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/seqio/encoding/linereader"
	"github.com/grailbio/seqio/encoding/quality"
	"github.com/grailbio/seqio/encoding/seqwriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	o := defaultPipelineOpts
	flag.StringVar(&o.in, "in", "-", "Input FASTQ, FASTA or SAM file. \"-\" reads the standard input.")
	flag.StringVar(&o.in2, "in2", "", "Optional R2 FASTQ file, read in lockstep with -in.")
	flag.StringVar(&o.out, "out", "-", "Output file. \"-\" writes to the standard output.")
	flag.StringVar(&o.out2, "out2", "", "If set, R1 reads are written to -out and R2 reads to -out2. Otherwise mates are interleaved.")
	flag.StringVar(&o.inFormat, "in-format", "", "Input format (fastq, fasta, sam). Guessed from the -in extension by default; the standard input defaults to fastq.")
	flag.StringVar(&o.outFormat, "out-format", "", "Output format (fastq, fasta, sam, bam, header, oneline, attachment). Guessed from the -out extension by default; the standard output defaults to fastq.")
	flag.Float64Var(&o.sampleRate, "sample-rate", 1.0, "Fraction of reads (or pairs) to keep.")
	flag.Uint64Var(&o.seed, "seed", 0, "Seed of the sampler.")
	flag.IntVar(&o.threads, "threads", 0, "Number of worker goroutines. Zero means the number of CPUs.")
	flag.IntVar(&o.batchLines, "batch-lines", linereader.DefaultBatchLines, "Maximum number of input lines per batch.")
	flag.IntVar(&o.batchBytes, "batch-bytes", linereader.DefaultBatchBytes, "Maximum number of input bytes per SAM batch.")
	flag.IntVar(&o.qinOffset, "qin-offset", 33, "ASCII offset of input quality scores.")
	flag.StringVar(&o.refIndex, "ref-index", "", "FASTA file, or its .fai index, used to synthesize the SAM sequence dictionary.")
	flag.IntVar(&o.writer.RefStart, "ref-start", 0, "Index of the first reference of -ref-index written to the SAM header.")
	flag.IntVar(&o.writer.RefEnd, "ref-end", -1, "Index past the last reference of -ref-index written to the SAM header. Negative means all.")
	flag.BoolVar(&o.append, "append", false, "Append to existing outputs. The SAM header is not repeated.")
	flag.BoolVar(&o.allowSubprocess, "allow-subprocess", false, "Allow -compressor.")

	var (
		qoutNumeric  bool
		fakeQuality  int
		qoutOffset   int
		backend      string
		prefer       string
		capabilities string
		compressor   string
		metricsAddr  string
	)
	flag.BoolVar(&qoutNumeric, "qout-numeric", false, "Write quality scores as space-separated numbers.")
	flag.IntVar(&fakeQuality, "fake-quality", int(quality.DefaultOpts.FakeScore), "Score written for reads without quality data.")
	flag.IntVar(&qoutOffset, "qout-offset", int(quality.DefaultOpts.Offset), "ASCII offset of output quality scores.")
	flag.IntVar(&o.writer.Quality.WrapWidth, "qout-wrap", quality.DefaultOpts.WrapWidth, "Values per line of numeric quality scores.")
	flag.IntVar(&o.writer.FastaWrap, "fasta-wrap", seqwriter.DefaultOpts.FastaWrap, "FASTA output line width. Zero disables wrapping.")
	flag.BoolVar(&o.writer.Sync, "sync", false, "Write FASTQ, FASTA and header output on the submitting goroutine.")
	flag.IntVar(&o.writer.QueueSize, "queue-size", seqwriter.DefaultOpts.QueueSize, "Batches buffered by each asynchronous writer.")
	flag.BoolVar(&o.writer.NoHeader, "no-header", false, "Do not write a SAM header.")
	flag.BoolVar(&o.writer.DropSequenceDictionary, "drop-sq", false, "Drop the @SQ lines of the SAM header.")
	flag.IntVar(&o.writer.BAMThreads, "bam-threads", 1, "Compression goroutines of BAM output.")
	flag.IntVar(&o.sink.Parallelism, "bgzf-threads", 1, "Compression goroutines of .bgz output.")
	flag.StringVar(&backend, "backend", "auto", "Line reader backend (auto, simple, prefetch, mmap). Anything but auto overrides -capabilities.")
	flag.StringVar(&prefer, "prefer-backend", "auto", "Line reader backend to use if enabled.")
	flag.StringVar(&capabilities, "capabilities", "", "YAML file enabling or disabling line reader backends.")
	flag.StringVar(&compressor, "compressor", "", "External command compressing .gz outputs, e.g. pigz. Requires -allow-subprocess.")
	flag.StringVar(&metricsAddr, "metrics-addr", "", "If set, serve Prometheus metrics on this address.")

	shutdown := grail.Init()
	defer shutdown()
	ctx := vcontext.Background()

	if capabilities != "" {
		opts, err := linereader.LoadConfig(ctx, capabilities)
		if err != nil {
			log.Fatal(err)
		}
		o.reader = opts
	}
	o.reader.LowMemory = o.reader.LowMemory || linereader.LowMemory()
	for _, b := range []struct {
		name string
		dst  *linereader.Backend
	}{{backend, &o.reader.Force}, {prefer, &o.reader.Prefer}} {
		if b.name == "auto" && *b.dst != linereader.Auto {
			continue
		}
		v, err := linereader.ParseBackend(b.name)
		if err != nil {
			log.Fatal(err)
		}
		*b.dst = v
	}

	if qoutNumeric {
		o.writer.Quality.Mode = quality.Numeric
	}
	o.writer.Quality.FakeScore = byte(fakeQuality)
	o.writer.Quality.Offset = byte(qoutOffset)
	if compressor != "" {
		o.sink.Compressor = []string{"sh", "-c", compressor}
	}
	if metricsAddr != "" {
		reg := prometheus.NewRegistry()
		o.writer.Metrics = seqwriter.NewMetrics(reg)
		go func() {
			log.Error.Printf("metrics server: %v", http.ListenAndServe(metricsAddr, promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
		}()
	}

	if err := run(ctx, o); err != nil {
		log.Fatal(err)
	}
	log.Printf("All done")
}
