package main

import (
	"context"
	"fmt"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/seqio/encoding/format"
	"github.com/grailbio/seqio/encoding/linereader"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

const nPairs = 100

func fastqPairs(role int) string {
	var b strings.Builder
	for i := 0; i < nPairs; i++ {
		fmt.Fprintf(&b, "@read%d/%d\nACGT%d\n+\nII#%s\n", i, role, i%10, "?")
	}
	return b.String()
}

func writeFile(t *testing.T, dir, name, data string) string {
	path := filepath.Join(dir, name)
	assert.NoError(t, ioutil.WriteFile(path, []byte(data), 0600))
	return path
}

func readFile(t *testing.T, path string) string {
	data, err := ioutil.ReadFile(path)
	assert.NoError(t, err)
	return string(data)
}

func testOpts() pipelineOpts {
	o := defaultPipelineOpts
	o.threads = 3
	// Two reads per batch gives many batches to reorder.
	o.batchLines = 8
	return o
}

func TestInterleave(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()

	o := testOpts()
	o.in = writeFile(t, tempDir, "r1.fq", fastqPairs(1))
	o.in2 = writeFile(t, tempDir, "r2.fq", fastqPairs(2))
	o.out = filepath.Join(tempDir, "out.fq")
	assert.NoError(t, run(ctx, o))

	var want strings.Builder
	for i := 0; i < nPairs; i++ {
		for role := 1; role <= 2; role++ {
			fmt.Fprintf(&want, "@read%d/%d\nACGT%d\n+\nII#?\n", i, role, i%10)
		}
	}
	expect.EQ(t, readFile(t, o.out), want.String())
}

func TestSplit(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()

	for _, backend := range []linereader.Backend{linereader.Simple, linereader.Prefetch, linereader.Mmap} {
		o := testOpts()
		o.reader.Force = backend
		o.in = writeFile(t, tempDir, "r1.fq", fastqPairs(1))
		o.in2 = writeFile(t, tempDir, "r2.fq", fastqPairs(2))
		o.out = filepath.Join(tempDir, "out1.fq")
		o.out2 = filepath.Join(tempDir, "out2.fq")
		assert.NoError(t, run(ctx, o))
		expect.EQ(t, readFile(t, o.out), fastqPairs(1), "backend %v", backend)
		expect.EQ(t, readFile(t, o.out2), fastqPairs(2), "backend %v", backend)

		// The synchronous writer produces the same output.
		o.writer.Sync = true
		assert.NoError(t, run(ctx, o))
		expect.EQ(t, readFile(t, o.out), fastqPairs(1), "backend %v", backend)
		expect.EQ(t, readFile(t, o.out2), fastqPairs(2), "backend %v", backend)
	}
}

func TestSample(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()

	o := testOpts()
	o.in = writeFile(t, tempDir, "r1.fq", fastqPairs(1))
	o.in2 = writeFile(t, tempDir, "r2.fq", fastqPairs(2))
	o.out = filepath.Join(tempDir, "out1.fq.gz")
	o.out2 = filepath.Join(tempDir, "out2.fq.gz")
	o.sampleRate = 0
	assert.NoError(t, run(ctx, o))

	o.in = o.out
	o.in2 = ""
	o.out = filepath.Join(tempDir, "check.fq")
	o.out2 = ""
	o.sampleRate = 1
	assert.NoError(t, run(ctx, o))
	expect.EQ(t, readFile(t, o.out), "")

	o = testOpts()
	o.in = writeFile(t, tempDir, "r1.fq", fastqPairs(1))
	o.in2 = writeFile(t, tempDir, "r2.fq", fastqPairs(2))
	o.out = filepath.Join(tempDir, "out1.header")
	o.out2 = filepath.Join(tempDir, "out2.header")
	o.sampleRate = 0.5
	assert.NoError(t, run(ctx, o))
	names1 := strings.Split(strings.TrimSpace(readFile(t, o.out)), "\n")
	names2 := strings.Split(strings.TrimSpace(readFile(t, o.out2)), "\n")
	expect.GT(t, len(names1), 10)
	expect.LT(t, len(names1), 90)
	// Mates are kept together.
	assert.EQ(t, len(names1), len(names2))
	for i := range names1 {
		expect.EQ(t, strings.TrimSuffix(names1[i], "/1"), strings.TrimSuffix(names2[i], "/2"))
	}
}

func TestFASTQToFASTA(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()

	o := testOpts()
	o.in = writeFile(t, tempDir, "in.fq", "@a\nACGTACGT\n+\nIIIIIIII\n@b\nCC\n+\nII\n")
	o.out = filepath.Join(tempDir, "out.fa")
	o.writer.FastaWrap = 5
	assert.NoError(t, run(ctx, o))
	expect.EQ(t, readFile(t, o.out), ">a\nACGTA\nCGT\n>b\nCC\n")

	// And back, with fake quality scores.
	o.in = o.out
	o.out = filepath.Join(tempDir, "out.fq")
	o.writer.Quality.FakeScore = 40
	assert.NoError(t, run(ctx, o))
	expect.EQ(t, readFile(t, o.out), "@a\nACGTACGT\n+\nIIIIIIII\n@b\nCC\n+\nII\n")
}

const samIn = "@HD\tVN:1.4\tSO:coordinate\n" +
	"@SQ\tSN:chr1\tLN:1000\n" +
	"r1\t0\tchr1\t10\t60\t4M\t*\t0\t0\tACGT\tIIII\n" +
	"r2\t16\tchr1\t20\t60\t4M\t*\t0\t0\tTTTT\tIIII\n"

func TestSAM(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()

	o := testOpts()
	o.batchLines = 1
	o.in = writeFile(t, tempDir, "in.sam", samIn)
	o.out = filepath.Join(tempDir, "out.sam")
	assert.NoError(t, run(ctx, o))
	expect.EQ(t, readFile(t, o.out), samIn)

	o.writer.DropSequenceDictionary = true
	assert.NoError(t, run(ctx, o))
	expect.EQ(t, readFile(t, o.out), strings.Replace(samIn, "@SQ\tSN:chr1\tLN:1000\n", "", 1))

	o.out = filepath.Join(tempDir, "out.fq")
	err := run(ctx, o)
	expect.True(t, errors.Is(errors.NotSupported, err), "%v", err)
}

func TestUnmappedSAM(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()

	o := testOpts()
	o.in = writeFile(t, tempDir, "r1.fq", "@p/1\nAC\n+\nII\n")
	o.in2 = writeFile(t, tempDir, "r2.fq", "@p/2\nGT\n+\n??\n")
	o.refIndex = writeFile(t, tempDir, "ref.fa.fai", "chr1\t1000\t6\t60\t61\nchr2\t500\t1030\t60\t61\n")
	o.out = filepath.Join(tempDir, "out.sam")
	o.writer.RefEnd = 1
	assert.NoError(t, run(ctx, o))
	expect.EQ(t, readFile(t, o.out), "@HD\tVN:1.4\tSO:unsorted\n"+
		"@SQ\tSN:chr1\tLN:1000\n"+
		"@PG\tID:seqio\tPN:seqio\n"+
		"p\t77\t*\t0\t0\t*\t*\t0\t0\tAC\tII\n"+
		"p\t141\t*\t0\t0\t*\t*\t0\t0\tGT\t??\n")
}

func TestBadInput(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()

	o := testOpts()
	o.in = filepath.Join(tempDir, "missing.fq")
	o.out = filepath.Join(tempDir, "out.fq")
	expect.NotNil(t, run(ctx, o))

	o.in = writeFile(t, tempDir, "bad.fq", "@a\nAC\n-\nII\n")
	expect.NotNil(t, run(ctx, o))

	o.in = writeFile(t, tempDir, "noext", "@a\nAC\n+\nII\n")
	err := run(ctx, o)
	expect.True(t, errors.Is(errors.Invalid, err), "%v", err)
	o.inFormat = "fastq"
	assert.NoError(t, run(ctx, o))
	expect.EQ(t, readFile(t, o.out), "@a\nAC\n+\nII\n")

	o.sampleRate = 2
	expect.NotNil(t, run(ctx, o))
}

func TestRefFASTA(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()

	o := testOpts()
	o.in = writeFile(t, tempDir, "in.fq", "@a\nAC\n+\nII\n")
	o.refIndex = writeFile(t, tempDir, "ref.fa", ">chr1\nACGTACGT\nACG\n>chr2 desc\nTT\n")
	o.out = filepath.Join(tempDir, "out.sam")
	o.writer.Program.Version = "1.0"
	assert.NoError(t, run(ctx, o))
	expect.EQ(t, readFile(t, o.out), "@HD\tVN:1.4\tSO:unsorted\n"+
		"@SQ\tSN:chr1\tLN:11\n"+
		"@SQ\tSN:chr2\tLN:2\n"+
		"@PG\tID:seqio\tPN:seqio\tVN:1.0\n"+
		"a\t4\t*\t0\t0\t*\t*\t0\t0\tAC\tII\n")
}

func TestStdStreamKinds(t *testing.T) {
	ctx := context.Background()

	in := format.New(ctx, "-", format.Read)
	resolveKinds(&in, "")
	expect.EQ(t, in.Kinds, format.FASTQ)

	out := format.New(ctx, "-", format.Write)
	resolveKinds(&out, "sam")
	expect.EQ(t, out.Kinds, format.SAM)

	// Files keep the kind guessed from their extension.
	f := format.New(ctx, "reads.fa", format.Read)
	resolveKinds(&f, "")
	expect.EQ(t, f.Kinds, format.FASTA)
	f = format.New(ctx, "noext", format.Read)
	resolveKinds(&f, "")
	expect.EQ(t, f.Kinds, format.Unknown)
}
