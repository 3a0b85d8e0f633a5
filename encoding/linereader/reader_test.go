package linereader_test

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/seqio/encoding/format"
	"github.com/grailbio/seqio/encoding/linereader"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/expect"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelect(t *testing.T) {
	all := linereader.Capabilities{Prefetch: true, Mmap: true}
	tests := []struct {
		opts linereader.Opts
		want linereader.Backend
	}{
		{linereader.Opts{Parallelism: 8}, linereader.Simple},
		{linereader.Opts{Capabilities: linereader.DefaultCapabilities, Parallelism: 8}, linereader.Prefetch},
		{linereader.Opts{Capabilities: all, Parallelism: 8}, linereader.Mmap},
		{linereader.Opts{Capabilities: linereader.Capabilities{Mmap: true}, Parallelism: 8}, linereader.Mmap},
		// Low parallelism.
		{linereader.Opts{Capabilities: all, Parallelism: 1}, linereader.Simple},
		// Forced backends ignore capabilities.
		{linereader.Opts{Force: linereader.Mmap, Parallelism: 8}, linereader.Mmap},
		{linereader.Opts{Force: linereader.Simple, Capabilities: all, Parallelism: 8}, linereader.Simple},
		// Preference is honored only when enabled.
		{linereader.Opts{Prefer: linereader.Prefetch, Capabilities: all, Parallelism: 8}, linereader.Prefetch},
		{linereader.Opts{Prefer: linereader.Mmap, Capabilities: linereader.DefaultCapabilities, Parallelism: 8}, linereader.Prefetch},
		{linereader.Opts{Prefer: linereader.Prefetch, Capabilities: all, LowMemory: true, Parallelism: 8}, linereader.Prefetch},
	}
	for i, test := range tests {
		expect.EQ(t, linereader.Select(test.opts), test.want, "test %d: %+v", i, test.opts)
	}
}

func TestSelectLowMemory(t *testing.T) {
	for _, caps := range []linereader.Capabilities{
		{}, {Prefetch: true}, {Mmap: true}, {Prefetch: true, Mmap: true},
	} {
		for _, par := range []int{1, 2, 64} {
			opts := linereader.Opts{Capabilities: caps, LowMemory: true, Parallelism: par}
			expect.EQ(t, linereader.Select(opts), linereader.Simple, "%+v", opts)
		}
	}
}

func TestParseBackend(t *testing.T) {
	for _, b := range []linereader.Backend{linereader.Auto, linereader.Simple, linereader.Prefetch, linereader.Mmap} {
		got, err := linereader.ParseBackend(b.String())
		require.NoError(t, err)
		expect.EQ(t, got, b)
	}
	_, err := linereader.ParseBackend("bytefile9")
	expect.NotNil(t, err)
}

func TestParseConfig(t *testing.T) {
	opts, err := linereader.ParseConfig([]byte("mmap: true\nprefetch: false\nprefer: mmap\n"))
	require.NoError(t, err)
	expect.EQ(t, opts.Capabilities, linereader.Capabilities{Mmap: true})
	expect.EQ(t, opts.Prefer, linereader.Mmap)
	expect.EQ(t, opts.Force, linereader.Auto)

	opts, err = linereader.ParseConfig([]byte("force: simple\n"))
	require.NoError(t, err)
	expect.EQ(t, opts.Capabilities, linereader.DefaultCapabilities)
	expect.EQ(t, opts.Force, linereader.Simple)

	_, err = linereader.ParseConfig([]byte("force: turbo\n"))
	expect.True(t, errors.Is(errors.Invalid, err))
}

func testLines(n int) []string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("line%d-%s", i, strings.Repeat("A", i%97))
	}
	return lines
}

func writeFile(t *testing.T, path, data string) {
	require.NoError(t, ioutil.WriteFile(path, []byte(data), 0600))
}

func readAll(t *testing.T, r *linereader.Reader) []string {
	var got []string
	for {
		line, err := r.NextLine()
		if err == io.EOF {
			return got
		}
		require.NoError(t, err)
		got = append(got, string(line))
	}
}

func TestBackends(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()

	lines := testLines(5000)
	path := filepath.Join(tempDir, "in.txt")
	writeFile(t, path, strings.Join(lines, "\n")+"\n")
	noNewline := filepath.Join(tempDir, "nonl.txt")
	writeFile(t, noNewline, "a\n\nbc")

	for _, backend := range []linereader.Backend{linereader.Simple, linereader.Prefetch, linereader.Mmap} {
		t.Run(backend.String(), func(t *testing.T) {
			// A small buffer exercises lines longer than the buffer.
			opts := linereader.Opts{Force: backend, BufferSize: 16}
			r, err := linereader.Open(ctx, format.Descriptor{Path: path}, opts)
			require.NoError(t, err)
			expect.EQ(t, r.Backend(), backend)
			expect.EQ(t, readAll(t, r), lines)
			require.NoError(t, r.Close())

			r, err = linereader.Open(ctx, format.Descriptor{Path: noNewline}, opts)
			require.NoError(t, err)
			expect.EQ(t, readAll(t, r), []string{"a", "", "bc"})
			require.NoError(t, r.Close())
		})
	}
}

func TestMmapNotApplicable(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()

	path := filepath.Join(tempDir, "in.txt.gz")
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte("x\ny\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	writeFile(t, path, buf.String())

	r, err := linereader.Open(ctx, format.Descriptor{Path: path}, linereader.Opts{Force: linereader.Mmap})
	require.NoError(t, err)
	expect.EQ(t, r.Backend(), linereader.Simple)
	expect.EQ(t, readAll(t, r), []string{"x", "y"})
	require.NoError(t, r.Close())

	opts := linereader.Opts{Force: linereader.Mmap, Capabilities: linereader.DefaultCapabilities}
	r, err = linereader.Open(ctx, format.Descriptor{Stream: strings.NewReader("s\n")}, opts)
	require.NoError(t, err)
	expect.EQ(t, r.Backend(), linereader.Prefetch)
	expect.EQ(t, readAll(t, r), []string{"s"})
	require.NoError(t, r.Close())
}

func TestNextBatch(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()

	path := filepath.Join(tempDir, "in.txt")
	writeFile(t, path, "aaaa\nbbbb\ncccc\ndddd\neeee\n")
	r, err := linereader.Open(ctx, format.Descriptor{Path: path}, linereader.DefaultOpts)
	require.NoError(t, err)

	b, err := r.NextBatch(2, 1000)
	require.NoError(t, err)
	expect.EQ(t, b.ID, int64(0))
	expect.EQ(t, len(b.Records), 2)
	expect.False(t, b.Last)

	// The byte limit is reached after the second line.
	b, err = r.NextBatch(100, 5)
	require.NoError(t, err)
	expect.EQ(t, b.ID, int64(1))
	expect.EQ(t, len(b.Records), 2)
	expect.EQ(t, string(b.Records[0].Line), "cccc")

	b, err = r.NextBatch(0, 0)
	require.NoError(t, err)
	expect.EQ(t, b.ID, int64(2))
	expect.EQ(t, len(b.Records), 1)
	expect.True(t, b.Last)

	_, err = r.NextBatch(0, 0)
	expect.EQ(t, err, io.EOF)

	require.NoError(t, r.Reset())
	b, err = r.NextBatch(0, 0)
	require.NoError(t, err)
	expect.EQ(t, b.ID, int64(0))
	expect.EQ(t, len(b.Records), 5)
	expect.EQ(t, string(b.Records[4].Line), "eeee")
	require.NoError(t, r.Close())
}

func TestPushBack(t *testing.T) {
	r, err := linereader.Open(context.Background(),
		format.Descriptor{Stream: strings.NewReader("a\nb\n")}, linereader.Opts{Force: linereader.Simple})
	require.NoError(t, err)
	line, err := r.NextLine()
	require.NoError(t, err)
	r.PushBack(line)
	assert.Panics(t, func() { r.PushBack(line) })
	expect.EQ(t, readAll(t, r), []string{"a", "b"})

	err = r.Reset()
	expect.True(t, errors.Is(errors.NotSupported, err))
	require.NoError(t, r.Close())
}

func TestOpenMissing(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	_, err := linereader.Open(context.Background(),
		format.Descriptor{Path: filepath.Join(tempDir, "missing.fq")}, linereader.DefaultOpts)
	expect.NotNil(t, err)
}

func TestLowMemory(t *testing.T) {
	// The result depends on the machine; it must not panic.
	_ = linereader.LowMemory()
}
