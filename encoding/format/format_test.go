package format_test

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/seqio/encoding/format"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestGuess(t *testing.T) {
	tests := []struct {
		path string
		want format.Kind
	}{
		{"reads.fq", format.FASTQ},
		{"reads.fastq.gz", format.FASTQ},
		{"ref.fa", format.FASTA},
		{"ref.fna.zst", format.FASTA},
		{"x.sam", format.SAM},
		{"x.bam", format.BAM},
		{"names.header", format.Header},
		{"attach.txt", format.Attachment},
		{"x.oneline", format.OneLine},
		{"x.sites", format.Sites},
		{"noext", format.Unknown},
		{"x.weird", format.Unknown},
	}
	for _, test := range tests {
		expect.EQ(t, format.Guess(test.path), test.want, "path %s", test.path)
	}
}

func TestKindString(t *testing.T) {
	expect.EQ(t, (format.SAM | format.FASTQ).String(), "sam|fastq")
	expect.EQ(t, format.Unknown.String(), "unknown")
	expect.EQ(t, (format.SAM | format.FASTQ).Count(), 2)
	expect.EQ(t, format.ParseKind("FQ"), format.FASTQ)
}

func TestValidate(t *testing.T) {
	d := format.Descriptor{Path: "x", Mode: format.Write, Kinds: format.SAM | format.FASTQ}
	err := d.Validate()
	expect.True(t, errors.Is(errors.Invalid, err))

	d.Kinds = format.Unknown
	expect.True(t, errors.Is(errors.Invalid, d.Validate()))

	d.Kinds = format.FASTA
	assert.NoError(t, d.Validate())

	// Read descriptors carry no output kind requirement.
	d = format.Descriptor{Path: "x", Mode: format.Read}
	assert.NoError(t, d.Validate())
}

func TestNewExists(t *testing.T) {
	tempDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()

	path := filepath.Join(tempDir, "out.fq")
	expect.False(t, format.New(ctx, path, format.Write).Exists)
	assert.NoError(t, ioutil.WriteFile(path, []byte("@a\nA\n+\n?\n"), 0600))
	d := format.New(ctx, path, format.Write)
	expect.True(t, d.Exists)
	expect.EQ(t, d.Kinds, format.FASTQ)

	d = format.New(ctx, "-", format.Write)
	expect.True(t, d.Stdout)
}
