package genome_test

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/genomeview/encoding/fasta"
	"github.com/grailbio/genomeview/genome"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func writeFile(t *testing.T, path, data string) {
	assert.NoError(t, ioutil.WriteFile(path, []byte(data), 0644))
}

func TestBuildFASTAAndIndex(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()

	faPath := filepath.Join(tmpdir, "ref.fa")
	writeFile(t, faPath, ">II\nACGTACGTAC\nACGTACGTAC\n>I\nACGTA\n")
	idxPath := filepath.Join(tmpdir, "ref.tsv")

	x, err := genome.Build(ctx, faPath, genome.BuildOpts{OutputIndex: idxPath})
	assert.NoError(t, err)
	expect.EQ(t, x.Names(), []string{"II", "I"})
	n, ok := x.Len("II")
	expect.True(t, ok)
	expect.EQ(t, n, 20)
	expect.EQ(t, x.Order("I"), 1)
	expect.EQ(t, x.Order("III"), -1)

	data, err := ioutil.ReadFile(idxPath)
	assert.NoError(t, err)
	expect.EQ(t, string(data), "II\t20\nI\t5\n")

	y, err := genome.Build(ctx, idxPath, genome.BuildOpts{})
	assert.NoError(t, err)
	expect.EQ(t, y.Seqs(), x.Seqs())
}

func TestBuildRefList(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()

	path := filepath.Join(tmpdir, "ref.fa.fai")
	writeFile(t, path, "I\t1000\t4\t60\t61\nII\t2000\t1100\t60\t61\nMT\t50\t3200\t60\t61\n")

	x, err := genome.Build(ctx, path, genome.BuildOpts{RefList: []string{"MT", "I"}})
	assert.NoError(t, err)
	expect.EQ(t, x.Names(), []string{"I", "MT"})
	expect.False(t, x.Contains("II"))

	_, err = genome.Build(ctx, path, genome.BuildOpts{RefList: []string{"I", "chrX"}})
	expect.True(t, errors.Is(errors.Invalid, err), "%v", err)
}

func TestBuildErrors(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	ctx := context.Background()

	dup := filepath.Join(tmpdir, "dup.fasta")
	writeFile(t, dup, ">I\nAC\n>I\nGT\n")
	_, err := genome.Build(ctx, dup, genome.BuildOpts{})
	expect.True(t, errors.Is(errors.Integrity, err), "%v", err)

	_, err = genome.Build(ctx, filepath.Join(tmpdir, "missing.fa"), genome.BuildOpts{})
	expect.NotNil(t, err)
}

func TestCheckInterval(t *testing.T) {
	x, err := genome.New([]fasta.Seq{{Name: "I", Length: 1000}, {Name: "II", Length: 2000}}, nil)
	assert.NoError(t, err)
	tests := []struct {
		refid      string
		start, end int
		ok         bool
	}{
		{"I", 0, 1000, true},
		{"II", 1999, 2000, true},
		{"I", 0, 1001, false},
		{"I", -1, 10, false},
		{"I", 10, 10, false},
		{"I", 20, 10, false},
		{"III", 0, 10, false},
	}
	for _, test := range tests {
		err := x.CheckInterval(test.refid, test.start, test.end)
		if test.ok {
			expect.NoError(t, err)
		} else {
			expect.True(t, errors.Is(errors.Invalid, err), "%+v: %v", test, err)
		}
	}
}
