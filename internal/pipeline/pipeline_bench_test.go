package pipeline

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"c4pairs/pkg/contract"
	"c4pairs/plugins/applicator/splice"
	"c4pairs/plugins/index/memory"
	rfs "c4pairs/plugins/reader/filesystem"
)

// discardWriter 丢弃所有输出，避免磁盘开销。
type discardWriter struct{}

func (discardWriter) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	_, err := io.Copy(io.Discard, r)
	return err
}

// benchShard 生成 n 句的分片：每句两处编辑，编辑流倒序写出。
func benchShard(b *testing.B, dir string, n int) Shard {
	b.Helper()
	sentPath, editPath := filepath.Join(dir, "target_sentences.tsv"), filepath.Join(dir, "edits.tsv")
	sf, err := os.Create(sentPath)
	if err != nil {
		b.Fatal(err)
	}
	ef, err := os.Create(editPath)
	if err != nil {
		b.Fatal(err)
	}
	sw, ew := bufio.NewWriter(sf), bufio.NewWriter(ef)
	edits := make([]string, 0, 2*n)
	for i := 0; i < n; i++ {
		s := fmt.Sprintf("The committee has approved the new budget for year %d.", i)
		h := contract.HashOf(s)
		fmt.Fprintf(sw, "%s\t%s\n", h, s)
		edits = append(edits, fmt.Sprintf("%s\t18\t26\tapprove", h), fmt.Sprintf("%s\t0\t4\t", h))
	}
	for i := len(edits) - 1; i >= 0; i-- {
		fmt.Fprintln(ew, edits[i])
	}
	for _, err := range []error{sw.Flush(), ew.Flush(), sf.Close(), ef.Close()} {
		if err != nil {
			b.Fatal(err)
		}
	}
	return Shard{Sentences: sentPath, Edits: editPath, Output: "sentence_pairs.tsv"}
}

func benchComponents(b *testing.B) Components {
	b.Helper()
	app, err := splice.New(nil)
	if err != nil {
		b.Fatal(err)
	}
	return Components{
		Reader:     rfs.New(nil),
		NewIndex:   func(context.Context) (contract.Index, error) { return memory.New(nil), nil },
		Applicator: app,
		Writer:     discardWriter{},
	}
}

// BenchmarkRunShard 测试单分片完整流程的性能。
func BenchmarkRunShard(b *testing.B) {
	const n = 10000
	sh := benchShard(b, b.TempDir(), n)
	comp := benchComponents(b)
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sum, err := RunShard(ctx, comp, sh, nil)
		if err != nil {
			b.Fatal(err)
		}
		if sum.Pairs != n {
			b.Fatalf("pairs=%d", sum.Pairs)
		}
	}
}

// BenchmarkRun 测试多分片并发调度的性能。
func BenchmarkRun(b *testing.B) {
	const n, shards = 2000, 8
	base := benchShard(b, b.TempDir(), n)
	set := make([]Shard, shards)
	for i := range set {
		set[i] = Shard{Sentences: base.Sentences, Edits: base.Edits, Output: fmt.Sprintf("sentence_pairs.tsv-%05d-of-%05d", i, shards)}
	}
	for _, c := range []int{1, runtime.NumCPU()} {
		b.Run(fmt.Sprintf("C=%d", c), func(b *testing.B) {
			comp := benchComponents(b)
			ctx := context.Background()
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := Run(ctx, comp, set, c, nil); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
