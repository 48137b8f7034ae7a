package pipeline

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"c4pairs/internal/diag"
	"c4pairs/pkg/contract"
	"c4pairs/plugins/applicator/splice"
	"c4pairs/plugins/index/memory"
	"c4pairs/plugins/index/sqlite"
	rfs "c4pairs/plugins/reader/filesystem"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// memWriter 收集各工件的输出。
type memWriter struct {
	mu   sync.Mutex
	out  map[string]string
	fail error
}

func (w *memWriter) Write(ctx context.Context, id contract.ArtifactID, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	if w.fail != nil {
		return w.fail
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.out == nil {
		w.out = map[string]string{}
	}
	w.out[string(id)] = string(b)
	return nil
}

func (w *memWriter) get(id string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.out[id]
}

func newComponents(t *testing.T, w contract.Writer) Components {
	t.Helper()
	app, err := splice.New(nil)
	require.NoError(t, err)
	return Components{
		Reader:     rfs.New(nil),
		NewIndex:   func(context.Context) (contract.Index, error) { return memory.New(nil), nil },
		Applicator: app,
		Writer:     w,
	}
}

func writeFile(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return p
}

const (
	bitcoinClean     = "Bitcoin goes for $7,094 this morning, according to CoinDesk."
	bitcoinCorrupted = "Bitcoin is for $7,094 this morning, which CoinDesk says."
	hBitcoin         = "00000002020d286371dd59a2f8a900e6"
)

// TestRunShardReadmeSample C4_200M 文档样例端到端
func TestRunShardReadmeSample(t *testing.T) {
	dir := t.TempDir()
	sh := Shard{
		Sentences: writeFile(t, dir, "target_sentences.tsv", hBitcoin+"\t"+bitcoinClean),
		Edits: writeFile(t, dir, "edits.tsv",
			hBitcoin+"\t38\t60\twhich CoinDesk says.",
			hBitcoin+"\t8\t12\tis",
		),
		Output: "pairs.tsv",
	}
	w := &memWriter{}
	sum, err := RunShard(context.Background(), newComponents(t, w), sh, diag.Nop())
	require.NoError(t, err)
	assert.Equal(t, bitcoinCorrupted+"\t"+bitcoinClean+"\n", w.get("pairs.tsv"))

	want := Summary{Shards: 1, SentenceLines: 1, Sentences: 1, EditLines: 2, Groups: 1, Pairs: 1}
	if diff := cmp.Diff(want, sum); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
}

// TestRunShardSkips 各类可恢复跳过只计数，输出保持首次出现顺序
func TestRunShardSkips(t *testing.T) {
	const (
		hA       = "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
		hB       = "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
		hOverlap = "cccccccccccccccccccccccccccccccc"
		hCafe    = "dddddddddddddddddddddddddddddddd"
		hMissing = "eeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee"
	)
	dir := t.TempDir()
	sh := Shard{
		Sentences: writeFile(t, dir, "sentences.tsv",
			hA+"\tShe go to school.",
			hB+"\tthe cat sat",
			hA+"\tignored duplicate",
			hOverlap+"\t0123456789",
			strings.ToUpper(hCafe)+"\tcafé au lait",
			"not-a-hash\tbroken",
			"no tab at all",
		),
		Edits: writeFile(t, dir, "edits.tsv",
			hB+"\t0\t3\tThe",
			hMissing+"\t0\t1\tx",
			hA+"\t6\t6\tes",
			hOverlap+"\t0\t5\ta",
			hCafe+"\t4\t5\t",
			hOverlap+"\t3\t8\tb",
			hMissing+"\t2\t3\ty",
			hB+"\t11\t11\t.",
			hA+"\tx\t1\t",
			hA+"\t1",
			"",
		),
		Output: "pairs.tsv",
	}
	w := &memWriter{}
	sum, err := RunShard(context.Background(), newComponents(t, w), sh, diag.NewLoggerTo(io.Discard, "t", "debug"))
	require.NoError(t, err)

	assert.Equal(t, "The cat sat.\tthe cat sat\nShe goes to school.\tShe go to school.\n", w.get("pairs.tsv"))
	want := Summary{
		Shards:                 1,
		SentenceLines:          7,
		MalformedSentenceLines: 2,
		Sentences:              4,
		DuplicateSentences:     1,
		EditLines:              10,
		MalformedEditLines:     2,
		Groups:                 5,
		Pairs:                  2,
		NotFound:               1,
		MalformedGroups:        1,
		InvalidBoundary:        1,
	}
	if diff := cmp.Diff(want, sum); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, int64(3), sum.Skipped())
	assert.Equal(t, int64(4), sum.MalformedLines())
}

// TestRunShardSqliteIndex SQLite 索引与内存索引结果一致
func TestRunShardSqliteIndex(t *testing.T) {
	dir := t.TempDir()
	sh := Shard{
		Sentences: writeFile(t, dir, "sentences.tsv", hBitcoin+"\t"+bitcoinClean),
		Edits:     writeFile(t, dir, "edits.tsv", hBitcoin+"\t8\t12\tis", hBitcoin+"\t38\t60\twhich CoinDesk says."),
		Output:    "pairs.tsv",
	}
	w := &memWriter{}
	comp := newComponents(t, w)
	comp.NewIndex = func(ctx context.Context) (contract.Index, error) {
		return sqlite.New(ctx, &sqlite.Options{BatchSize: 1})
	}
	sum, err := RunShard(context.Background(), comp, sh, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Pairs)
	assert.Equal(t, bitcoinCorrupted+"\t"+bitcoinClean+"\n", w.get("pairs.tsv"))
}

// TestRunShardErrors 致命错误：输入缺失、写出失败、组件缺失、路径冲突
func TestRunShardErrors(t *testing.T) {
	dir := t.TempDir()
	edits := writeFile(t, dir, "edits.tsv", hBitcoin+"\t8\t12\tis")
	sentences := writeFile(t, dir, "sentences.tsv", hBitcoin+"\t"+bitcoinClean)

	_, err := RunShard(context.Background(), newComponents(t, &memWriter{}), Shard{Sentences: filepath.Join(dir, "nope"), Edits: edits, Output: "o"}, nil)
	var perr *fs.PathError
	assert.ErrorAs(t, err, &perr)

	boom := errors.New("disk full")
	_, err = RunShard(context.Background(), newComponents(t, &memWriter{fail: boom}), Shard{Sentences: sentences, Edits: edits, Output: "o"}, nil)
	assert.ErrorIs(t, err, boom)

	_, err = RunShard(context.Background(), Components{}, Shard{Sentences: sentences, Edits: edits, Output: "o"}, nil)
	assert.Error(t, err)

	_, err = RunShard(context.Background(), newComponents(t, &memWriter{}), Shard{Sentences: sentences, Edits: edits, Output: edits}, nil)
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}

// TestRunShardCanceled 取消的上下文
func TestRunShardCanceled(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RunShard(ctx, newComponents(t, &memWriter{}), Shard{
		Sentences: writeFile(t, dir, "s.tsv", hBitcoin+"\t"+bitcoinClean),
		Edits:     writeFile(t, dir, "e.tsv", hBitcoin+"\t8\t12\tis"),
		Output:    "o",
	}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestRunShards 多分片并发；单个分片失败不影响其余分片
func TestRunShards(t *testing.T) {
	dir := t.TempDir()
	shards, err := ExpandShards(Shard{
		Sentences: filepath.Join(dir, "target_sentences.tsv"),
		Edits:     filepath.Join(dir, "edits.tsv"),
		Output:    "sentence_pairs.tsv",
	}, 3)
	require.NoError(t, err)
	for i, sh := range shards {
		if i == 1 {
			continue // 缺失输入
		}
		writeFile(t, dir, filepath.Base(sh.Sentences), hBitcoin+"\t"+bitcoinClean)
		writeFile(t, dir, filepath.Base(sh.Edits), hBitcoin+"\t8\t12\tis")
	}

	w := &memWriter{}
	sum, err := Run(context.Background(), newComponents(t, w), shards, 2, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), shards[1].Edits)
	assert.Equal(t, int64(2), sum.Pairs)
	assert.Equal(t, int64(3), sum.Shards)
	line := "Bitcoin is for $7,094 this morning, according to CoinDesk.\t" + bitcoinClean + "\n"
	assert.Equal(t, line, w.get("sentence_pairs.tsv-00000-of-00003"))
	assert.Equal(t, line, w.get("sentence_pairs.tsv-00002-of-00003"))
	assert.Empty(t, w.get("sentence_pairs.tsv-00001-of-00003"))
}

// TestRunValidation 空分片列表与输出冲突
func TestRunValidation(t *testing.T) {
	comp := newComponents(t, &memWriter{})
	_, err := Run(context.Background(), comp, nil, 1, nil)
	assert.ErrorIs(t, err, contract.ErrInvalidInput)

	sh := Shard{Sentences: "s", Edits: "e", Output: "o"}
	_, err = Run(context.Background(), comp, []Shard{sh, {Sentences: "s2", Edits: "e2", Output: "o"}}, 1, nil)
	assert.ErrorIs(t, err, contract.ErrInvalidInput)

	// 两条输入不能同时读取 STDIN
	_, err = Run(context.Background(), comp, []Shard{{Sentences: "-", Edits: "-", Output: "o"}}, 1, nil)
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
	_, err = RunShard(context.Background(), comp, Shard{Sentences: "-", Edits: "-", Output: "-"}, nil)
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}

// TestExpandShards 序号命名与占位符
func TestExpandShards(t *testing.T) {
	got, err := ExpandShards(Shard{Sentences: "s/{shard}.tsv", Edits: "edits.tsv", Output: "out/{shard}/pairs.tsv"}, 2)
	require.NoError(t, err)
	want := []Shard{
		{Sentences: "s/00000-of-00002.tsv", Edits: "edits.tsv-00000-of-00002", Output: "out/00000-of-00002/pairs.tsv"},
		{Sentences: "s/00001-of-00002.tsv", Edits: "edits.tsv-00001-of-00002", Output: "out/00001-of-00002/pairs.tsv"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("shards mismatch (-want +got):\n%s", diff)
	}

	single, err := ExpandShards(Shard{Sentences: "s", Edits: "e", Output: "-"}, 0)
	require.NoError(t, err)
	assert.Len(t, single, 1)

	_, err = ExpandShards(Shard{Sentences: "s{shard}", Edits: "e", Output: "o"}, 0)
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
	_, err = ExpandShards(Shard{Sentences: "s", Edits: "e", Output: "-"}, 2)
	assert.ErrorIs(t, err, contract.ErrInvalidInput)
}

// TestSummaryAdd 累加
func TestSummaryAdd(t *testing.T) {
	var s Summary
	s.Add(Summary{Shards: 1, Pairs: 2, NotFound: 1})
	s.Add(Summary{Shards: 1, Pairs: 3, InvalidBoundary: 2, MalformedEditLines: 1})
	assert.Equal(t, Summary{Shards: 2, Pairs: 5, NotFound: 1, InvalidBoundary: 2, MalformedEditLines: 1}, s)
	assert.Equal(t, "5", s.KV()["pairs"])
	assert.Equal(t, int64(3), s.Skipped())
}
