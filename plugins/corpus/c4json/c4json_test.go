package c4json

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"c4pairs/pkg/contract"
)

func writeShard(t *testing.T, dir, name string, docs ...string) {
	t.Helper()
	f, err := os.Create(filepath.Join(dir, name))
	require.NoError(t, err)
	zw := gzip.NewWriter(f)
	for _, d := range docs {
		line := d
		if !strings.HasPrefix(d, "{") && d != "not json" {
			b, err := json.Marshal(map[string]string{"text": d, "url": "https://example.com"})
			require.NoError(t, err)
			line = string(b)
		}
		_, err := zw.Write([]byte(line + "\n"))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
}

func collect(t *testing.T, c *Corpus, roots []string, want map[contract.Hash]struct{}) []contract.SentenceRecord {
	t.Helper()
	var got []contract.SentenceRecord
	require.NoError(t, c.Lookup(context.Background(), roots, want, func(r contract.SentenceRecord) error {
		got = append(got, r)
		return nil
	}))
	return got
}

// TestLookupFindsLines 按行 MD5 命中，缺失不报错，且不修改入参集合
func TestLookupFindsLines(t *testing.T) {
	dir := t.TempDir()
	writeShard(t, dir, "c4-train.00000-of-01024.json.gz",
		"Header line\nBitcoin goes for $7,094 this morning, according to CoinDesk.",
		"not json",
		`{"url":"x"}`,
	)
	writeShard(t, dir, "c4-train.00001-of-01024.json.gz", "Another doc.\nShe goes to school.")
	writeShard(t, dir, "c4-validation.00000-of-00008.json.gz", "Hidden line.")

	want := map[contract.Hash]struct{}{
		contract.HashOf("Bitcoin goes for $7,094 this morning, according to CoinDesk."): {},
		contract.HashOf("She goes to school."):                                          {},
		contract.HashOf("Hidden line."):                                                 {},
	}
	c := New(&Options{LogEvery: 1})
	var last contract.CorpusProgress
	var reports int
	c.Observe(func(p contract.CorpusProgress) { last = p; reports++ })

	got := collect(t, c, []string{dir}, want)
	wantRecs := []contract.SentenceRecord{
		{Hash: contract.HashOf("Bitcoin goes for $7,094 this morning, according to CoinDesk."), Text: "Bitcoin goes for $7,094 this morning, according to CoinDesk."},
		{Hash: contract.HashOf("She goes to school."), Text: "She goes to school."},
	}
	if diff := cmp.Diff(wantRecs, got); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, want, 3)
	assert.Equal(t, contract.CorpusProgress{Files: 2, Docs: 4, BadDocs: 2, Found: 2, Remaining: 1}, last)
	assert.Greater(t, reports, 1)
}

// TestLookupEarlyStop 全部命中后不再打开后续文件
func TestLookupEarlyStop(t *testing.T) {
	dir := t.TempDir()
	writeShard(t, dir, "c4-train.00000-of-01024.json.gz", "first\nsecond", "third")
	writeShard(t, dir, "c4-train.00001-of-01024.json.gz", "fourth")

	c := New(nil)
	var last contract.CorpusProgress
	c.Observe(func(p contract.CorpusProgress) { last = p })
	got := collect(t, c, []string{dir}, map[contract.Hash]struct{}{contract.HashOf("second"): {}})
	require.Len(t, got, 1)
	assert.Equal(t, "second", got[0].Text)
	assert.Equal(t, int64(1), last.Files)
	assert.Equal(t, int64(1), last.Docs)
	assert.Equal(t, int64(0), last.Remaining)
}

// TestLookupEmptyWant 空集合直接返回
func TestLookupEmptyWant(t *testing.T) {
	got := collect(t, New(nil), []string{t.TempDir()}, nil)
	assert.Empty(t, got)
}

// TestLookupCustomField 自定义正文字段
func TestLookupCustomField(t *testing.T) {
	dir := t.TempDir()
	writeShard(t, dir, "c4-train.00000-of-00001.json.gz", `{"body":"alpha\nbeta"}`)
	got := collect(t, New(&Options{Field: "body"}), []string{dir}, map[contract.Hash]struct{}{contract.HashOf("beta"): {}})
	require.Len(t, got, 1)
	assert.Equal(t, "beta", got[0].Text)
}

// TestLookupYieldError 回调错误原样上抛
func TestLookupYieldError(t *testing.T) {
	dir := t.TempDir()
	writeShard(t, dir, "c4-train.00000-of-00001.json.gz", "x")
	boom := assert.AnError
	err := New(nil).Lookup(context.Background(), []string{dir}, map[contract.Hash]struct{}{contract.HashOf("x"): {}}, func(contract.SentenceRecord) error { return boom })
	assert.ErrorIs(t, err, boom)
}

// TestLookupCanceled 取消的上下文
func TestLookupCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := New(nil).Lookup(ctx, []string{t.TempDir()}, map[contract.Hash]struct{}{contract.HashOf("x"): {}}, func(contract.SentenceRecord) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
