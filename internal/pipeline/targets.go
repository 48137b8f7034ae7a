package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"c4pairs/internal/diag"
	"c4pairs/pkg/contract"
	"c4pairs/plugins/codec/tsv"
)

// TargetComponents: 从语料中抽取目标句子所需的组件。
type TargetComponents struct {
	Reader contract.Reader
	Corpus contract.CorpusLookup
	Writer contract.Writer
}

// TargetShard: 一个分片的编辑流与其目标句子输出。
type TargetShard struct {
	Edits  string
	Output string
}

// ExpandTargets 与 ExpandShards 相同的命名规则展开编辑/输出模板；n<=0 原样返回。
func ExpandTargets(tmpl TargetShard, n int) ([]TargetShard, error) {
	ex, err := ExpandShards(Shard{Sentences: tmpl.Edits, Edits: tmpl.Edits, Output: tmpl.Output}, n)
	if err != nil {
		return nil, err
	}
	out := make([]TargetShard, len(ex))
	for i, sh := range ex {
		out[i] = TargetShard{Edits: sh.Edits, Output: sh.Output}
	}
	return out, nil
}

// TargetSummary: 目标句子抽取的计数（多分片时为合计；Wanted/Found/Missing 按去重后的 Hash）。
type TargetSummary struct {
	Shards             int64
	EditLines          int64
	MalformedEditLines int64
	Wanted             int64
	Found              int64
	Missing            int64
	Corpus             contract.CorpusProgress
}

// KV 供日志 kv 字段使用。
func (s TargetSummary) KV() map[string]string {
	f := func(v int64) string { return strconv.FormatInt(v, 10) }
	return map[string]string{
		"shards":          f(s.Shards),
		"edit_lines":      f(s.EditLines),
		"malformed_lines": f(s.MalformedEditLines),
		"wanted":          f(s.Wanted),
		"found":           f(s.Found),
		"missing":         f(s.Missing),
		"files":           f(s.Corpus.Files),
		"docs":            f(s.Corpus.Docs),
		"bad_docs":        f(s.Corpus.BadDocs),
	}
}

// Targets 收集全部分片编辑流引用的 Hash，对数据集只扫描一遍，
// 再把命中按所属分片分桶，各自按 Hash 排序写出 hash<TAB>text。
// 同一 Hash 出现在多个分片时写入每一个分片。找不到的 Hash 只计数，不视为错误。
func Targets(ctx context.Context, comp TargetComponents, shards []TargetShard, dataset []string, logger *diag.Logger) (TargetSummary, error) {
	var sum TargetSummary
	if comp.Reader == nil || comp.Corpus == nil || comp.Writer == nil {
		return sum, errors.New("pipeline: missing components")
	}
	if len(shards) == 0 || len(dataset) == 0 {
		return sum, fmt.Errorf("%w: targets needs edits, dataset and output", contract.ErrInvalidInput)
	}
	outputs := make(map[string]struct{}, len(shards))
	for _, sh := range shards {
		if sh.Edits == "" || sh.Output == "" {
			return sum, fmt.Errorf("%w: targets needs edits, dataset and output", contract.ErrInvalidInput)
		}
		if sh.Output != "-" && sh.Output == sh.Edits {
			return sum, fmt.Errorf("%w: output %q would overwrite an input", contract.ErrInvalidInput, sh.Output)
		}
		if _, dup := outputs[sh.Output]; dup {
			return sum, fmt.Errorf("%w: output %q shared by several shards", contract.ErrInvalidInput, sh.Output)
		}
		outputs[sh.Output] = struct{}{}
	}
	sum.Shards = int64(len(shards))

	// owners: Hash -> 引用它的分片下标（升序、去重）
	owners := make(map[contract.Hash][]int)
	for i, sh := range shards {
		ht := logger.StartWith("reader", "load hashes", sh.Edits)
		rc, err := comp.Reader.Open(ctx, sh.Edits)
		if err != nil {
			return sum, fail(logger, "reader", "open edits", sh.Edits, ht, err)
		}
		set, st, err := tsv.ScanHashes(ctx, rc)
		_ = rc.Close()
		sum.EditLines += st.Lines
		sum.MalformedEditLines += st.Malformed
		if err != nil {
			return sum, fail(logger, "reader", "load hashes", sh.Edits, ht, err)
		}
		for h := range set {
			owners[h] = append(owners[h], i)
		}
		ht.Finish("load hashes", int64(len(set)))
	}
	want := make(map[contract.Hash]struct{}, len(owners))
	for h := range owners {
		want[h] = struct{}{}
	}
	sum.Wanted = int64(len(want))

	id := shards[0].Edits
	if len(shards) > 1 {
		id = fmt.Sprintf("%d shards", len(shards))
	}
	if obs, ok := comp.Corpus.(contract.CorpusObserver); ok {
		obs.Observe(func(p contract.CorpusProgress) {
			sum.Corpus = p
			logger.Progress("corpus", "scanning", id, map[string]string{
				"docs":      strconv.FormatInt(p.Docs, 10),
				"found":     strconv.FormatInt(p.Found, 10),
				"remaining": strconv.FormatInt(p.Remaining, 10),
			})
		})
	}
	ct := logger.StartWith("corpus", "lookup", id)
	buckets := make([][]contract.SentenceRecord, len(shards))
	err := comp.Corpus.Lookup(ctx, dataset, want, func(rec contract.SentenceRecord) error {
		sum.Found++
		for _, i := range owners[rec.Hash] {
			buckets[i] = append(buckets[i], rec)
		}
		return nil
	})
	if err != nil {
		return sum, fail(logger, "corpus", "lookup", id, ct, err)
	}
	sum.Missing = sum.Wanted - sum.Found
	ct.FinishKV("lookup", sum.Found, sum.KV())

	for i, sh := range shards {
		found := buckets[i]
		sort.Slice(found, func(a, b int) bool { return found[a].Hash < found[b].Hash })
		wt := logger.StartWith("writer", "write sentences", sh.Edits)
		err := stream(ctx, comp.Writer, sh.Output, func(ctx context.Context, enc *tsv.Encoder) error {
			for _, rec := range found {
				if err := enc.WriteSentence(rec); err != nil {
					return err
				}
			}
			return enc.Flush()
		})
		if err != nil {
			return sum, fail(logger, "writer", "write sentences", sh.Edits, wt, err)
		}
		wt.Finish("write sentences", int64(len(found)))
	}
	diag.IncOp("corpus", "finish", "success")
	return sum, nil
}
