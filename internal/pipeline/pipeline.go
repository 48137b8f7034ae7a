package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"c4pairs/internal/diag"
	"c4pairs/pkg/contract"
	"c4pairs/plugins/codec/tsv"
)

// - 分片内单线程：读句子 → 建索引 → 读编辑并按 Hash 聚合 → 逐组 Apply → 流式写出。
// - 分片间无共享可变状态：Run 仅负责限并发调度与计数汇总。
// - 数据级错误（缺失/非法组/边界/坏行）计数后跳过；I/O 等致命错误只终止所在分片。

// Components 聚合单个分片运行所需的原子组件。
type Components struct {
	Reader contract.Reader
	// NewIndex 每个分片新建一个索引，分片结束时关闭。
	NewIndex   func(ctx context.Context) (contract.Index, error)
	Applicator contract.Applicator
	Writer     contract.Writer
}

func (c Components) sanity() error {
	if c.Reader == nil || c.NewIndex == nil || c.Applicator == nil || c.Writer == nil {
		return errors.New("pipeline: missing components")
	}
	return nil
}

// groups 按编辑流中首次出现的顺序聚合编辑组。
type groups struct {
	order []contract.Hash
	edits map[contract.Hash][]contract.Edit
}

func (g *groups) add(e contract.Edit) {
	if _, ok := g.edits[e.Hash]; !ok {
		g.order = append(g.order, e.Hash)
	}
	g.edits[e.Hash] = append(g.edits[e.Hash], e)
}

// RunShard 处理一个分片并返回其计数；数据级跳过不视为错误。
func RunShard(ctx context.Context, comp Components, sh Shard, logger *diag.Logger) (Summary, error) {
	var sum Summary
	if err := comp.sanity(); err != nil {
		return sum, fmt.Errorf("sanity: %w", err)
	}
	if err := sh.validate(); err != nil {
		return sum, err
	}
	sum.Shards = 1
	id := sh.ID()
	st := logger.StartWith("pipeline", "shard", id)

	idx, err := comp.NewIndex(ctx)
	if err != nil {
		return sum, fail(logger, "index", "index open", id, st, err)
	}
	defer idx.Close()

	if err := loadSentences(ctx, comp.Reader, idx, sh, &sum, logger); err != nil {
		return sum, err
	}
	g, err := loadEdits(ctx, comp.Reader, sh, &sum, logger)
	if err != nil {
		return sum, err
	}

	wt := logger.StartWith("writer", "write pairs", id)
	var out Summary
	err = stream(ctx, comp.Writer, sh.Output, func(ctx context.Context, enc *tsv.Encoder) error {
		return assemble(ctx, comp.Applicator, idx, g, enc, &out, id, logger)
	})
	sum.Add(out)
	if err != nil {
		return sum, fail(logger, "writer", "write pairs", id, wt, err)
	}
	wt.Finish("write pairs", sum.Pairs)
	diag.IncOp("writer", "finish", "success")

	if sum.Skipped() > 0 || sum.MalformedLines() > 0 {
		logger.Warn("pipeline", string(diag.CodeInput), "records skipped", id, sum.KV())
	}
	st.FinishKV("shard", sum.Pairs, sum.KV())
	diag.IncOp("pipeline", "shard", "success")
	if t := st.Since(); t != nil {
		diag.ObserveDuration("pipeline", "shard", time.Since(*t).Milliseconds())
	}
	return sum, nil
}

func loadSentences(ctx context.Context, r contract.Reader, idx contract.Index, sh Shard, sum *Summary, logger *diag.Logger) error {
	id := sh.ID()
	t := logger.StartWith("index", "load sentences", id)
	rc, err := r.Open(ctx, sh.Sentences)
	if err != nil {
		return fail(logger, "reader", "open sentences", id, t, err)
	}
	defer rc.Close()
	st, err := tsv.ScanSentences(ctx, rc, func(rec contract.SentenceRecord) error {
		dup, err := idx.Register(ctx, rec.Hash, rec.Text)
		if err != nil {
			return err
		}
		if dup {
			sum.DuplicateSentences++
			logger.DebugSkip("index", string(diag.CodeInput), "duplicate sentence hash", id, map[string]string{"hash": string(rec.Hash)})
			return nil
		}
		sum.Sentences++
		return nil
	})
	sum.SentenceLines += st.Lines
	sum.MalformedSentenceLines += st.Malformed
	if err != nil {
		return fail(logger, "index", "load sentences", id, t, err)
	}
	t.Finish("load sentences", sum.Sentences)
	diag.IncOp("index", "finish", "success")
	return nil
}

func loadEdits(ctx context.Context, r contract.Reader, sh Shard, sum *Summary, logger *diag.Logger) (*groups, error) {
	id := sh.ID()
	t := logger.StartWith("reader", "load edits", id)
	rc, err := r.Open(ctx, sh.Edits)
	if err != nil {
		return nil, fail(logger, "reader", "open edits", id, t, err)
	}
	defer rc.Close()
	g := &groups{edits: make(map[contract.Hash][]contract.Edit)}
	st, err := tsv.ScanEdits(ctx, rc, func(e contract.Edit) error {
		g.add(e)
		return nil
	})
	sum.EditLines += st.Lines
	sum.MalformedEditLines += st.Malformed
	if err != nil {
		return nil, fail(logger, "reader", "load edits", id, t, err)
	}
	sum.Groups = int64(len(g.order))
	t.Finish("load edits", sum.Groups)
	diag.IncOp("reader", "finish", "success")
	return g, nil
}

// assemble 逐组解析并应用；输出顺序即编辑组首次出现的顺序。
func assemble(ctx context.Context, app contract.Applicator, idx contract.Index, g *groups, enc *tsv.Encoder, sum *Summary, id string, logger *diag.Logger) error {
	skip := func(h contract.Hash, err error) {
		code := string(diag.Classify(err))
		diag.IncError("applicator", code)
		logger.DebugSkip("applicator", code, err.Error(), id, map[string]string{"hash": string(h)})
	}
	for i, h := range g.order {
		if i%1024 == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		clean, err := idx.Lookup(ctx, h)
		if errors.Is(err, contract.ErrNotFound) {
			sum.NotFound++
			skip(h, err)
			continue
		}
		if err != nil {
			return fmt.Errorf("index lookup: %w", err)
		}
		corrupted, err := app.Apply(clean, g.edits[h])
		switch {
		case errors.Is(err, contract.ErrMalformedEditGroup):
			sum.MalformedGroups++
			skip(h, err)
			continue
		case errors.Is(err, contract.ErrInvalidBoundary):
			sum.InvalidBoundary++
			skip(h, err)
			continue
		case err != nil:
			return fmt.Errorf("apply: %w", err)
		}
		if err := enc.WritePair(contract.SentencePair{Corrupted: corrupted, Clean: clean}); err != nil {
			return err
		}
		sum.Pairs++
	}
	return enc.Flush()
}

// stream 经 io.Pipe 将 produce 的编码输出交给 Writer；任一端失败即关闭另一端。
func stream(ctx context.Context, w contract.Writer, output string, produce func(context.Context, *tsv.Encoder) error) error {
	pr, pw := io.Pipe()
	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		err := produce(gctx, tsv.NewEncoder(pw, 0))
		_ = pw.CloseWithError(err)
		return err
	})
	eg.Go(func() error {
		err := w.Write(gctx, contract.ArtifactID(output), pr)
		if err == nil {
			err = io.ErrClosedPipe
		}
		_ = pr.CloseWithError(err)
		if errors.Is(err, io.ErrClosedPipe) {
			return nil
		}
		return err
	})
	return eg.Wait()
}

// fail 统一记录错误事件与指标，并包装返回。
func fail(logger *diag.Logger, comp, msg, shard string, t *diag.Timer, err error) error {
	code := diag.Classify(err)
	logger.ErrorWith(comp, string(code), msg+" failed", t.Since(), shard)
	diag.IncOp(comp, "error", "error")
	if code != diag.CodeUnknown {
		diag.IncError(comp, string(code))
	}
	return fmt.Errorf("%s: %w", msg, err)
}

// Run 以 concurrency 为上限并发处理全部分片。某个分片失败不会取消其余分片；
// 返回所有分片计数之和，以及各失败分片错误的合并。
func Run(ctx context.Context, comp Components, shards []Shard, concurrency int, logger *diag.Logger) (Summary, error) {
	var total Summary
	if err := comp.sanity(); err != nil {
		return total, fmt.Errorf("sanity: %w", err)
	}
	if len(shards) == 0 {
		return total, fmt.Errorf("%w: no shards", contract.ErrInvalidInput)
	}
	outputs := make(map[string]struct{}, len(shards))
	for _, sh := range shards {
		if err := sh.validate(); err != nil {
			return total, err
		}
		if _, dup := outputs[sh.Output]; dup {
			return total, fmt.Errorf("%w: output %q shared by several shards", contract.ErrInvalidInput, sh.Output)
		}
		outputs[sh.Output] = struct{}{}
	}
	if concurrency < 1 {
		concurrency = 1
	}

	term := diag.GetTerminal()
	term.RunStart(concurrency, len(shards))
	rt := logger.StartWithKV("pipeline", "run", "", map[string]string{"shards": fmt.Sprint(len(shards)), "concurrency": fmt.Sprint(concurrency)})
	t0 := time.Now()

	results := make([]Summary, len(shards))
	errs := make([]error, len(shards))
	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, sh := range shards {
		g.Go(func() error {
			term.ShardStart(sh.Output)
			start := time.Now()
			s, err := RunShard(ctx, comp, sh, logger)
			results[i] = s
			if err != nil {
				errs[i] = fmt.Errorf("shard %s: %w", sh.ID(), err)
			}
			term.ShardFinish(sh.Output, err == nil, s.Pairs, s.Skipped(), time.Since(start))
			return nil
		})
	}
	_ = g.Wait()

	for _, s := range results {
		total.Add(s)
	}
	err := errors.Join(errs...)
	term.RunFinish(err == nil, time.Since(t0))
	if err != nil {
		logger.ErrorWithKV("pipeline", string(diag.Classify(err)), "run failed", &t0, "", total.KV())
		return total, err
	}
	rt.FinishKV("run", total.Pairs, total.KV())
	logger.DebugStart("diag", "metrics", "", diag.SnapshotKV())
	return total, nil
}
