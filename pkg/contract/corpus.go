package contract

import "context"

// CorpusLookup: 外部语料查询服务。给定 Hash 集合，回调命中的句子记录。
// 可能少于请求数量：缺失属于正常的上游漂移，不视为错误。
// 实现不得修改调用方传入的 want。
type CorpusLookup interface {
	Lookup(ctx context.Context, roots []string, want map[Hash]struct{}, yield func(SentenceRecord) error) error
}

// CorpusProgress: 语料扫描进度快照。
type CorpusProgress struct {
	Files     int64
	Docs      int64
	BadDocs   int64 // 无法解码而跳过的文档行
	Found     int64
	Remaining int64
}

// CorpusObserver: 可选接口；实现方在扫描过程中周期性回报进度（最后一次为终值）。
type CorpusObserver interface {
	Observe(fn func(CorpusProgress))
}
