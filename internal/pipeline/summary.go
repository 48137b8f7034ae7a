package pipeline

import "strconv"

// Summary: 单个分片（或多分片累加）的诊断计数，随结果返回，不使用全局状态。
type Summary struct {
	Shards int64

	SentenceLines          int64 // 句子流非空行
	MalformedSentenceLines int64
	Sentences              int64 // 注册进索引的唯一 Hash
	DuplicateSentences     int64 // 重复 Hash（首个胜出）

	EditLines          int64
	MalformedEditLines int64
	Groups             int64 // 按 Hash 聚合后的编辑组

	Pairs           int64
	NotFound        int64
	MalformedGroups int64
	InvalidBoundary int64
}

// Add 累加另一份计数。
func (s *Summary) Add(o Summary) {
	s.Shards += o.Shards
	s.SentenceLines += o.SentenceLines
	s.MalformedSentenceLines += o.MalformedSentenceLines
	s.Sentences += o.Sentences
	s.DuplicateSentences += o.DuplicateSentences
	s.EditLines += o.EditLines
	s.MalformedEditLines += o.MalformedEditLines
	s.Groups += o.Groups
	s.Pairs += o.Pairs
	s.NotFound += o.NotFound
	s.MalformedGroups += o.MalformedGroups
	s.InvalidBoundary += o.InvalidBoundary
}

// Skipped 被跳过的编辑组总数。
func (s Summary) Skipped() int64 { return s.NotFound + s.MalformedGroups + s.InvalidBoundary }

// MalformedLines 两条输入流中被跳过的坏行总数。
func (s Summary) MalformedLines() int64 { return s.MalformedSentenceLines + s.MalformedEditLines }

// KV 供日志 kv 字段使用。
func (s Summary) KV() map[string]string {
	f := func(v int64) string { return strconv.FormatInt(v, 10) }
	return map[string]string{
		"shards":               f(s.Shards),
		"sentences":            f(s.Sentences),
		"duplicate_sentences":  f(s.DuplicateSentences),
		"edit_lines":           f(s.EditLines),
		"groups":               f(s.Groups),
		"pairs":                f(s.Pairs),
		"not_found":            f(s.NotFound),
		"malformed_edit_group": f(s.MalformedGroups),
		"invalid_boundary":     f(s.InvalidBoundary),
		"malformed_lines":      f(s.MalformedLines()),
	}
}
