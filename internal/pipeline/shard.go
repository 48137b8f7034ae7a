package pipeline

import (
	"fmt"
	"strings"

	"c4pairs/pkg/contract"
)

// Placeholder 为分片路径模板中的序号占位符。
const Placeholder = "{shard}"

// Shard: 一个分片的三条流。
type Shard struct {
	Sentences string `json:"sentences"`
	Edits     string `json:"edits"`
	Output    string `json:"output"`
}

// ID 用于日志/终端展示。
func (s Shard) ID() string { return s.Edits }

func (s Shard) validate() error {
	if strings.TrimSpace(s.Sentences) == "" || strings.TrimSpace(s.Edits) == "" || strings.TrimSpace(s.Output) == "" {
		return fmt.Errorf("%w: shard needs sentences, edits and output", contract.ErrInvalidInput)
	}
	if s.Sentences == "-" && s.Edits == "-" {
		return fmt.Errorf("%w: sentences and edits cannot both read stdin", contract.ErrInvalidInput)
	}
	if s.Output != "-" && (s.Output == s.Sentences || s.Output == s.Edits) {
		return fmt.Errorf("%w: output %q would overwrite an input", contract.ErrInvalidInput, s.Output)
	}
	return nil
}

// ExpandShards 将模板展开为 n 个分片，序号格式 %05d-of-%05d（C4_200M 发布文件命名）。
// 模板含 {shard} 时原位替换，否则以 "-" 连接到末尾；n<=0 表示单分片、模板原样使用。
func ExpandShards(tmpl Shard, n int) ([]Shard, error) {
	if n <= 0 {
		for _, p := range []string{tmpl.Sentences, tmpl.Edits, tmpl.Output} {
			if strings.Contains(p, Placeholder) {
				return nil, fmt.Errorf("%w: %s in %q requires a shard count", contract.ErrInvalidInput, Placeholder, p)
			}
		}
		return []Shard{tmpl}, nil
	}
	if tmpl.Output == "-" || tmpl.Sentences == "-" || tmpl.Edits == "-" {
		return nil, fmt.Errorf("%w: stdio cannot be sharded", contract.ErrInvalidInput)
	}
	out := make([]Shard, n)
	for i := 0; i < n; i++ {
		suffix := fmt.Sprintf("%05d-of-%05d", i, n)
		out[i] = Shard{
			Sentences: expand(tmpl.Sentences, suffix),
			Edits:     expand(tmpl.Edits, suffix),
			Output:    expand(tmpl.Output, suffix),
		}
	}
	return out, nil
}

func expand(p, suffix string) string {
	if strings.Contains(p, Placeholder) {
		return strings.ReplaceAll(p, Placeholder, suffix)
	}
	return p + "-" + suffix
}
