package config

import "encoding/json"

// DefaultTemplateConfig 返回一个可运行的默认配置模板：
// - C4_200M 发布布局：10 个分片，{shard} 展开为 00000-of-00010 等；
// - 组件名采用仓库内置实现；
// - 选项给出全部键与中性默认值。
func DefaultTemplateConfig() Config {
	d := Defaults()
	cfg := Config{
		Shards: []Shard{{
			Sentences: "target_sentences.tsv-{shard}",
			Edits:     "edits.tsv-{shard}",
			Output:    "sentence_pairs.tsv-{shard}",
		}},
		NumShards:   10,
		Concurrency: 4,
		Logging:     Logging{Level: "info"},
		Components:  d.Components,
	}
	cfg.Options.Reader = json.RawMessage(`{
  "buf_size": 65536,
  "exclude_dir_names": [],
  "match": [],
  "gunzip": true
}`)
	cfg.Options.Index = json.RawMessage(`{
  "size_hint": 0
}`)
	cfg.Options.Applicator = json.RawMessage(`{}`)
	cfg.Options.Writer = json.RawMessage(`{
  "output_dir": "",
  "atomic": true,
  "gzip": true,
  "perm_file": 0,
  "perm_dir": 0,
  "buf_size": 65536
}`)
	cfg.Options.Corpus = json.RawMessage(`{
  "match": ["*train*.json.gz"],
  "log_every": 100000,
  "field": "text",
  "buf_size": 1048576
}`)
	return cfg
}
