package config

import (
	"encoding/json"
)

// Config: 运行期只读配置（一次解析，运行期不变）。
// 键使用 snake_case；未知字段在解析期失败（JSON 与 YAML 一致）。
type Config struct {
	// Shards: 分片三元组；路径可含 {shard} 占位符，配合 NumShards 展开。
	Shards []Shard `json:"shards"`
	// NumShards: >0 时对每个 Shards 条目展开为 NumShards 个分片（-%05d-of-%05d）。
	NumShards   int     `json:"num_shards"`
	Concurrency int     `json:"concurrency"`
	Logging     Logging `json:"logging"`

	// 组件名选择（空则使用默认名）。
	Components Components `json:"components"`

	// 各组件 Options 子树，原样 JSON 传入工厂。
	Options Options `json:"options"`
}

// Shard: 一个分片（或分片模板）的三条流。"-" 表示 STDIN/STDOUT。
type Shard struct {
	Sentences string `json:"sentences"`
	Edits     string `json:"edits"`
	Output    string `json:"output"`
}

// Logging: 仅保留日志等级可配置；输出路径与轮转策略为固定默认。
type Logging struct {
	Level string `json:"level"`
}

// Components: 组件名选择（注册表中的实现名）。
type Components struct {
	Reader     string `json:"reader"`
	Index      string `json:"index"`
	Applicator string `json:"applicator"`
	Writer     string `json:"writer"`
	Corpus     string `json:"corpus"`
}

// Options: 各组件的原样 JSON Options。
type Options struct {
	Reader     json.RawMessage `json:"reader,omitempty"`
	Index      json.RawMessage `json:"index,omitempty"`
	Applicator json.RawMessage `json:"applicator,omitempty"`
	Writer     json.RawMessage `json:"writer,omitempty"`
	Corpus     json.RawMessage `json:"corpus,omitempty"`
}
