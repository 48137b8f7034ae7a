package registry

import (
	"bytes"
	"context"
	"encoding/json"

	"c4pairs/pkg/contract"
	"c4pairs/plugins/applicator/splice"
	"c4pairs/plugins/corpus/c4json"
	"c4pairs/plugins/index/memory"
	"c4pairs/plugins/index/sqlite"
	rfs "c4pairs/plugins/reader/filesystem"
	wfs "c4pairs/plugins/writer/filesystem"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// OpenIndex 每个分片调用一次，返回新的空索引。
type OpenIndex func(ctx context.Context) (contract.Index, error)

// NewReader 工厂签名：接收原样 JSON Options。
type NewReader func(raw json.RawMessage) (contract.Reader, error)

// NewIndex 工厂签名：返回按分片打开索引的函数。
type NewIndex func(raw json.RawMessage) (OpenIndex, error)

// NewApplicator 工厂签名。
type NewApplicator func(raw json.RawMessage) (contract.Applicator, error)

// NewWriter 工厂签名。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// NewCorpus 工厂签名。
type NewCorpus func(raw json.RawMessage) (contract.CorpusLookup, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 文件系统/STDIN Reader，.gz 透明解压
	"fs": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts), nil
	},
}

// sqliteOptions 不暴露 Path：多分片并发时每个分片必须拥有独立的数据库文件。
type sqliteOptions struct {
	Dir       string `json:"dir"`
	BatchSize int    `json:"batch_size"`
}

// Index 工厂注册表。
var Index = map[string]NewIndex{
	// memory: Go map，默认
	"memory": func(raw json.RawMessage) (OpenIndex, error) {
		var opts memory.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return func(context.Context) (contract.Index, error) { return memory.New(&opts), nil }, nil
	},
	// sqlite: 磁盘临时库，单分片句子量超出内存时使用
	"sqlite": func(raw json.RawMessage) (OpenIndex, error) {
		var opts sqliteOptions
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return func(ctx context.Context) (contract.Index, error) {
			s, err := sqlite.New(ctx, &sqlite.Options{Dir: opts.Dir, BatchSize: opts.BatchSize})
			if err != nil {
				return nil, err
			}
			return s, nil
		}, nil
	},
}

// Applicator 工厂注册表。
var Applicator = map[string]NewApplicator{
	// splice: 排序、校验后自右向左拼接到新缓冲
	"splice": func(raw json.RawMessage) (contract.Applicator, error) { return splice.New(raw) },
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（原子替换可配置，.gz 压缩）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return wfs.New(&opts)
	},
}

// Corpus 工厂注册表。
var Corpus = map[string]NewCorpus{
	// c4json: C4 *train*.json.gz 文档逐行 MD5 匹配
	"c4json": func(raw json.RawMessage) (contract.CorpusLookup, error) {
		var opts c4json.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return c4json.New(&opts), nil
	},
}
