package memory

import (
	"context"

	"c4pairs/pkg/contract"
)

// Options 为内存索引的可选配置。
type Options struct {
	// SizeHint: 预分配的条目数；<=0 使用默认。
	SizeHint int `json:"size_hint"`
}

// Map 是基于 Go map 的 Index 实现：单分片、单线程使用，O(1) 期望查找。
type Map struct {
	m map[contract.Hash]string
}

// New 创建内存索引。
func New(opts *Options) *Map {
	n := 0
	if opts != nil && opts.SizeHint > 0 {
		n = opts.SizeHint
	}
	return &Map{m: make(map[contract.Hash]string, n)}
}

var _ contract.Index = (*Map)(nil)

// Register 首次出现者胜出；重复 Hash 返回 dup=true 且不覆盖。
func (x *Map) Register(_ context.Context, h contract.Hash, text string) (bool, error) {
	if _, ok := x.m[h]; ok {
		return true, nil
	}
	x.m[h] = text
	return false, nil
}

// Lookup 未命中返回 ErrNotFound。
func (x *Map) Lookup(_ context.Context, h contract.Hash) (string, error) {
	text, ok := x.m[h]
	if !ok {
		return "", contract.ErrNotFound
	}
	return text, nil
}

func (x *Map) Len() int { return len(x.m) }

// Close 释放映射，便于分片结束后尽早回收内存。
func (x *Map) Close() error {
	x.m = nil
	return nil
}
