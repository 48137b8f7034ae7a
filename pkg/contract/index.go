package contract

import "context"

// Index: Hash → clean 句子文本的解析器（每个分片构建一次）。
// 约束：
//  1. Register 首次出现者胜出，重复 Hash 被忽略并以 dup=true 告知调用方；
//  2. Lookup 未命中返回 ErrNotFound，调用方跳过该组并继续；
//  3. 期望 O(1) 查找；实现不得在内部起并发。
type Index interface {
	Register(ctx context.Context, h Hash, text string) (dup bool, err error)
	Lookup(ctx context.Context, h Hash) (string, error)
	Len() int
	Close() error
}
