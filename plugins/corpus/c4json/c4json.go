package c4json

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"c4pairs/pkg/contract"
	rfs "c4pairs/plugins/reader/filesystem"
)

// Options: C4 JSON 行语料扫描选项。
type Options struct {
	// Match: 数据集目录内参与扫描的文件名模式，默认 ["*train*.json.gz"]。
	Match []string `json:"match"`
	// LogEvery: 每处理多少篇文档回报一次进度，默认 100000；<0 关闭周期回报。
	LogEvery int64 `json:"log_every"`
	// Field: 文档正文字段名，默认 "text"。
	Field string `json:"field"`
	// BufSize: 读缓冲区大小，默认 1MiB。
	BufSize int `json:"buf_size"`
}

// Corpus 按 MD5 在 C4 文档的逐行文本中查找目标句子。
type Corpus struct {
	reader   contract.Reader
	logEvery int64
	field    string
	observe  func(contract.CorpusProgress)
}

var (
	_ contract.CorpusLookup   = (*Corpus)(nil)
	_ contract.CorpusObserver = (*Corpus)(nil)
)

// errDone: 目标已全部找到，提前结束遍历。
var errDone = errors.New("all hashes found")

// New 创建语料查询器；目录遍历复用文件系统 Reader（排序、gzip 透明解压）。
func New(opts *Options) *Corpus {
	if opts == nil {
		opts = &Options{}
	}
	match := opts.Match
	if len(match) == 0 {
		match = []string{"*train*.json.gz"}
	}
	every := opts.LogEvery
	if every == 0 {
		every = 100000
	}
	field := opts.Field
	if field == "" {
		field = "text"
	}
	bsz := opts.BufSize
	if bsz <= 0 {
		bsz = 1 << 20
	}
	return &Corpus{
		reader:   rfs.New(&rfs.Options{BufSize: bsz, Match: match}),
		logEvery: every,
		field:    field,
	}
}

// Observe 注册进度回调。
func (c *Corpus) Observe(fn func(contract.CorpusProgress)) { c.observe = fn }

// Lookup 遍历 roots 下匹配的文件，命中即回调并从剩余集合移除；集合清空后提前返回。
func (c *Corpus) Lookup(ctx context.Context, roots []string, want map[contract.Hash]struct{}, yield func(contract.SentenceRecord) error) error {
	remaining := make(map[contract.Hash]struct{}, len(want))
	for h := range want {
		remaining[h] = struct{}{}
	}
	var p contract.CorpusProgress
	defer func() {
		p.Remaining = int64(len(remaining))
		c.report(p)
	}()
	if len(remaining) == 0 {
		return nil
	}
	err := c.reader.Iterate(ctx, roots, func(_ contract.FileID, rc io.ReadCloser) error {
		defer rc.Close()
		p.Files++
		return c.scanFile(ctx, rc, remaining, &p, yield)
	})
	if errors.Is(err, errDone) {
		return nil
	}
	return err
}

func (c *Corpus) scanFile(ctx context.Context, r io.Reader, remaining map[contract.Hash]struct{}, p *contract.CorpusProgress, yield func(contract.SentenceRecord) error) error {
	br := bufio.NewReader(r)
	for {
		raw, rerr := br.ReadBytes('\n')
		if rerr != nil && !errors.Is(rerr, io.EOF) {
			return rerr
		}
		if len(bytes.TrimSpace(raw)) > 0 {
			if err := c.scanDoc(raw, remaining, p, yield); err != nil {
				return err
			}
			if len(remaining) == 0 {
				return errDone
			}
			if p.Docs%1024 == 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
				}
			}
			if c.logEvery > 0 && p.Docs%c.logEvery == 0 {
				p.Remaining = int64(len(remaining))
				c.report(*p)
			}
		}
		if rerr != nil {
			return nil
		}
	}
}

func (c *Corpus) scanDoc(raw []byte, remaining map[contract.Hash]struct{}, p *contract.CorpusProgress, yield func(contract.SentenceRecord) error) error {
	p.Docs++
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(raw, &doc); err != nil {
		p.BadDocs++
		return nil
	}
	var text string
	if err := json.Unmarshal(doc[c.field], &text); err != nil {
		p.BadDocs++
		return nil
	}
	for _, line := range strings.Split(text, "\n") {
		h := contract.HashOf(line)
		if _, ok := remaining[h]; !ok {
			continue
		}
		delete(remaining, h)
		p.Found++
		if err := yield(contract.SentenceRecord{Hash: h, Text: line}); err != nil {
			return err
		}
		if len(remaining) == 0 {
			return nil
		}
	}
	return nil
}

func (c *Corpus) report(p contract.CorpusProgress) {
	if c.observe != nil {
		c.observe(p)
	}
}
