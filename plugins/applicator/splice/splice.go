package splice

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"c4pairs/pkg/contract"
)

// Options: 预留占位，拼接应用器当前无需配置。
type Options struct{}

type applicator struct{}

// New 从原样 JSON Options 创建拼接应用器；未知字段报错。
func New(raw json.RawMessage) (contract.Applicator, error) {
	if len(raw) > 0 {
		var opts Options
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&opts); err != nil {
			return nil, fmt.Errorf("splice options: %w", err)
		}
	}
	return &applicator{}, nil
}

// Apply 排序并校验编辑组后，从右向左把替换写入新缓冲区。
// clean 的字节序列视为只读：未触及区间与替换文本按尾部向头部的顺序拷入结果，
// 高偏移编辑先落位，低偏移编辑的原始偏移始终有效。
func (a *applicator) Apply(clean string, edits []contract.Edit) (string, error) {
	if len(edits) == 0 {
		return clean, nil
	}
	sorted := contract.SortEdits(edits)
	if err := contract.ValidateGroup(sorted, len(clean)); err != nil {
		return "", err
	}
	for i, e := range sorted {
		if !onBoundary(clean, e.Start) || !onBoundary(clean, e.End) {
			return "", fmt.Errorf("%w: edit %d range [%d,%d) splits a code point", contract.ErrInvalidBoundary, i, e.Start, e.End)
		}
	}

	size := len(clean)
	for _, e := range sorted {
		size += len(e.Replacement) - (e.End - e.Start)
	}
	out := make([]byte, size)
	// w: 结果缓冲写指针（自尾向头）；r: 尚未拷贝的原文右边界。
	w, r := size, len(clean)
	for i := len(sorted) - 1; i >= 0; i-- {
		e := sorted[i]
		w -= r - e.End
		copy(out[w:], clean[e.End:r])
		w -= len(e.Replacement)
		copy(out[w:], e.Replacement)
		r = e.Start
	}
	copy(out[:w], clean[:r])

	if !utf8.Valid(out) {
		return "", fmt.Errorf("%w: %d edits on %d bytes", contract.ErrInvalidBoundary, len(sorted), len(clean))
	}
	return string(out), nil
}

// onBoundary: off 位于码点起始处或串尾。
func onBoundary(s string, off int) bool {
	return off >= len(s) || utf8.RuneStart(s[off])
}

var _ contract.Applicator = (*applicator)(nil)
