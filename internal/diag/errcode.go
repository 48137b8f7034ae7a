package diag

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"io/fs"

	"c4pairs/pkg/contract"
)

// Code 是最小错误分类代码，仅用于日志/指标汇总，与退出码解耦。
type Code string

const (
	CodeUnknown   Code = "unknown"
	CodeCancel    Code = "cancel"
	CodeInvariant Code = "invariant"
	CodeIO        Code = "io"
	// CodeInput: 数据级可恢复错误（缺失句子、非法编辑组、边界、坏行）。
	CodeInput Code = "input"
)

// Classify 只依赖哨兵错误与标准库错误类型，不做字符串匹配。
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCancel
	}
	if errors.Is(err, contract.ErrNotFound) ||
		errors.Is(err, contract.ErrMalformedEditGroup) ||
		errors.Is(err, contract.ErrInvalidBoundary) ||
		errors.Is(err, contract.ErrMalformedLine) {
		return CodeInput
	}
	if errors.Is(err, contract.ErrInvalidInput) || errors.Is(err, contract.ErrPathInvalid) {
		return CodeInvariant
	}
	var perr *fs.PathError
	if errors.As(err, &perr) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, gzip.ErrHeader) ||
		errors.Is(err, gzip.ErrChecksum) {
		return CodeIO
	}
	return CodeUnknown
}
