package contract

import "errors"

// 单条记录/单个编辑组级别的错误分类。均可在本地恢复（跳过并计数），不致命。
var (
	// ErrNotFound: 编辑组引用的 Hash 在句子流中不存在（上游语料漂移或被过滤）。
	ErrNotFound = errors.New("sentence not found")
	// ErrMalformedEditGroup: 组内编辑重叠、End < Start 或越过句子长度；整组丢弃。
	ErrMalformedEditGroup = errors.New("malformed edit group")
	// ErrInvalidBoundary: 编辑边界切开多字节 UTF-8 码点，结果无法解码；该句对丢弃。
	ErrInvalidBoundary = errors.New("invalid utf-8 boundary")
	// ErrMalformedLine: 输入行列数不符、偏移非数字或 Hash 非法；按行跳过。
	ErrMalformedLine = errors.New("malformed line")
)

// Writer/路径相关最小错误分类。
var (
	// ErrPathInvalid: 目标标识映射为无效/越界路径（例如绝对路径或 '..' 逃逸）。
	ErrPathInvalid = errors.New("path invalid")
	// ErrInvalidInput: 调用方传入的参数不满足前置条件。
	ErrInvalidInput = errors.New("invalid input")
)
