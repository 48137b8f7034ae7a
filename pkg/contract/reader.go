package contract

import (
	"context"
	"io"
)

// Reader: 输入源抽象（文件/目录/STDIN）。
// 约束：
// 1) 流式读取，不做业务解析，仅提供字节流（.gz 透明解压）；
// 2) FileID 稳定且去平台差异化；
// 3) 不在内部起并发。
type Reader interface {
	// Open 打开单个流；"-" 表示 STDIN。
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	// Iterate 按稳定顺序遍历 roots 下的常规文件并回调。
	Iterate(ctx context.Context, roots []string, yield func(fileID FileID, r io.ReadCloser) error) error
}
