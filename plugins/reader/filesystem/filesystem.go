package filesystem

import (
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"c4pairs/pkg/contract"
)

// Options 为 FileSystem Reader 的可选配置（最小必要）。
type Options struct {
	// BufSize 为读缓冲区大小（字节）。默认 64KiB。
	BufSize int `json:"buf_size"`
	// ExcludeDirNames: 在扫描目录时跳过这些目录名（基名完全匹配，大小写不敏感）。
	ExcludeDirNames []string `json:"exclude_dir_names"`
	// Match: 目录扫描时仅保留基名匹配任一模式的文件（path.Match 语法）。
	// 为空表示不过滤；仅影响目录递归，不影响显式给出的单文件 root。
	Match []string `json:"match"`
	// Gunzip: 对 .gz 后缀透明解压。nil 视为 true。
	Gunzip *bool `json:"gunzip,omitempty"`
}

// FileSystem 实现基于文件系统与 STDIN 的 Reader。
type FileSystem struct {
	bufSize int
	// 以小写形式保存，比较时按小写基名匹配。
	excludeDir map[string]struct{}
	match      []string
	gunzip     bool
}

// New 创建 FileSystem Reader。
func New(opts *Options) *FileSystem {
	const defaultBuf = 64 * 1024
	b := defaultBuf
	if opts != nil && opts.BufSize > 0 {
		b = opts.BufSize
	}
	ex := make(map[string]struct{})
	var match []string
	gz := true
	if opts != nil {
		for _, name := range opts.ExcludeDirNames {
			if name == "" {
				continue
			}
			ex[strings.ToLower(name)] = struct{}{}
		}
		for _, m := range opts.Match {
			if m != "" {
				match = append(match, m)
			}
		}
		if opts.Gunzip != nil {
			gz = *opts.Gunzip
		}
	}
	return &FileSystem{bufSize: b, excludeDir: ex, match: match, gunzip: gz}
}

var _ contract.Reader = (*FileSystem)(nil)

// Open 打开单个输入流；"-" 为 STDIN（Close 不关闭进程的 STDIN）。
func (r *FileSystem) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if p == "-" {
		return newBufferedCloser(io.NopCloser(os.Stdin), r.bufSize), nil
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	return r.wrap(p, f)
}

// Iterate 遍历 roots，按稳定顺序对每个常规文件调用 yield。
// 支持 roots 仅包含 "-" 作为 STDIN。
func (r *FileSystem) Iterate(ctx context.Context, roots []string, yield func(fileID contract.FileID, rc io.ReadCloser) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if len(roots) == 1 && roots[0] == "-" {
		return yield(contract.FileID("stdin"), newBufferedCloser(io.NopCloser(os.Stdin), r.bufSize))
	}
	if len(roots) == 0 {
		return errors.New("no input roots")
	}
	for _, s := range roots {
		if s == "-" {
			return errors.New("stdin '-' cannot be mixed with other roots")
		}
	}

	for _, root := range roots {
		if err := r.iterateOne(ctx, root, yield); err != nil {
			return err
		}
	}
	return nil
}

func (r *FileSystem) iterateOne(ctx context.Context, root string, yield func(contract.FileID, io.ReadCloser) error) error {
	info, err := os.Lstat(root)
	if err != nil {
		return err
	}
	// 仅跟随到常规文件；目录符号链接不跟随（忽略）
	if info.Mode()&os.ModeSymlink != 0 {
		t, err := os.Stat(root)
		if err != nil {
			return err
		}
		if !t.Mode().IsRegular() {
			return nil
		}
		return r.yieldFile(root, yield)
	}
	if info.IsDir() {
		return r.walkDir(ctx, root, yield)
	}
	if !info.Mode().IsRegular() {
		return nil
	}
	return r.yieldFile(root, yield)
}

func (r *FileSystem) walkDir(ctx context.Context, dir string, yield func(contract.FileID, io.ReadCloser) error) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	// 稳定顺序：字典序
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	// 先目录（不跟随目录符号链接）
	for _, e := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !e.IsDir() {
			continue
		}
		if _, skip := r.excludeDir[strings.ToLower(e.Name())]; skip {
			continue
		}
		if err := r.walkDir(ctx, filepath.Join(dir, e.Name()), yield); err != nil {
			return err
		}
	}
	// 再文件（允许指向常规文件的符号链接）
	for _, e := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if e.IsDir() || !r.matches(e.Name()) {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if e.Type()&os.ModeSymlink != 0 {
			t, err := os.Stat(p)
			if err != nil {
				return err
			}
			if !t.Mode().IsRegular() {
				continue
			}
		} else if !e.Type().IsRegular() {
			// 设备、FIFO 等跳过
			continue
		}
		if err := r.yieldFile(p, yield); err != nil {
			return err
		}
	}
	return nil
}

func (r *FileSystem) matches(name string) bool {
	if len(r.match) == 0 {
		return true
	}
	for _, m := range r.match {
		if ok, _ := path.Match(m, name); ok {
			return true
		}
	}
	return false
}

func (r *FileSystem) yieldFile(p string, yield func(contract.FileID, io.ReadCloser) error) error {
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	rc, err := r.wrap(p, f)
	if err != nil {
		return err
	}
	if err := yield(contract.NormalizeFileID(p), rc); err != nil {
		_ = rc.Close()
		return err
	}
	return nil
}

// wrap 叠加缓冲与可选的 gzip 解压；失败时关闭底层文件。
func (r *FileSystem) wrap(p string, f *os.File) (io.ReadCloser, error) {
	brc := newBufferedCloser(f, r.bufSize)
	if !r.gunzip || !strings.HasSuffix(strings.ToLower(p), ".gz") {
		return brc, nil
	}
	zr, err := gzip.NewReader(brc)
	if err != nil {
		_ = brc.Close()
		return nil, err
	}
	return newBufferedCloser(&gzipCloser{Reader: zr, c: brc}, r.bufSize), nil
}

// bufferedCloser 将 bufio.Reader 与底层 Closer 组合为 ReadCloser。
type bufferedCloser struct {
	*bufio.Reader
	c io.Closer
}

func newBufferedCloser(c io.ReadCloser, bufSize int) *bufferedCloser {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	return &bufferedCloser{Reader: bufio.NewReaderSize(c, bufSize), c: c}
}

func (b *bufferedCloser) Close() error { return b.c.Close() }

// gzipCloser 关闭解压器后再关闭底层文件。
type gzipCloser struct {
	*gzip.Reader
	c io.Closer
}

func (g *gzipCloser) Close() error {
	return errors.Join(g.Reader.Close(), g.c.Close())
}
