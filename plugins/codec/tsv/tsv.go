package tsv

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"c4pairs/pkg/contract"
)

// Stats: 单个流的扫描计数。
type Stats struct {
	Lines     int64 // 非空行数
	Malformed int64 // 因列数/偏移/Hash 非法而跳过的行数
}

// ParseEditLine 解析一行编辑：hash<TAB>start<TAB>end[<TAB>replacement]。
// 最多切分为 4 列，replacement 内的 TAB 原样保留；缺省 replacement 视为空串。
// 组级约束（End >= Start、越界、重叠）不在此处判定，由 Applicator 统一处理。
func ParseEditLine(line string) (contract.Edit, error) {
	cols := strings.SplitN(line, "\t", 4)
	if len(cols) < 3 {
		return contract.Edit{}, fmt.Errorf("%w: want >=3 columns, got %d", contract.ErrMalformedLine, len(cols))
	}
	h, err := contract.ParseHash(cols[0])
	if err != nil {
		return contract.Edit{}, fmt.Errorf("%w: hash %q", contract.ErrMalformedLine, cols[0])
	}
	start, err := strconv.Atoi(cols[1])
	if err != nil || start < 0 {
		return contract.Edit{}, fmt.Errorf("%w: start %q", contract.ErrMalformedLine, cols[1])
	}
	end, err := strconv.Atoi(cols[2])
	if err != nil {
		return contract.Edit{}, fmt.Errorf("%w: end %q", contract.ErrMalformedLine, cols[2])
	}
	e := contract.Edit{Hash: h, Start: start, End: end}
	if len(cols) == 4 {
		e.Replacement = cols[3]
	}
	return e, nil
}

// ParseSentenceLine 解析一行句子：hash<TAB>text（按首个 TAB 切分）。
func ParseSentenceLine(line string) (contract.SentenceRecord, error) {
	i := strings.IndexByte(line, '\t')
	if i < 0 {
		return contract.SentenceRecord{}, fmt.Errorf("%w: missing tab", contract.ErrMalformedLine)
	}
	h, err := contract.ParseHash(line[:i])
	if err != nil {
		return contract.SentenceRecord{}, fmt.Errorf("%w: hash %q", contract.ErrMalformedLine, line[:i])
	}
	return contract.SentenceRecord{Hash: h, Text: line[i+1:]}, nil
}

// ScanEdits 逐行解析编辑流并回调；非法行计数后跳过，yield 的错误原样上抛。
func ScanEdits(ctx context.Context, r io.Reader, yield func(contract.Edit) error) (Stats, error) {
	return scan(ctx, r, func(line string) error {
		e, err := ParseEditLine(line)
		if err != nil {
			return err
		}
		return yield(e)
	})
}

// ScanSentences 逐行解析句子流并回调；非法行计数后跳过。
func ScanSentences(ctx context.Context, r io.Reader, yield func(contract.SentenceRecord) error) (Stats, error) {
	return scan(ctx, r, func(line string) error {
		rec, err := ParseSentenceLine(line)
		if err != nil {
			return err
		}
		return yield(rec)
	})
}

// ScanHashes 仅提取编辑流首列 Hash 集合（语料查询的输入）。
func ScanHashes(ctx context.Context, r io.Reader) (map[contract.Hash]struct{}, Stats, error) {
	set := make(map[contract.Hash]struct{})
	st, err := scan(ctx, r, func(line string) error {
		col := line
		if i := strings.IndexByte(line, '\t'); i >= 0 {
			col = line[:i]
		}
		h, err := contract.ParseHash(col)
		if err != nil {
			return err
		}
		set[h] = struct{}{}
		return nil
	})
	return set, st, err
}

// scan 不限行长：使用 bufio.Reader.ReadString 而非 Scanner 的 64KiB 上限。
// 行尾 "\n" 与可选的 "\r" 被去除（CRLF→LF）；空行忽略且不计数。
func scan(ctx context.Context, r io.Reader, handle func(line string) error) (Stats, error) {
	var st Stats
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReaderSize(r, 64*1024)
	}
	for {
		if st.Lines%4096 == 0 {
			select {
			case <-ctx.Done():
				return st, ctx.Err()
			default:
			}
		}
		line, err := br.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return st, err
		}
		eof := err != nil
		line = strings.TrimSuffix(line, "\n")
		line = strings.TrimSuffix(line, "\r")
		if line != "" {
			st.Lines++
			if herr := handle(line); herr != nil {
				if !errors.Is(herr, contract.ErrMalformedLine) {
					return st, herr
				}
				st.Malformed++
			}
		}
		if eof {
			return st, nil
		}
	}
}
