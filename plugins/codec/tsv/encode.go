package tsv

import (
	"bufio"
	"io"

	"c4pairs/pkg/contract"
)

// Encoder 以行为单位写出 TSV；调用方在结束时必须 Flush。
type Encoder struct {
	bw *bufio.Writer
	n  int64
}

// NewEncoder 创建带缓冲的编码器；bufSize<=0 使用 64KiB。
func NewEncoder(w io.Writer, bufSize int) *Encoder {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	return &Encoder{bw: bufio.NewWriterSize(w, bufSize)}
}

// WritePair 写出 corrupted<TAB>clean。
func (e *Encoder) WritePair(p contract.SentencePair) error {
	return e.row(p.Corrupted, p.Clean)
}

// WriteSentence 写出 hash<TAB>text。
func (e *Encoder) WriteSentence(r contract.SentenceRecord) error {
	return e.row(string(r.Hash), r.Text)
}

func (e *Encoder) row(a, b string) error {
	if _, err := e.bw.WriteString(a); err != nil {
		return err
	}
	if err := e.bw.WriteByte('\t'); err != nil {
		return err
	}
	if _, err := e.bw.WriteString(b); err != nil {
		return err
	}
	if err := e.bw.WriteByte('\n'); err != nil {
		return err
	}
	e.n++
	return nil
}

// Rows 返回已写出的行数。
func (e *Encoder) Rows() int64 { return e.n }

func (e *Encoder) Flush() error { return e.bw.Flush() }
