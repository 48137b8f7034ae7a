package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"

	_ "modernc.org/sqlite"

	"c4pairs/pkg/contract"
)

// Options 为 SQLite 索引的可选配置。
type Options struct {
	// Path: 数据库文件路径；为空时在 Dir 下创建临时文件，并在 Close 时删除。
	Path string `json:"path"`
	// Dir: 临时数据库所在目录；为空使用系统临时目录。
	Dir string `json:"dir"`
	// BatchSize: 每个写事务的最大插入条数；<=0 使用默认 10000。
	BatchSize int `json:"batch_size"`
}

const schema = `CREATE TABLE IF NOT EXISTS sentences (
	hash TEXT PRIMARY KEY,
	text TEXT NOT NULL
) WITHOUT ROWID`

// Store 是磁盘上的 Index 实现，适用于单分片句子量超出内存的场景。
// 语义与内存实现一致：INSERT OR IGNORE 保证首次出现者胜出。
type Store struct {
	db    *sql.DB
	path  string
	temp  bool
	batch int

	tx      *sql.Tx
	ins     *sql.Stmt
	pending int
	n       int
}

// New 打开（或创建）SQLite 索引。
func New(ctx context.Context, opts *Options) (*Store, error) {
	batch := 10000
	path, dir := "", ""
	if opts != nil {
		if opts.BatchSize > 0 {
			batch = opts.BatchSize
		}
		path, dir = opts.Path, opts.Dir
	}
	temp := false
	if path == "" {
		f, err := os.CreateTemp(dir, "c4pairs-index-*.db")
		if err != nil {
			return nil, err
		}
		path = f.Name()
		_ = f.Close()
		temp = true
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// 单连接：索引仅被单个分片顺序使用。
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{
		"PRAGMA journal_mode=OFF",
		"PRAGMA synchronous=OFF",
		schema,
	} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			if temp {
				_ = os.Remove(path)
			}
			return nil, fmt.Errorf("sqlite index init: %w", err)
		}
	}
	s := &Store{db: db, path: path, temp: temp, batch: batch}
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sentences").Scan(&s.n); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

var _ contract.Index = (*Store)(nil)

// Register 首次出现者胜出；重复 Hash 返回 dup=true。
func (s *Store) Register(ctx context.Context, h contract.Hash, text string) (bool, error) {
	if s.tx == nil {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return false, err
		}
		ins, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO sentences(hash, text) VALUES(?, ?)")
		if err != nil {
			_ = tx.Rollback()
			return false, err
		}
		s.tx, s.ins = tx, ins
	}
	res, err := s.ins.ExecContext(ctx, string(h), text)
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if aff == 0 {
		return true, nil
	}
	s.n++
	s.pending++
	if s.pending >= s.batch {
		return false, s.flush()
	}
	return false, nil
}

// Lookup 先提交未决写事务，再按主键查询；未命中返回 ErrNotFound。
func (s *Store) Lookup(ctx context.Context, h contract.Hash) (string, error) {
	if err := s.flush(); err != nil {
		return "", err
	}
	var text string
	err := s.db.QueryRowContext(ctx, "SELECT text FROM sentences WHERE hash = ?", string(h)).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", contract.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

func (s *Store) Len() int { return s.n }

// Close 提交剩余写入并关闭；临时库文件随之删除。
func (s *Store) Close() error {
	ferr := s.flush()
	cerr := s.db.Close()
	if s.temp {
		_ = os.Remove(s.path)
	}
	return errors.Join(ferr, cerr)
}

func (s *Store) flush() error {
	if s.tx == nil {
		return nil
	}
	_ = s.ins.Close()
	err := s.tx.Commit()
	s.tx, s.ins, s.pending = nil, nil, 0
	return err
}
