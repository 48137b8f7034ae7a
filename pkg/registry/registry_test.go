package registry

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"c4pairs/pkg/contract"
)

// TestStrictUnmarshal 验证严格解码逻辑。
func TestStrictUnmarshal(t *testing.T) {
	type opt struct {
		A int `json:"a"`
	}
	var o opt
	require.NoError(t, strictUnmarshal(nil, &o))
	assert.Equal(t, 0, o.A)
	require.NoError(t, strictUnmarshal(json.RawMessage(`{"a":1}`), &o))
	assert.Equal(t, 1, o.A)
	assert.Error(t, strictUnmarshal(json.RawMessage(`{"a":1,"b":2}`), &o))
}

// TestFactories 遍历注册表入口：默认选项可构造，未知字段报错。
func TestFactories(t *testing.T) {
	unknown := json.RawMessage(`{"x":1}`)
	empty := json.RawMessage(`{}`)

	_, err := Reader["fs"](empty)
	require.NoError(t, err)
	_, err = Reader["fs"](unknown)
	assert.Error(t, err)

	_, err = Applicator["splice"](empty)
	require.NoError(t, err)
	_, err = Applicator["splice"](unknown)
	assert.Error(t, err)

	_, err = Writer["fs"](json.RawMessage(`{"output_dir":"out"}`))
	require.NoError(t, err)
	_, err = Writer["fs"](unknown)
	assert.Error(t, err)

	_, err = Corpus["c4json"](json.RawMessage(`{"match":["*.json.gz"],"log_every":10}`))
	require.NoError(t, err)
	_, err = Corpus["c4json"](unknown)
	assert.Error(t, err)

	for _, name := range []string{"memory", "sqlite"} {
		_, err := Index[name](unknown)
		assert.Error(t, err, name)
	}
	_, err = Index["sqlite"](json.RawMessage(`{"path":"x.db"}`))
	assert.Error(t, err, "path is not configurable for per-shard indexes")
}

// TestOpenIndexIndependent 每次打开得到独立的空索引。
func TestOpenIndexIndependent(t *testing.T) {
	ctx := context.Background()
	for _, tc := range []struct {
		name string
		raw  json.RawMessage
	}{
		{"memory", json.RawMessage(`{"size_hint":4}`)},
		{"sqlite", json.RawMessage(`{"dir":"` + t.TempDir() + `","batch_size":2}`)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			open, err := Index[tc.name](tc.raw)
			require.NoError(t, err)
			a, err := open(ctx)
			require.NoError(t, err)
			defer a.Close()
			b, err := open(ctx)
			require.NoError(t, err)
			defer b.Close()

			h := contract.HashOf("x")
			_, err = a.Register(ctx, h, "x")
			require.NoError(t, err)
			_, err = b.Lookup(ctx, h)
			assert.ErrorIs(t, err, contract.ErrNotFound)
			got, err := a.Lookup(ctx, h)
			require.NoError(t, err)
			assert.Equal(t, "x", got)
		})
	}
}
