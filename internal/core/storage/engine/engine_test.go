package engine

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEngine 创建测试用引擎
// 使用 t.TempDir() 创建临时目录，测试结束后自动清理
func testEngine(t *testing.T) *Engine {
	t.Helper()

	cfg := DefaultConfig(filepath.Join(t.TempDir(), "test.db"))
	e, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestEngine_PutGetDelete(t *testing.T) {
	e := testEngine(t)

	require.NoError(t, e.Put([]byte("k"), []byte("v")))
	got, err := e.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	ok, err := e.Has([]byte("k"))
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, e.Delete([]byte("k")))
	_, err = e.Get([]byte("k"))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsNotFound(err))

	ok, err = e.Has([]byte("k"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEngine_EmptyKey(t *testing.T) {
	e := testEngine(t)

	_, err := e.Get(nil)
	assert.ErrorIs(t, err, ErrEmptyKey)
	assert.ErrorIs(t, e.Put(nil, []byte("v")), ErrEmptyKey)
}

func TestEngine_UpdateRollback(t *testing.T) {
	e := testEngine(t)

	boom := errors.New("boom")
	err := e.Update(func(txn Txn) error {
		if err := txn.Set([]byte("a"), []byte("1")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = e.Get([]byte("a"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEngine_Scan(t *testing.T) {
	e := testEngine(t)

	require.NoError(t, e.Update(func(txn Txn) error {
		for i := 0; i < 5; i++ {
			if err := txn.Set([]byte(fmt.Sprintf("a/%d", i)), []byte{byte(i)}); err != nil {
				return err
			}
		}
		return txn.Set([]byte("b/0"), []byte{9})
	}))

	var keys []string
	require.NoError(t, e.Scan([]byte("a/"), false, func(k, _ []byte) bool {
		keys = append(keys, string(k))
		return true
	}))
	assert.Equal(t, []string{"a/0", "a/1", "a/2", "a/3", "a/4"}, keys)

	keys = nil
	require.NoError(t, e.Scan([]byte("a/"), true, func(k, _ []byte) bool {
		keys = append(keys, string(k))
		return len(keys) < 2
	}))
	assert.Equal(t, []string{"a/4", "a/3"}, keys)

	assert.Equal(t, int64(2), e.Stats().Scans)
}

func TestEngine_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")

	e, err := Open(DefaultConfig(path))
	require.NoError(t, err)
	require.NoError(t, e.Put([]byte("k"), []byte("v")))
	require.NoError(t, e.Close())

	e, err = Open(DefaultConfig(path))
	require.NoError(t, err)
	defer e.Close()

	got, err := e.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestEngine_InMemory(t *testing.T) {
	e, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	require.NoError(t, e.Start())

	require.NoError(t, e.Put([]byte("k"), []byte("v")))
	got, err := e.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	_, err = e.Get([]byte("k"))
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, e.Start(), ErrClosed)
}

func TestConfig_Validate(t *testing.T) {
	assert.ErrorIs(t, Config{}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, Config{InMemory: true, ReadOnly: true}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, Config{Path: "x", GCDiscardRatio: 1}.Validate(), ErrInvalidConfig)
	assert.NoError(t, DefaultConfig("x").Validate())
}
