package safemap

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	name string
}

func TestNewSafeMap(t *testing.T) {
	m := NewSafeMap[uint32, *entry]()
	require.NotNil(t, m)
	assert.Equal(t, 0, m.Len())

	v, ok := m.Load(1)
	assert.False(t, ok)
	assert.Nil(t, v)
}

func TestSafeMap_Store_Load(t *testing.T) {
	m := NewSafeMap[string, int]()

	t.Run("store and load returns value", func(t *testing.T) {
		m.Store("a", 1)
		v, ok := m.Load("a")
		assert.True(t, ok)
		assert.Equal(t, 1, v)
	})

	t.Run("overwrite returns new value", func(t *testing.T) {
		m.Store("a", 2)
		v, ok := m.Load("a")
		assert.True(t, ok)
		assert.Equal(t, 2, v)
	})

	t.Run("load missing key returns zero value and false", func(t *testing.T) {
		v, ok := m.Load("nonexistent")
		assert.False(t, ok)
		assert.Equal(t, 0, v)
	})
}

func TestSafeMap_Delete_Has(t *testing.T) {
	m := NewSafeMap[string, int]()
	m.Store("a", 1)
	m.Store("b", 2)

	m.Delete("a")
	assert.False(t, m.Has("a"))
	assert.True(t, m.Has("b"))

	m.Delete("nonexistent")
	assert.Equal(t, 1, m.Len())
}

func TestSafeMap_CompareAndDelete(t *testing.T) {
	m := NewSafeMap[uint32, *entry]()
	old := &entry{name: "old"}
	replacement := &entry{name: "replacement"}

	t.Run("deletes matching entry", func(t *testing.T) {
		m.Store(1, old)
		assert.True(t, m.CompareAndDelete(1, old))
		assert.False(t, m.Has(1))
	})

	t.Run("keeps replaced entry", func(t *testing.T) {
		m.Store(1, old)
		m.Store(1, replacement)
		assert.False(t, m.CompareAndDelete(1, old))

		v, ok := m.Load(1)
		require.True(t, ok)
		assert.Same(t, replacement, v)
	})

	t.Run("missing key", func(t *testing.T) {
		assert.False(t, m.CompareAndDelete(99, old))
	})
}

func TestSafeMap_Range(t *testing.T) {
	m := NewSafeMap[string, int]()
	m.Store("a", 1)
	m.Store("b", 2)
	m.Store("c", 3)

	t.Run("iterates all entries", func(t *testing.T) {
		seen := make(map[string]int)
		m.Range(func(k string, v int) bool {
			seen[k] = v
			return true
		})
		assert.Equal(t, map[string]int{"a": 1, "b": 2, "c": 3}, seen)
	})

	t.Run("stops when f returns false", func(t *testing.T) {
		count := 0
		m.Range(func(string, int) bool {
			count++
			return count < 2
		})
		assert.Equal(t, 2, count)
	})

	t.Run("deleting during range", func(t *testing.T) {
		m.Range(func(k string, _ int) bool {
			m.Delete(k)
			return true
		})
		assert.Equal(t, 0, m.Len())
	})
}

func TestSafeMap_Concurrent(t *testing.T) {
	m := NewSafeMap[int, int]()
	const goroutines = 50
	const opsPerGoroutine = 500

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(id int) {
			defer wg.Done()
			for i := 0; i < opsPerGoroutine; i++ {
				key := id*opsPerGoroutine + i
				m.Store(key, key)
				m.Load(key)
			}
		}(g)
	}
	wg.Wait()
	assert.Equal(t, goroutines*opsPerGoroutine, m.Len())

	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(id int) {
			defer wg.Done()
			for i := 0; i < opsPerGoroutine; i++ {
				key := id*opsPerGoroutine + i
				assert.True(t, m.CompareAndDelete(key, key))
			}
		}(g)
	}
	wg.Wait()
	assert.Equal(t, 0, m.Len())
}
