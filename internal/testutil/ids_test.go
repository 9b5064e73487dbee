package testutil

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceGenerator(t *testing.T) {
	gen := NewSequenceGenerator("ord")

	assert.Equal(t, "ord-1", gen.Generate())
	assert.Equal(t, "ord-2", gen.Generate())

	gen.Reset()
	assert.Equal(t, "ord-1", gen.Generate())
}

func TestSequenceGenerator_DefaultPrefix(t *testing.T) {
	assert.Equal(t, "id-1", NewSequenceGenerator("").Generate())
}

func TestSequenceGenerator_ThreadSafe(t *testing.T) {
	gen := NewSequenceGenerator("n")
	const numGoroutines = 100

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[string]bool)
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			id := gen.Generate()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, seen, numGoroutines, "no duplicates")
}
