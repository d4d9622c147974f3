package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/searchsync/pkg/signals"
)

func TestRegistry_New(t *testing.T) {
	r := New("comment", "article", " ", "article")

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []signals.RecordType{"article", "comment"}, r.Types())
	assert.True(t, r.IsManaged("article"))
	assert.False(t, r.IsManaged("user"))
}

func TestRegistry_AddRemove(t *testing.T) {
	r := New()

	assert.True(t, r.Add("article"))
	assert.False(t, r.Add("article"))
	assert.False(t, r.Add(""))
	assert.True(t, r.IsManaged("article"))

	assert.True(t, r.Remove("article"))
	assert.False(t, r.Remove("article"))
	assert.False(t, r.IsManaged("article"))
	assert.Empty(t, r.Types())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Add("article")
		}()
		go func() {
			defer wg.Done()
			_ = r.IsManaged("article")
		}()
	}
	wg.Wait()

	assert.True(t, r.IsManaged("article"))
}
