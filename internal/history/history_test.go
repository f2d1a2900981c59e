package history

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func answer(a string) func() (Turn, error) {
	return func() (Turn, error) { return Turn{Answer: a}, nil }
}

func TestExchange_AppendsInOrder(t *testing.T) {
	c := NewConversation()

	for i := 0; i < 3; i++ {
		turn, err := c.Exchange(fmt.Sprintf("q%d", i), answer(fmt.Sprintf("a%d", i)))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("q%d", i), turn.Question)
		assert.False(t, turn.AskedAt.IsZero())
	}

	assert.Equal(t, [][2]string{{"q0", "a0"}, {"q1", "a1"}, {"q2", "a2"}}, c.Pairs())
	assert.Equal(t, 3, c.Len())
}

func TestExchange_FailureLeavesHistoryUnchanged(t *testing.T) {
	c := FromPairs([][2]string{{"q0", "a0"}})
	before := c.Turns()

	_, err := c.Exchange("q1", func() (Turn, error) {
		return Turn{}, errors.New("generation failed")
	})
	require.Error(t, err)
	assert.Equal(t, before, c.Turns())
}

func TestTurns_ReturnsCopy(t *testing.T) {
	c := FromPairs([][2]string{{"q", "a"}})
	turns := c.Turns()
	turns[0].Answer = "changed"
	assert.Equal(t, "a", c.Turns()[0].Answer)
}

func TestExchange_SerialisesTurns(t *testing.T) {
	c := NewConversation()
	var active, maxActive atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Exchange(fmt.Sprintf("q%d", i), func() (Turn, error) {
				n := active.Add(1)
				defer active.Add(-1)
				for {
					m := maxActive.Load()
					if n <= m || maxActive.CompareAndSwap(m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				return Turn{Answer: "a"}, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive.Load())
	assert.Equal(t, 10, c.Len())
}

func TestStore(t *testing.T) {
	s := NewStore()
	c := s.Create()
	assert.Equal(t, 1, s.Len())

	got, ok := s.Get(c.ID.String())
	require.True(t, ok)
	assert.Same(t, c, got)

	_, ok = s.Get("not-a-uuid")
	assert.False(t, ok)

	assert.True(t, s.Delete(c.ID.String()))
	assert.False(t, s.Delete(c.ID.String()))
	_, ok = s.Get(c.ID.String())
	assert.False(t, ok)
}
