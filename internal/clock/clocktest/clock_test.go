package clocktest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManual_RunsDueCallbacksInOrder(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(start)

	var order []string
	var firedAt []time.Time
	record := func(name string) func() {
		return func() {
			order = append(order, name)
			firedAt = append(firedAt, c.Now())
		}
	}
	c.AfterFunc(3*time.Second, record("c"))
	c.AfterFunc(time.Second, record("a"))
	c.AfterFunc(time.Second, record("b"))
	c.AfterFunc(time.Minute, record("late"))

	c.Advance(5 * time.Second)

	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, start.Add(time.Second), firedAt[0])
	assert.Equal(t, start.Add(3*time.Second), firedAt[2])
	assert.Equal(t, start.Add(5*time.Second), c.Now())
	assert.Equal(t, 1, c.Pending())
}

func TestManual_ChainedCallbacks(t *testing.T) {
	c := New(time.Unix(0, 0))
	n := 0
	var tick func()
	tick = func() {
		n++
		c.AfterFunc(time.Second, tick)
	}
	c.AfterFunc(time.Second, tick)

	c.Advance(3 * time.Second)
	assert.Equal(t, 3, n)
}

func TestManual_Stop(t *testing.T) {
	c := New(time.Unix(0, 0))
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())
	c.Advance(time.Minute)
	assert.False(t, fired)
	assert.Zero(t, c.Pending())
}
