package timeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSteps(t *testing.T) {
	s := New(2003, 2023)
	assert.Equal(t, 2003, s.Year)
	assert.False(t, s.Playing)

	s = s.Prev()
	assert.Equal(t, 2003, s.Year)

	s = s.Next().Next()
	assert.Equal(t, 2005, s.Year)

	s = s.Set(1990)
	assert.Equal(t, 2003, s.Year)
	s = s.Set(2100)
	assert.Equal(t, 2023, s.Year)

	s = s.Toggle()
	assert.True(t, s.Playing)
	s = s.Next()
	assert.Equal(t, 2023, s.Year)
	assert.False(t, s.Playing)
	assert.True(t, s.Finished)

	s = s.Reset()
	assert.Equal(t, 2003, s.Year)
	assert.False(t, s.Finished)
}

func TestNewSwapsReversedRange(t *testing.T) {
	s := New(2023, 2003)
	assert.Equal(t, 2003, s.First)
	assert.Equal(t, 2023, s.Last)
}

func TestApply(t *testing.T) {
	s := New(2003, 2005)
	for _, step := range []struct {
		action string
		year   int
		ok     bool
	}{
		{"next", 2004, true},
		{"prev", 2003, true},
		{"toggle", 2003, true},
		{"jump", 2003, false},
		{"reset", 2003, true},
	} {
		var ok bool
		s, ok = s.Apply(step.action)
		assert.Equal(t, step.ok, ok, step.action)
		assert.Equal(t, step.year, s.Year, step.action)
	}
	assert.True(t, s.Playing)
}

func TestPlayRunsToTheEnd(t *testing.T) {
	var years []int
	final := Play(context.Background(), New(2003, 2006), time.Millisecond, func(s State) {
		years = append(years, s.Year)
	})

	assert.Equal(t, []int{2003, 2004, 2005, 2006, 2006}, years)
	assert.False(t, final.Playing)
	assert.True(t, final.Finished)
}

func TestPlayStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	emitted := 0
	final := Play(ctx, New(2003, 2023), time.Hour, func(State) {
		emitted++
		cancel()
	})
	assert.Equal(t, 1, emitted)
	assert.False(t, final.Playing)
	assert.Equal(t, 2003, final.Year)
}
