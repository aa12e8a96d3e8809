package concurrency

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScheduleFiresAfterDelay(t *testing.T) {
	s := NewScheduler()
	done := make(chan struct{})
	_, err := s.Schedule(int64(20*time.Millisecond), func() { close(done) })
	assert.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callback never fired")
	}
}

func TestCancelPreventsCallback(t *testing.T) {
	s := NewScheduler()
	ran := false
	c, err := s.Schedule(int64(50*time.Millisecond), func() { ran = true })
	assert.NoError(t, err)

	assert.NoError(t, s.Cancel(c))
	<-c.Done()
	assert.Error(t, c.Err())
	time.Sleep(100 * time.Millisecond)
	assert.False(t, ran)
}

func TestNowIsMonotonicallyIncreasing(t *testing.T) {
	s := NewScheduler()
	a := s.Now()
	time.Sleep(time.Millisecond)
	b := s.Now()
	assert.Greater(t, b, a)
}
