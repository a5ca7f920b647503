package brain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSetTimeFutureCandidateDelays(t *testing.T) {
	now := time.Now()

	s := Schedule{}.SetTime(now, now.Add(10*time.Second))
	assert.Equal(t, DelayedUpdate, s.Cmd)
	assert.Equal(t, now.Add(10*time.Second), s.At)
}

func TestSetTimeNeverPullsEarlier(t *testing.T) {
	now := time.Now()

	s := Schedule{}.SetTime(now, now.Add(10*time.Second))
	s = s.SetTime(now, now.Add(5*time.Second))

	assert.Equal(t, DelayedUpdate, s.Cmd)
	assert.Equal(t, now.Add(10*time.Second), s.At, "later requests only push the schedule out")
}

func TestSetTimePushesLater(t *testing.T) {
	now := time.Now()

	s := Schedule{}.SetTime(now, now.Add(10*time.Second))
	s = s.SetTime(now, now.Add(40*time.Second))

	assert.Equal(t, now.Add(40*time.Second), s.At)
}

func TestSetTimePastCandidateIsAlwaysPriority(t *testing.T) {
	now := time.Now()

	for _, existing := range []Schedule{
		{},
		{Cmd: DelayedUpdate, At: now.Add(time.Hour)},
		{Cmd: PriorityUpdate, At: now},
	} {
		s := existing.SetTime(now, now.Add(-time.Second))
		assert.Equal(t, PriorityUpdate, s.Cmd)
		assert.Equal(t, now.Add(-time.Second), s.At)
	}
}

func TestSetTimePriorityNotDowngraded(t *testing.T) {
	now := time.Now()

	s := Schedule{Cmd: PriorityUpdate, At: now}
	s = s.SetTime(now, now.Add(time.Minute))
	assert.Equal(t, PriorityUpdate, s.Cmd)
}

func TestDue(t *testing.T) {
	now := time.Now()

	assert.False(t, Schedule{}.Due(now))
	assert.True(t, Schedule{Cmd: PriorityUpdate}.Due(now))
	assert.False(t, Schedule{Cmd: DelayedUpdate, At: now.Add(time.Second)}.Due(now))
	assert.True(t, Schedule{Cmd: DelayedUpdate, At: now}.Due(now))
	assert.True(t, Schedule{Cmd: DelayedUpdate, At: now.Add(-time.Second)}.Due(now))
}
