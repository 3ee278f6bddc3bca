package sched

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"j5.nz/beamrt/internal/process"
)

func newTestProcess(pid uint64, prio process.Priority) *process.Process {
	return &process.Process{Pid: pid, Priority: prio, Status: process.StatusRunnable}
}

func TestIdleOnEmptyScheduler(t *testing.T) {
	reg := process.NewRegistry()
	s := New(reg)
	assert.True(t, s.Idle())
	_, ok := s.Next()
	assert.False(t, ok)
}

func TestHighAlwaysBeatsNormalAndLow(t *testing.T) {
	reg := process.NewRegistry()
	reg.Add(newTestProcess(1, process.PriorityLow))
	reg.Add(newTestProcess(2, process.PriorityNormal))
	reg.Add(newTestProcess(3, process.PriorityHigh))

	s := New(reg)
	s.Enqueue(1)
	s.Enqueue(2)
	s.Enqueue(3)

	pid, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, uint64(3), pid, "high priority must run before normal or low")
}

func TestNormalAdvantageEventuallyYieldsToLow(t *testing.T) {
	reg := process.NewRegistry()
	reg.Add(newTestProcess(1, process.PriorityLow))
	reg.Add(newTestProcess(2, process.PriorityNormal))

	s := New(reg)
	s.Enqueue(1)
	for i := 0; i < NormalAdvantage+1; i++ {
		s.Enqueue(2)
	}

	seenLow := false
	for i := 0; i < NormalAdvantage+1; i++ {
		pid, ok := s.Next()
		require.True(t, ok)
		if pid == 1 {
			seenLow = true
			break
		}
		s.Enqueue(2)
	}
	assert.True(t, seenLow, "low priority pid should get a turn within NormalAdvantage selections")
}

func TestSuspendAndNotifyNewIncomingMessage(t *testing.T) {
	reg := process.NewRegistry()
	reg.Add(newTestProcess(1, process.PriorityNormal))
	s := New(reg)

	s.Suspend(1)
	_, ok := s.Next()
	assert.False(t, ok, "a process parked in the wait set is not runnable")
	assert.False(t, s.Idle(), "a parked process still keeps the scheduler from being idle")

	s.NotifyNewIncomingMessage(1)
	assert.False(t, s.Idle())

	pid, ok := s.Next()
	require.True(t, ok)
	assert.Equal(t, uint64(1), pid)
}

func TestNotifyNewIncomingMessageIsNoOpWhenNotWaiting(t *testing.T) {
	reg := process.NewRegistry()
	reg.Add(newTestProcess(1, process.PriorityNormal))
	s := New(reg)

	s.NotifyNewIncomingMessage(1)
	assert.True(t, s.Idle())
}

func TestRemoveDropsFromRunQueueAndWaitSet(t *testing.T) {
	reg := process.NewRegistry()
	reg.Add(newTestProcess(1, process.PriorityNormal))
	reg.Add(newTestProcess(2, process.PriorityHigh))
	s := New(reg)
	s.Enqueue(1)
	s.Suspend(2)

	s.Remove(1)
	s.Remove(2)

	assert.True(t, s.Idle())
}
