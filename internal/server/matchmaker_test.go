package server

import (
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchmakerPairsTwoRequests(t *testing.T) {
	t.Parallel()
	r := NewRegistry(testLogger())
	mm := NewMatchmaker(quartz.NewReal(), 30*time.Second, testLogger())

	ana, _ := newTestSession(r, "Ana")
	beto, _ := newTestSession(r, "Beto")

	type found struct {
		m    *Match
		role Role
		err  error
	}
	results := make(chan found, 2)
	go func() {
		m, role, err := mm.Find(ana)
		results <- found{m, role, err}
	}()

	waitForCondition(t, mm.HasWaiting, time.Second, "Ana should be parked in the waiting slot")

	go func() {
		m, role, err := mm.Find(beto)
		results <- found{m, role, err}
	}()

	a, b := <-results, <-results
	require.NoError(t, a.err)
	require.NoError(t, b.err)
	assert.Same(t, a.m, b.m, "both requests land in the same match")
	assert.NotEqual(t, a.role, b.role)
	assert.False(t, mm.HasWaiting(), "the slot is cleared once claimed")

	m := a.m
	assert.Equal(t, ana, m.Player(RolePlayer1))
	assert.Equal(t, beto, m.Player(RolePlayer2))
}

func TestMatchmakerTimeoutClearsSlot(t *testing.T) {
	t.Parallel()
	mock := quartz.NewMock(t)
	r := NewRegistry(testLogger())
	mm := NewMatchmaker(mock, 30*time.Second, testLogger())

	ana, _ := newTestSession(r, "Ana")

	done := make(chan error, 1)
	go func() {
		_, _, err := mm.Find(ana)
		done <- err
	}()

	waitForCondition(t, mm.HasWaiting, time.Second, "Ana should be parked in the waiting slot")
	time.Sleep(20 * time.Millisecond)
	mock.Advance(30 * time.Second)

	assert.ErrorIs(t, <-done, ErrNobodyJoined)
	assert.False(t, mm.HasWaiting(), "the timed-out party clears the slot itself")
}

func TestMatchmakerThirdRequestStartsFreshSlot(t *testing.T) {
	t.Parallel()
	r := NewRegistry(testLogger())
	mm := NewMatchmaker(quartz.NewReal(), 30*time.Second, testLogger())

	ana, _ := newTestSession(r, "Ana")
	beto, _ := newTestSession(r, "Beto")
	carla, _ := newTestSession(r, "Carla")

	first := make(chan *Match, 1)
	go func() {
		m, _, err := mm.Find(ana)
		assert.NoError(t, err)
		first <- m
	}()
	waitForCondition(t, mm.HasWaiting, time.Second, "Ana should be waiting")

	m1, _, err := mm.Find(beto)
	require.NoError(t, err)
	assert.Same(t, m1, <-first)

	// Carla arrives with no one waiting and parks a new match.
	go func() {
		_, _, _ = mm.Find(carla)
	}()
	waitForCondition(t, mm.HasWaiting, time.Second, "Carla should open a fresh slot")
}
