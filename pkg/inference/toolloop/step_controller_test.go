package toolloop

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pauseFor(conversationID string, timeout time.Duration) Pause {
	return Pause{ConversationID: conversationID, Phase: StepPhaseAfterRound, Deadline: time.Now().Add(timeout)}
}

func waitDone(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("wait did not return")
	}
}

func TestStepControllerOnlyPausesEnabledConversations(t *testing.T) {
	sc := NewStepController()
	_, ok := sc.begin(pauseFor("c1", time.Second))
	assert.False(t, ok)

	sc.Enable("c1")
	p, ok := sc.begin(pauseFor("c1", time.Second))
	require.True(t, ok)
	assert.NotEmpty(t, p.ID)
	assert.Len(t, sc.Pending("c1"), 1)
	assert.Empty(t, sc.Pending("c2"))
	assert.True(t, sc.Continue(p.ID))

	var nilController *StepController
	assert.False(t, nilController.Enabled("c1"))
	_, ok = nilController.begin(pauseFor("c1", time.Second))
	assert.False(t, ok)
}

func TestStepControllerContinue(t *testing.T) {
	sc := NewStepController()
	sc.Enable("c1")
	p, ok := sc.begin(pauseFor("c1", 5*time.Second))
	require.True(t, ok)

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, sc.wait(context.Background(), p.ID))
	}()

	time.Sleep(10 * time.Millisecond)
	assert.True(t, sc.Continue(p.ID))
	waitDone(t, done)
	assert.False(t, sc.Continue(p.ID))
	assert.Empty(t, sc.Pending("c1"))
}

func TestStepControllerContinuedBeforeWait(t *testing.T) {
	sc := NewStepController()
	sc.Enable("c1")
	p, _ := sc.begin(pauseFor("c1", 5*time.Second))
	require.True(t, sc.Continue(p.ID))
	assert.NoError(t, sc.wait(context.Background(), p.ID))
}

func TestStepControllerCancel(t *testing.T) {
	sc := NewStepController()
	sc.Enable("c1")
	p, _ := sc.begin(pauseFor("c1", 5*time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sc.wait(ctx, p.ID), context.Canceled)
	assert.Empty(t, sc.Pending("c1"))
}

func TestStepControllerDeadlineContinues(t *testing.T) {
	sc := NewStepController()
	sc.Enable("c1")
	p, _ := sc.begin(pauseFor("c1", 10*time.Millisecond))

	assert.NoError(t, sc.wait(context.Background(), p.ID))
	assert.Empty(t, sc.Pending("c1"))
}

func TestStepControllerDisableReleasesPauses(t *testing.T) {
	sc := NewStepController()
	sc.Enable("c1")
	p, _ := sc.begin(pauseFor("c1", 5*time.Second))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sc.wait(context.Background(), p.ID)
	}()

	time.Sleep(10 * time.Millisecond)
	sc.Disable("c1")
	waitDone(t, done)
	assert.False(t, sc.Enabled("c1"))
	_, ok := sc.begin(pauseFor("c1", time.Second))
	assert.False(t, ok)
}
