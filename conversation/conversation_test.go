package conversation_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Gurpartap/carecompanion/conversation"
	eventinginmem "github.com/Gurpartap/carecompanion/eventing/inmem"
	"github.com/Gurpartap/carecompanion/session"
	threadstoreinmem "github.com/Gurpartap/carecompanion/threadstore/inmem"
	"github.com/Gurpartap/carecompanion/transport/inmem"
)

func newRecallClient(t *testing.T) (*session.Client, *inmem.Service) {
	t.Helper()
	service, err := inmem.NewService(inmem.RecallAgent{})
	require.NoError(t, err)
	client, err := session.New(service, session.Options{})
	require.NoError(t, err)
	return client, service
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	client, _ := newRecallClient(t)
	store := threadstoreinmem.New()

	_, err := conversation.New(nil, conversation.Options{Key: "k", Store: store})
	assert.ErrorIs(t, err, conversation.ErrSenderRequired)
	_, err = conversation.New(client, conversation.Options{Key: "k"})
	assert.ErrorIs(t, err, conversation.ErrStoreRequired)
	_, err = conversation.New(client, conversation.Options{Key: " ", Store: store})
	assert.ErrorIs(t, err, conversation.ErrKeyRequired)
}

func TestSendCreatesThreadOnceAndReusesIt(t *testing.T) {
	t.Parallel()

	client, service := newRecallClient(t)
	store := threadstoreinmem.New()
	events := eventinginmem.New()
	conv, err := conversation.New(client, conversation.Options{Key: "grandma", Store: store, EventSink: events})
	require.NoError(t, err)
	ctx := context.Background()

	_, ok, err := conv.ThreadID(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "thread must not exist before the first send")

	first, err := conv.Send(ctx, "my name is Rosa")
	require.NoError(t, err)
	assert.False(t, first.Degraded)

	threadID, ok, err := conv.ThreadID(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	second, err := conv.Send(ctx, "what is my name?")
	require.NoError(t, err)
	assert.Equal(t, "Your name is Rosa.", second.Text)

	again, _, err := conv.ThreadID(ctx)
	require.NoError(t, err)
	assert.Equal(t, threadID, again)

	state, err := service.ThreadState(ctx, threadID)
	require.NoError(t, err)
	assert.Len(t, state.Values.Messages, 4)

	all := events.Events()
	require.NotEmpty(t, all)
	assert.Equal(t, session.TurnAwaitingThread, all[0].To)
}

func TestSendResumesPersistedThread(t *testing.T) {
	t.Parallel()

	client, _ := newRecallClient(t)
	store := threadstoreinmem.New()
	ctx := context.Background()

	first, err := conversation.New(client, conversation.Options{Key: "family", Store: store})
	require.NoError(t, err)
	_, err = first.Send(ctx, "my dog is Biscuit")
	require.NoError(t, err)

	resumed, err := conversation.New(client, conversation.Options{Key: "family", Store: store})
	require.NoError(t, err)
	reply, err := resumed.Send(ctx, "what is my dog?")
	require.NoError(t, err)
	assert.Equal(t, "Your dog is Biscuit.", reply.Text)
}

func TestSendRejectsEmptyInput(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	conv, err := conversation.New(sender, conversation.Options{Key: "k", Store: threadstoreinmem.New()})
	require.NoError(t, err)

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := conv.Send(context.Background(), text)
		assert.ErrorIs(t, err, conversation.ErrEmptyMessage)
		_, err = conv.Ask(context.Background(), text)
		assert.ErrorIs(t, err, conversation.ErrEmptyMessage)
	}
	assert.Zero(t, sender.calls.Load(), "empty input must not reach the session client")
}

func TestSendDegradesAndKeepsThread(t *testing.T) {
	t.Parallel()

	failure := session.NewTransportError("wait", errors.New("502 bad gateway"))
	sender := &fakeSender{sendErr: failure}
	store := threadstoreinmem.New()
	conv, err := conversation.New(sender, conversation.Options{Key: "k", Store: store})
	require.NoError(t, err)

	reply, err := conv.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.True(t, reply.Degraded)
	assert.Equal(t, conversation.DefaultFallback, reply.Text)
	assert.ErrorIs(t, reply.Err, failure)

	threadID, ok, err := store.Load(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, session.ThreadID("thread-1"), threadID)
}

func TestSendDegradesWhenThreadCreationFails(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{createErr: session.NewTransportError("create thread", errors.New("refused"))}
	store := threadstoreinmem.New()
	conv, err := conversation.New(sender, conversation.Options{Key: "k", Store: store, Fallback: "offline"})
	require.NoError(t, err)

	reply, err := conv.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.True(t, reply.Degraded)
	assert.Equal(t, "offline", reply.Text)

	_, ok, err := store.Load(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSendForgetsLostThread(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{sendErr: session.NewTransportError("wait", session.ErrThreadNotFound)}
	store := threadstoreinmem.New()
	require.NoError(t, store.Save(context.Background(), "k", "stale-thread"))
	conv, err := conversation.New(sender, conversation.Options{Key: "k", Store: store})
	require.NoError(t, err)

	reply, err := conv.Send(context.Background(), "hello")
	require.NoError(t, err)
	assert.True(t, reply.Degraded)

	_, ok, err := store.Load(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok, "lost thread must be dropped")
}

func TestAskDoesNotTouchThread(t *testing.T) {
	t.Parallel()

	client, _ := newRecallClient(t)
	store := threadstoreinmem.New()
	conv, err := conversation.New(client, conversation.Options{Key: "k", Store: store})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = conv.Ask(ctx, "my secret number is 999")
	require.NoError(t, err)
	reply, err := conv.Ask(ctx, "what is my secret number?")
	require.NoError(t, err)
	assert.NotContains(t, reply.Text, "999")

	_, ok, err := conv.ThreadID(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResetStartsNewThread(t *testing.T) {
	t.Parallel()

	client, _ := newRecallClient(t)
	conv, err := conversation.New(client, conversation.Options{Key: "k", Store: threadstoreinmem.New()})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = conv.Send(ctx, "my color is teal")
	require.NoError(t, err)
	first, _, err := conv.ThreadID(ctx)
	require.NoError(t, err)

	require.NoError(t, conv.Reset(ctx))
	reply, err := conv.Send(ctx, "what is my color?")
	require.NoError(t, err)
	assert.Equal(t, "I don't know your color yet.", reply.Text)

	second, _, err := conv.ThreadID(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestSendIsSingleFlight(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{delay: 5 * time.Millisecond}
	conv, err := conversation.New(sender, conversation.Options{Key: "k", Store: threadstoreinmem.New()})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = conv.Send(context.Background(), "hello")
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), sender.maxInFlight.Load())
	assert.Equal(t, int32(1), sender.created.Load(), "concurrent first sends must create one thread")
}

type fakeSender struct {
	createErr error
	sendErr   error
	delay     time.Duration

	calls       atomic.Int32
	created     atomic.Int32
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeSender) enter() func() {
	f.calls.Add(1)
	current := f.inFlight.Add(1)
	for {
		seen := f.maxInFlight.Load()
		if current <= seen || f.maxInFlight.CompareAndSwap(seen, current) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return func() { f.inFlight.Add(-1) }
}

func (f *fakeSender) CreateThread(context.Context) (session.ThreadID, error) {
	defer f.enter()()
	if f.createErr != nil {
		return session.NoThread, f.createErr
	}
	f.created.Add(1)
	return "thread-1", nil
}

func (f *fakeSender) SendMessage(context.Context, session.ThreadID, string) (string, error) {
	defer f.enter()()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	return "ok", nil
}

func (f *fakeSender) SendStatelessMessage(context.Context, string) (string, error) {
	defer f.enter()()
	return "ok", nil
}
