package coord

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"parley/internal/model"
)

func TestDelivery_SubmitPersistsBeforeSent(t *testing.T) {
	store := &MockMessageStore{}
	store.On("SaveMessage", mock.Anything, mock.MatchedBy(func(m *model.Message) bool {
		return m.SenderID == "alice" && m.ReceiverID == "bob" && m.Status == model.StatusSent
	})).Return("msg1", nil).Once()

	d := NewDelivery(store, testLogger(t))
	env := &model.Envelope{ProvisionalID: "tmp1", SenderID: "alice", ReceiverID: "bob", Body: "hi"}

	id, err := d.Submit(context.Background(), env)
	assert.NoError(t, err)
	assert.Equal(t, "msg1", id)
	assert.Equal(t, "msg1", env.PersistedID)
	assert.Equal(t, model.StatusSent, env.Status)

	status, ok := d.Status("msg1")
	assert.True(t, ok)
	assert.Equal(t, model.StatusSent, status)
	store.AssertExpectations(t)
}

func TestDelivery_SubmitPersistenceFailure(t *testing.T) {
	store := &MockMessageStore{}
	store.On("SaveMessage", mock.Anything, mock.Anything).Return("", errors.New("write timeout")).Once()

	d := NewDelivery(store, testLogger(t))
	env := &model.Envelope{ProvisionalID: "tmp1", SenderID: "alice", ReceiverID: "bob", Body: "hi"}

	_, err := d.Submit(context.Background(), env)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, model.StatusFailed, env.Status)

	// the failed attempt must not consume the provisional id; a retry may
	// persist normally
	store.On("SaveMessage", mock.Anything, mock.Anything).Return("msg1", nil).Once()
	retry := &model.Envelope{ProvisionalID: "tmp1", SenderID: "alice", ReceiverID: "bob", Body: "hi"}
	id, err := d.Submit(context.Background(), retry)
	assert.NoError(t, err)
	assert.Equal(t, "msg1", id)
	store.AssertExpectations(t)
}

func TestDelivery_DuplicateProvisionalIsIdempotent(t *testing.T) {
	store := &MockMessageStore{}
	store.On("SaveMessage", mock.Anything, mock.Anything).Return("msg1", nil).Once()

	d := NewDelivery(store, testLogger(t))

	first := &model.Envelope{ProvisionalID: "tmp1", SenderID: "alice", ReceiverID: "bob", Body: "hi"}
	id1, err := d.Submit(context.Background(), first)
	assert.NoError(t, err)

	second := &model.Envelope{ProvisionalID: "tmp1", SenderID: "alice", ReceiverID: "bob", Body: "hi"}
	id2, err := d.Submit(context.Background(), second)
	assert.NoError(t, err)
	assert.Equal(t, id1, id2, "retry must return the first persisted id")
	assert.Equal(t, model.StatusSent, second.Status)

	// same provisional id from a different sender is a different message
	store.On("SaveMessage", mock.Anything, mock.Anything).Return("msg2", nil).Once()
	other := &model.Envelope{ProvisionalID: "tmp1", SenderID: "carol", ReceiverID: "bob", Body: "yo"}
	id3, err := d.Submit(context.Background(), other)
	assert.NoError(t, err)
	assert.Equal(t, "msg2", id3)

	store.AssertExpectations(t)
	store.AssertNumberOfCalls(t, "SaveMessage", 2)
}

func TestDelivery_Reconcile(t *testing.T) {
	store := &MockMessageStore{}
	store.On("SaveMessage", mock.Anything, mock.Anything).Return("msg1", nil)

	d := NewDelivery(store, testLogger(t))
	_, err := d.Submit(context.Background(), &model.Envelope{ProvisionalID: "tmp1", SenderID: "alice", ReceiverID: "bob"})
	assert.NoError(t, err)

	id, ok := d.Reconcile("alice", "tmp1")
	assert.True(t, ok)
	assert.Equal(t, "msg1", id)

	_, ok = d.Reconcile("bob", "tmp1")
	assert.False(t, ok)
}

func TestDelivery_AcknowledgeDelivered(t *testing.T) {
	store := &MockMessageStore{}
	store.On("SaveMessage", mock.Anything, mock.Anything).Return("msg1", nil).Once()
	store.On("MarkDelivered", mock.Anything, []string{"msg1"}, "bob", mock.Anything).Return(nil).Once()

	d := NewDelivery(store, testLogger(t))
	_, err := d.Submit(context.Background(), &model.Envelope{SenderID: "alice", ReceiverID: "bob", Body: "hi"})
	assert.NoError(t, err)

	transitioned := d.AcknowledgeDelivered(context.Background(), []string{"msg1", "unknown"}, "bob", "alice")
	assert.Equal(t, []string{"msg1"}, transitioned)

	// delivered is as far as per-id tracking goes; the id leaves the table
	_, ok := d.Status("msg1")
	assert.False(t, ok)

	// a second ack is a no-op and must not hit the store again
	assert.Empty(t, d.AcknowledgeDelivered(context.Background(), []string{"msg1"}, "bob", "alice"))
	store.AssertExpectations(t)
}

func TestDelivery_AcknowledgeDeliveredWrongRecipient(t *testing.T) {
	store := &MockMessageStore{}
	store.On("SaveMessage", mock.Anything, mock.Anything).Return("msg1", nil).Once()

	d := NewDelivery(store, testLogger(t))
	_, err := d.Submit(context.Background(), &model.Envelope{SenderID: "alice", ReceiverID: "bob", Body: "hi"})
	assert.NoError(t, err)

	assert.Empty(t, d.AcknowledgeDelivered(context.Background(), []string{"msg1"}, "mallory", "alice"),
		"an ack from a non-recipient must not advance the status")
	status, _ := d.Status("msg1")
	assert.Equal(t, model.StatusSent, status)
	store.AssertNotCalled(t, "MarkDelivered", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDelivery_AcknowledgeDeliveredWrongSenderClaim(t *testing.T) {
	store := &MockMessageStore{}
	store.On("SaveMessage", mock.Anything, mock.Anything).Return("msg1", nil).Once()

	d := NewDelivery(store, testLogger(t))
	_, err := d.Submit(context.Background(), &model.Envelope{SenderID: "alice", ReceiverID: "bob", Body: "hi"})
	assert.NoError(t, err)

	assert.Empty(t, d.AcknowledgeDelivered(context.Background(), []string{"msg1"}, "bob", "carol"),
		"an ack naming the wrong sender must not transition anything")
	status, _ := d.Status("msg1")
	assert.Equal(t, model.StatusSent, status)
	store.AssertNotCalled(t, "MarkDelivered", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDelivery_StatusIsMonotonic(t *testing.T) {
	store := &MockMessageStore{}
	store.On("SaveMessage", mock.Anything, mock.Anything).Return("msg1", nil).Once()
	store.On("MarkRead", mock.Anything, "alice", "bob", mock.Anything).Return(int64(1), nil).Once()

	d := NewDelivery(store, testLogger(t))
	_, err := d.Submit(context.Background(), &model.Envelope{SenderID: "alice", ReceiverID: "bob", Body: "hi"})
	assert.NoError(t, err)

	// read ack arrives first
	assert.Equal(t, int64(1), d.AcknowledgeRead(context.Background(), "alice", "bob"))

	// the delivered ack shows up late, out of order; it must not regress
	assert.Empty(t, d.AcknowledgeDelivered(context.Background(), []string{"msg1"}, "bob", "alice"))
	store.AssertNotCalled(t, "MarkDelivered", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDelivery_AcknowledgeReadBulk(t *testing.T) {
	store := &MockMessageStore{}
	store.On("SaveMessage", mock.Anything, mock.Anything).Return("msg1", nil).Once()
	store.On("SaveMessage", mock.Anything, mock.Anything).Return("msg2", nil).Once()
	store.On("MarkDelivered", mock.Anything, []string{"msg1"}, "bob", mock.Anything).Return(nil).Once()
	store.On("MarkRead", mock.Anything, "alice", "bob", mock.Anything).Return(int64(2), nil).Once()

	d := NewDelivery(store, testLogger(t))
	_, err := d.Submit(context.Background(), &model.Envelope{SenderID: "alice", ReceiverID: "bob", Body: "one"})
	assert.NoError(t, err)
	_, err = d.Submit(context.Background(), &model.Envelope{SenderID: "alice", ReceiverID: "bob", Body: "two"})
	assert.NoError(t, err)

	d.AcknowledgeDelivered(context.Background(), []string{"msg1"}, "bob", "alice")

	// both sent and delivered messages are swept into read; the delivered
	// one already left the table, so the store's count carries it
	assert.Equal(t, int64(2), d.AcknowledgeRead(context.Background(), "alice", "bob"))
	store.AssertExpectations(t)

	// idempotent: nothing left in flight for this pair
	store.On("MarkRead", mock.Anything, "alice", "bob", mock.Anything).Return(int64(0), nil).Once()
	assert.Equal(t, int64(0), d.AcknowledgeRead(context.Background(), "alice", "bob"))
}

func trackedEnvelopes(d *Delivery) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.envelopes)
}

func TestDelivery_InFlightTableIsBounded(t *testing.T) {
	store := &MockMessageStore{}
	store.On("SaveMessage", mock.Anything, mock.Anything).Return("msg1", nil).Once()
	store.On("SaveMessage", mock.Anything, mock.Anything).Return("msg2", nil).Once()
	store.On("SaveMessage", mock.Anything, mock.Anything).Return("msg3", nil).Once()
	store.On("MarkDelivered", mock.Anything, []string{"msg2"}, "bob", mock.Anything).Return(nil).Once()
	store.On("MarkRead", mock.Anything, "alice", "carol", mock.Anything).Return(int64(1), nil).Once()

	d := NewDelivery(store, testLogger(t))

	// group fan-out carries no per-recipient lifecycle and is never tracked
	_, err := d.Submit(context.Background(), &model.Envelope{SenderID: "alice", GroupID: "g1", Body: "hey all"})
	assert.NoError(t, err)
	assert.Equal(t, 0, trackedEnvelopes(d))

	// a direct message stays only until its delivered ack
	_, err = d.Submit(context.Background(), &model.Envelope{SenderID: "alice", ReceiverID: "bob", Body: "one"})
	assert.NoError(t, err)
	assert.Equal(t, 1, trackedEnvelopes(d))
	d.AcknowledgeDelivered(context.Background(), []string{"msg2"}, "bob", "alice")
	assert.Equal(t, 0, trackedEnvelopes(d))

	// or until the read sweep takes it
	_, err = d.Submit(context.Background(), &model.Envelope{SenderID: "alice", ReceiverID: "carol", Body: "two"})
	assert.NoError(t, err)
	d.AcknowledgeRead(context.Background(), "alice", "carol")
	assert.Equal(t, 0, trackedEnvelopes(d))
}
