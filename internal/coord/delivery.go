package coord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"parley/internal/model"
)

// Delivery turns submitted envelopes into durable records and tracks their
// acknowledgment lifecycle. The in-flight table gives ordering guarantees the
// store alone cannot: a message is never visible to a recipient before it is
// durable, and status transitions stay monotonic under out-of-order acks.
// Only direct messages are tracked, and only until they are acknowledged;
// every transition past delivered is a bulk sweep guarded by the store's
// status filters, so the table stays bounded by the ack round-trip.
type Delivery struct {
	store MessageStore
	log   *zap.Logger

	mu        sync.Mutex
	envelopes map[string]*model.Envelope // persisted id -> unacknowledged direct envelope
	links     map[string]string          // sender:provisional -> persisted id
	inFlight  map[string]struct{}        // submissions awaiting persistence
}

func NewDelivery(store MessageStore, log *zap.Logger) *Delivery {
	return &Delivery{
		store:     store,
		log:       log,
		envelopes: make(map[string]*model.Envelope),
		links:     make(map[string]string),
		inFlight:  make(map[string]struct{}),
	}
}

func provisionalKey(senderID, provisionalID string) string {
	return senderID + ":" + provisionalID
}

// Submit persists the envelope and returns the server-assigned id. The
// envelope is marked sent only after the persistence call succeeds; on
// failure it is marked failed and must not be broadcast. A second submission
// with the same provisional id is treated as a retry and returns the first
// persisted id without creating a second record.
func (d *Delivery) Submit(ctx context.Context, env *model.Envelope) (string, error) {
	key := ""
	if env.ProvisionalID != "" {
		key = provisionalKey(env.SenderID, env.ProvisionalID)
	}

	if key != "" {
		d.mu.Lock()
		if id, ok := d.links[key]; ok {
			if e, ok := d.envelopes[id]; ok {
				*env = *e
			} else {
				env.PersistedID = id
				env.Status = model.StatusSent
			}
			d.mu.Unlock()
			d.log.Debug("duplicate submission reconciled",
				zap.String("temp_id", env.ProvisionalID),
				zap.String("message_id", id),
			)
			return id, nil
		}
		if _, busy := d.inFlight[key]; busy {
			d.mu.Unlock()
			return "", fmt.Errorf("submit %s: duplicate submission in progress: %w", env.ProvisionalID, ErrInvalidState)
		}
		d.inFlight[key] = struct{}{}
		d.mu.Unlock()
		defer func() {
			d.mu.Lock()
			delete(d.inFlight, key)
			d.mu.Unlock()
		}()
	}

	env.Status = model.StatusSending
	if env.CreatedAt.IsZero() {
		env.CreatedAt = time.Now()
	}

	msg := &model.Message{
		SenderID:   env.SenderID,
		ReceiverID: env.ReceiverID,
		GroupID:    env.GroupID,
		Type:       env.Type,
		Body:       env.Body,
		MediaID:    env.MediaID,
		ReplyToID:  env.ReplyToID,
		Status:     model.StatusSent,
		CreatedAt:  env.CreatedAt,
	}

	id, err := d.store.SaveMessage(ctx, msg)
	if err != nil {
		env.Status = model.StatusFailed
		d.log.Error("message persistence failed",
			zap.String("sender_id", env.SenderID),
			zap.Error(err),
		)
		return "", fmt.Errorf("submit message: %w: %w", ErrPersistence, err)
	}

	env.PersistedID = id
	env.Status = model.StatusSent

	d.mu.Lock()
	if env.GroupID == "" {
		// group fan-out has no per-recipient ack lifecycle to track
		tracked := *env
		d.envelopes[id] = &tracked
	}
	if key != "" {
		d.links[key] = id
	}
	d.mu.Unlock()

	return id, nil
}

// AcknowledgeDelivered transitions sent -> delivered for the given ids where
// acker is the recipient and senderID the claimed author. Unknown ids, ids
// already past sent, and ids whose recorded sender or recipient differ from
// the claim are skipped without error. Returns the ids that actually
// transitioned; those leave the in-flight table, with later transitions
// covered by the store's status filters.
func (d *Delivery) AcknowledgeDelivered(ctx context.Context, messageIDs []string, acker, senderID string) []string {
	now := time.Now()

	d.mu.Lock()
	transitioned := make([]string, 0, len(messageIDs))
	for _, id := range messageIDs {
		env, ok := d.envelopes[id]
		if !ok || env.ReceiverID != acker || env.SenderID != senderID {
			// the table only holds sent envelopes, so an already-delivered
			// or already-read id falls out here and never regresses
			continue
		}
		delete(d.envelopes, id)
		transitioned = append(transitioned, id)
	}
	d.mu.Unlock()

	if len(transitioned) == 0 {
		return nil
	}

	// The live status already advanced; a failed durable update is
	// repairable out-of-band and must not undo the acknowledgment.
	if err := d.store.MarkDelivered(ctx, transitioned, acker, now); err != nil {
		d.log.Error("failed to persist delivered status",
			zap.Strings("message_ids", transitioned),
			zap.Error(err),
		)
	}
	return transitioned
}

// AcknowledgeRead bulk-transitions every sent or delivered message from
// senderID to readerID into read. It is idempotent and not keyed by message
// id, matching "opening the chat marks everything read". Returns how many
// messages changed state.
func (d *Delivery) AcknowledgeRead(ctx context.Context, senderID, readerID string) int64 {
	now := time.Now()

	d.mu.Lock()
	var count int64
	for id, env := range d.envelopes {
		if env.SenderID != senderID || env.ReceiverID != readerID {
			continue
		}
		count++
		// read is terminal for the in-flight table; late delivered acks
		// for an unknown id are no-ops by construction
		delete(d.envelopes, id)
	}
	d.mu.Unlock()

	n, err := d.store.MarkRead(ctx, senderID, readerID, now)
	if err != nil {
		d.log.Error("failed to persist read status",
			zap.String("sender_id", senderID),
			zap.String("reader_id", readerID),
			zap.Error(err),
		)
		return count
	}
	if n > count {
		// rows the tracker no longer had in flight
		count = n
	}
	return count
}

// Reconcile returns the persisted id previously linked to a provisional id.
func (d *Delivery) Reconcile(senderID, provisionalID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id, ok := d.links[provisionalKey(senderID, provisionalID)]
	return id, ok
}

// Status reports the tracked status of an in-flight message.
func (d *Delivery) Status(messageID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	env, ok := d.envelopes[messageID]
	if !ok {
		return "", false
	}
	return env.Status, true
}
