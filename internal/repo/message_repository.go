package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"parley/internal/db"
	"parley/internal/model"
)

var (
	ErrInvalidMessage    = errors.New("invalid message: message cannot be nil")
	ErrMissingRecipient  = errors.New("invalid message: needs a receiver or a group")
	ErrInvalidPageParams = errors.New("invalid pagination parameters")
)

const historyPageSize = 30

type messageRepository struct {
	mongoRepo *db.Repository[model.Message]
	logger    *zap.Logger
}

// MessageRepository persists chat messages and serves history queries. The
// write methods back the coordinator's MessageStore; the history methods back
// the REST surface.
type MessageRepository interface {
	SaveMessage(ctx context.Context, msg *model.Message) (string, error)
	MarkDelivered(ctx context.Context, messageIDs []string, receiverID string, at time.Time) error
	MarkRead(ctx context.Context, senderID, receiverID string, at time.Time) (int64, error)
	DirectHistory(ctx context.Context, userA, userB string, page int64) (*db.PaginatedResult[model.Message], error)
	GroupHistory(ctx context.Context, groupID string, page int64) (*db.PaginatedResult[model.Message], error)
}

func NewMessageRepository(repo *db.Repository[model.Message], logger *zap.Logger) MessageRepository {
	return &messageRepository{
		mongoRepo: repo,
		logger:    logger,
	}
}

// -----------------------------------------------------------------------------
// SaveMessage
// -----------------------------------------------------------------------------

func (m *messageRepository) SaveMessage(ctx context.Context, msg *model.Message) (string, error) {
	if err := m.validateMessage(msg); err != nil {
		return "", err
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := waitForRetry(ctx, attempt); err != nil {
				return "", err
			}
		}

		result, err := m.mongoRepo.Create(ctx, *msg)
		if err == nil {
			insertedID := ""
			if result.InsertedID != nil {
				if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
					insertedID = oid.Hex()
				} else if str, ok := result.InsertedID.(string); ok {
					insertedID = str
				}
			}

			m.logger.Info("message inserted successfully",
				zap.String("inserted_id", insertedID),
				zap.String("sender_id", msg.SenderID),
				zap.Int("attempt", attempt+1),
			)
			return insertedID, nil
		}

		lastErr = err

		// Don't retry on context cancellation or non-retryable errors
		if !isRetryableError(err) {
			break
		}

		m.logger.Warn("insert attempt failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", maxRetries),
		)
	}

	m.logger.Error("failed to insert message after all retries",
		zap.Error(lastErr),
		zap.String("sender_id", msg.SenderID),
	)

	return "", fmt.Errorf("insert message failed: %w", lastErr)
}

// -----------------------------------------------------------------------------
// Status transitions
// -----------------------------------------------------------------------------

// MarkDelivered advances the listed messages to delivered. The filter keeps
// the transition monotonic: only sent messages addressed to receiverID match,
// so a replayed or misdirected ack modifies nothing.
func (m *messageRepository) MarkDelivered(ctx context.Context, messageIDs []string, receiverID string, at time.Time) error {
	if len(messageIDs) == 0 {
		return nil
	}

	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().
		ObjectIDs("_id", messageIDs).
		Eq("receiver_id", receiverID).
		Eq("status", model.StatusSent).
		Build()

	result, err := m.mongoRepo.UpdateMany(ctx, filter, bson.M{
		"status":       model.StatusDelivered,
		"delivered_at": at,
	})
	if err != nil {
		m.logger.Error("failed to mark messages delivered",
			zap.Strings("message_ids", messageIDs),
			zap.Error(err),
		)
		return fmt.Errorf("mark delivered failed: %w", err)
	}

	m.logger.Debug("messages marked delivered",
		zap.String("receiver_id", receiverID),
		zap.Int64("modified", result.ModifiedCount),
	)
	return nil
}

// MarkRead advances every sent or delivered message from senderID to
// receiverID to read and returns how many actually changed.
func (m *messageRepository) MarkRead(ctx context.Context, senderID, receiverID string, at time.Time) (int64, error) {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	filter := db.NewFilter().
		Eq("sender_id", senderID).
		Eq("receiver_id", receiverID).
		In("status", []string{model.StatusSent, model.StatusDelivered}).
		Build()

	result, err := m.mongoRepo.UpdateMany(ctx, filter, bson.M{
		"status":  model.StatusRead,
		"read_at": at,
	})
	if err != nil {
		m.logger.Error("failed to mark messages read",
			zap.String("sender_id", senderID),
			zap.String("receiver_id", receiverID),
			zap.Error(err),
		)
		return 0, fmt.Errorf("mark read failed: %w", err)
	}

	return result.ModifiedCount, nil
}

// -----------------------------------------------------------------------------
// History
// -----------------------------------------------------------------------------

func (m *messageRepository) DirectHistory(ctx context.Context, userA, userB string, page int64) (*db.PaginatedResult[model.Message], error) {
	if userA == "" || userB == "" {
		return nil, ErrInvalidPageParams
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Or(
		bson.M{"sender_id": userA, "receiver_id": userB},
		bson.M{"sender_id": userB, "receiver_id": userA},
	).Build()

	return m.findHistory(ctx, filter, page)
}

func (m *messageRepository) GroupHistory(ctx context.Context, groupID string, page int64) (*db.PaginatedResult[model.Message], error) {
	if groupID == "" {
		return nil, ErrInvalidPageParams
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Eq("group_id", groupID).Build()
	return m.findHistory(ctx, filter, page)
}

func (m *messageRepository) findHistory(ctx context.Context, filter bson.M, page int64) (*db.PaginatedResult[model.Message], error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			if err := waitForRetry(ctx, attempt); err != nil {
				return nil, err
			}
			m.logger.Warn("retrying history query", zap.Int("attempt", attempt+1))
		}

		result, err := m.mongoRepo.FindWithPagination(ctx, filter, db.PaginationParams{
			Page:     page,
			PageSize: historyPageSize,
			SortBy:   "created_at",
			SortDesc: true,
		})
		if err == nil {
			return result, nil
		}

		lastErr = err

		if !isRetryableError(err) {
			break
		}
	}

	return nil, m.handleReadError(lastErr)
}

// -----------------------------------------------------------------------------
// Private Helper Methods
// -----------------------------------------------------------------------------

func (m *messageRepository) validateMessage(msg *model.Message) error {
	if msg == nil {
		return ErrInvalidMessage
	}
	if msg.ReceiverID == "" && msg.GroupID == "" {
		return ErrMissingRecipient
	}
	return nil
}

func (m *messageRepository) handleReadError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		m.logger.Error("read timeout")
		return ErrOperationTimeout
	}

	if errors.Is(err, context.Canceled) {
		m.logger.Debug("read cancelled")
		return err
	}

	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil // Not an error, just empty result
	}

	m.logger.Error("read failed", zap.Error(err))
	return fmt.Errorf("history query failed: %w", err)
}
