package repo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"parley/internal/db"
	"parley/internal/model"
)

var ErrInvalidCall = errors.New("invalid call: caller and receiver are required")

type callRepository struct {
	mongoRepo *db.Repository[model.Call]
	logger    *zap.Logger
}

// CallRepository persists call records. Live call state never touches the
// database; only the history document does.
type CallRepository interface {
	CreateCallRecord(ctx context.Context, call *model.Call) (string, error)
	UpdateCallRecord(ctx context.Context, callID string, update model.CallRecordUpdate) error
	CallHistory(ctx context.Context, userID string, page int64) (*db.PaginatedResult[model.Call], error)
}

func NewCallRepository(repo *db.Repository[model.Call], logger *zap.Logger) CallRepository {
	return &callRepository{
		mongoRepo: repo,
		logger:    logger,
	}
}

func (c *callRepository) CreateCallRecord(ctx context.Context, call *model.Call) (string, error) {
	if call == nil || call.CallerID == "" || call.ReceiverID == "" {
		return "", ErrInvalidCall
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

		result, err := c.mongoRepo.Create(ctx, *call)
		if err == nil {
			insertedID := ""
			if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
				insertedID = oid.Hex()
			}

			c.logger.Info("call record created",
				zap.String("call_id", insertedID),
				zap.String("caller_id", call.CallerID),
				zap.String("receiver_id", call.ReceiverID),
			)
			return insertedID, nil
		}

		lastErr = err

		if !isRetryableError(err) {
			break
		}

		c.logger.Warn("call record insert failed, retrying",
			zap.Error(err),
			zap.Int("attempt", attempt+1),
		)
	}

	return "", fmt.Errorf("create call record failed: %w", lastErr)
}

func (c *callRepository) UpdateCallRecord(ctx context.Context, callID string, update model.CallRecordUpdate) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	fields := bson.M{"status": update.Status}
	if update.EndReason != "" {
		fields["end_reason"] = update.EndReason
	}
	if update.Duration > 0 {
		fields["duration"] = update.Duration
	}
	if update.EndedAt != nil {
		fields["ended_at"] = update.EndedAt
	}

	if _, err := c.mongoRepo.UpdateByID(ctx, callID, fields); err != nil {
		c.logger.Error("failed to update call record",
			zap.String("call_id", callID),
			zap.Error(err),
		)
		return fmt.Errorf("update call record failed: %w", err)
	}

	return nil
}

func (c *callRepository) CallHistory(ctx context.Context, userID string, page int64) (*db.PaginatedResult[model.Call], error) {
	if userID == "" {
		return nil, ErrInvalidPageParams
	}

	ctx, cancel := ensureTimeout(ctx, defaultReadTimeout)
	defer cancel()

	filter := db.NewFilter().Or(
		bson.M{"caller_id": userID},
		bson.M{"receiver_id": userID},
	).Build()

	return c.mongoRepo.FindWithPagination(ctx, filter, db.PaginationParams{
		Page:     page,
		PageSize: historyPageSize,
		SortBy:   "created_at",
		SortDesc: true,
	})
}
