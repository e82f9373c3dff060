package repo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"parley/internal/db"
	"parley/internal/model"
)

type UserRepository interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
	SetOnlineStatus(ctx context.Context, userID string, online bool) error
	UpdateLastSeen(ctx context.Context, userID string, at time.Time) error
}

type userRepository struct {
	mongoRepo *db.Repository[model.User]
	logger    *zap.Logger
}

func NewUserRepository(repo *db.Repository[model.User], logger *zap.Logger) UserRepository {
	return &userRepository{
		mongoRepo: repo,
		logger:    logger,
	}
}

func (r *userRepository) GetUser(ctx context.Context, userID string) (*model.User, error) {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	result, err := r.mongoRepo.FindOne(ctx, db.NewFilter().Eq("user_id", userID).Build())
	if err != nil {
		return nil, fmt.Errorf("get user %s failed: %w", userID, err)
	}

	return result, nil
}

func (r *userRepository) SetOnlineStatus(ctx context.Context, userID string, online bool) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	update := bson.M{"is_online": online}
	if _, err := r.mongoRepo.Update(ctx, db.NewFilter().Eq("user_id", userID).Build(), update); err != nil {
		r.logger.Error("failed to set online status",
			zap.String("user_id", userID),
			zap.Bool("online", online),
			zap.Error(err),
		)
		return fmt.Errorf("set online status failed: %w", err)
	}

	return nil
}

func (r *userRepository) UpdateLastSeen(ctx context.Context, userID string, at time.Time) error {
	ctx, cancel := ensureTimeout(ctx, defaultWriteTimeout)
	defer cancel()

	update := bson.M{"last_seen": at}
	if _, err := r.mongoRepo.Update(ctx, db.NewFilter().Eq("user_id", userID).Build(), update); err != nil {
		r.logger.Error("failed to update last seen",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return fmt.Errorf("update last seen failed: %w", err)
	}

	return nil
}
