package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mintoons-server/internal/interfaces"
	"mintoons-server/internal/models"
)

// Compile-time check to ensure redisTokenRepository implements TokenRepository
var _ interfaces.TokenRepository = (*redisTokenRepository)(nil)

type redisTokenRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisTokenRepository creates a new Redis-backed TokenRepository.
func NewRedisTokenRepository(client *redis.Client, logger *zap.Logger) interfaces.TokenRepository {
	return &redisTokenRepository{
		client: client,
		logger: logger.Named("RedisTokenRepo"),
	}
}

func accessKey(accessUUID string) string   { return fmt.Sprintf("access_uuid:%s", accessUUID) }
func refreshKey(refreshUUID string) string { return fmt.Sprintf("refresh_uuid:%s", refreshUUID) }
func userSetKey(userID uuid.UUID) string   { return fmt.Sprintf("user_tokens:%s", userID.String()) }

// SetToken stores the token pair in Redis:
//  1. access_uuid:{jti} -> userID with the access TTL
//  2. refresh_uuid:{jti} -> userID with the refresh TTL
//
// and registers both keys in the user's set so DeleteTokensByUserID can
// revoke everything at once.
func (r *redisTokenRepository) SetToken(ctx context.Context, userID uuid.UUID, td *models.TokenDetails) error {
	now := time.Now()
	accessTTL := time.Unix(td.AtExpires, 0).Sub(now)
	refreshTTL := time.Unix(td.RtExpires, 0).Sub(now)
	userIDStr := userID.String()

	pipe := r.client.Pipeline()
	pipe.Set(ctx, accessKey(td.AccessUUID), userIDStr, accessTTL)
	pipe.Set(ctx, refreshKey(td.RefreshUUID), userIDStr, refreshTTL)
	pipe.SAdd(ctx, userSetKey(userID), accessKey(td.AccessUUID), refreshKey(td.RefreshUUID))
	// The set outlives individual tokens by design; stale members are
	// tolerated because DEL on a missing key is a no-op.
	pipe.Expire(ctx, userSetKey(userID), refreshTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Failed to set token details in redis", zap.Error(err), zap.String("userID", userIDStr))
		return fmt.Errorf("failed to set token details in redis: %w", err)
	}
	r.logger.Debug("Tokens stored in redis",
		zap.String("userID", userIDStr),
		zap.Duration("accessTTL", accessTTL),
		zap.Duration("refreshTTL", refreshTTL))
	return nil
}

func (r *redisTokenRepository) getUserIDByKey(ctx context.Context, key string) (uuid.UUID, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, models.ErrTokenNotFound
		}
		r.logger.Error("Failed to get token from redis", zap.Error(err), zap.String("key", key))
		return uuid.Nil, fmt.Errorf("failed to get token from redis: %w", err)
	}
	userID, err := uuid.Parse(val)
	if err != nil {
		r.logger.Error("Corrupted userID stored for token", zap.Error(err), zap.String("key", key))
		return uuid.Nil, fmt.Errorf("corrupted userID in token store: %w", err)
	}
	return userID, nil
}

// GetUserIDByAccessUUID returns the user ID the access token belongs to.
func (r *redisTokenRepository) GetUserIDByAccessUUID(ctx context.Context, accessUUID string) (uuid.UUID, error) {
	return r.getUserIDByKey(ctx, accessKey(accessUUID))
}

// GetUserIDByRefreshUUID returns the user ID the refresh token belongs to.
func (r *redisTokenRepository) GetUserIDByRefreshUUID(ctx context.Context, refreshUUID string) (uuid.UUID, error) {
	return r.getUserIDByKey(ctx, refreshKey(refreshUUID))
}

// DeleteTokens removes the given token UUIDs from the store.
func (r *redisTokenRepository) DeleteTokens(ctx context.Context, accessUUID, refreshUUID string) (int64, error) {
	keys := make([]string, 0, 2)
	if accessUUID != "" {
		keys = append(keys, accessKey(accessUUID))
	}
	if refreshUUID != "" {
		keys = append(keys, refreshKey(refreshUUID))
	}
	if len(keys) == 0 {
		return 0, nil
	}

	deleted, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		r.logger.Error("Failed to delete tokens from redis", zap.Error(err))
		return 0, fmt.Errorf("failed to delete tokens from redis: %w", err)
	}
	return deleted, nil
}

// DeleteTokensByUserID removes every token of the user.
func (r *redisTokenRepository) DeleteTokensByUserID(ctx context.Context, userID uuid.UUID) (int64, error) {
	setKey := userSetKey(userID)
	members, err := r.client.SMembers(ctx, setKey).Result()
	if err != nil {
		r.logger.Error("Failed to read user token set from redis", zap.Error(err), zap.String("userID", userID.String()))
		return 0, fmt.Errorf("failed to read user token set: %w", err)
	}
	if len(members) == 0 {
		return 0, nil
	}

	keys := append(members, setKey)
	deleted, err := r.client.Del(ctx, keys...).Result()
	if err != nil {
		r.logger.Error("Failed to delete user tokens from redis", zap.Error(err), zap.String("userID", userID.String()))
		return 0, fmt.Errorf("failed to delete user tokens: %w", err)
	}
	r.logger.Info("Revoked all tokens for user", zap.String("userID", userID.String()), zap.Int64("deleted", deleted))
	return deleted, nil
}
