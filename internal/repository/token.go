package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shravanasati/term-tac-toe/internal/apperror"
	"github.com/shravanasati/term-tac-toe/internal/entity"
)

// TokenRepository stores short-lived capability tokens. A token proves the
// holder joined a room under a specific name before the socket opened.
type TokenRepository interface {
	Issue(ctx context.Context, token string, grant *entity.TokenGrant, ttl time.Duration) error
	Verify(ctx context.Context, token string) (*entity.TokenGrant, error)
	Revoke(ctx context.Context, token string) error
}

type tokenRepository struct {
	client *redis.Client
}

func NewTokenRepository(client *redis.Client) TokenRepository {
	return &tokenRepository{
		client: client,
	}
}

func (that *tokenRepository) Issue(ctx context.Context, token string, grant *entity.TokenGrant, ttl time.Duration) error {
	grantJSON, err := json.Marshal(grant)
	if err != nil {
		return fmt.Errorf("could not marshal token grant: %w", err)
	}

	tokenKey := "token:" + token
	err = that.client.Set(ctx, tokenKey, grantJSON, ttl).Err()
	if err != nil {
		return fmt.Errorf("failed to set token: %w", err)
	}

	return nil
}

func (that *tokenRepository) Verify(ctx context.Context, token string) (*entity.TokenGrant, error) {
	tokenKey := "token:" + token

	response, err := that.client.Get(ctx, tokenKey).Result()

	if errors.Is(err, redis.Nil) {
		return nil, apperror.ErrTokenInvalid
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	var grant entity.TokenGrant
	if err = json.Unmarshal([]byte(response), &grant); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token grant: %w", err)
	}

	return &grant, nil
}

func (that *tokenRepository) Revoke(ctx context.Context, token string) error {
	tokenKey := "token:" + token

	err := that.client.Del(ctx, tokenKey).Err()
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}

	return nil
}
