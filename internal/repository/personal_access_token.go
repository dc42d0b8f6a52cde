package repository

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"customs-ledger/internal/domain"
)

const userTokenableType = "App\\Models\\User"

var ErrTokenNotFound = errors.New("token not found")

type PersonalAccessTokenRepository struct {
	db *sql.DB
}

func NewPersonalAccessTokenRepository(db *sql.DB) *PersonalAccessTokenRepository {
	return &PersonalAccessTokenRepository{db: db}
}

// FindTokenByPlainToken resolves a Sanctum "<id>|<secret>" token. The stored
// value is the sha256 of the secret; a bare secret without the id prefix is
// looked up by hash alone.
func (r *PersonalAccessTokenRepository) FindTokenByPlainToken(ctx context.Context, plainToken string) (*domain.PersonalAccessToken, error) {
	plainToken = strings.TrimSpace(plainToken)
	if plainToken == "" {
		return nil, errors.New("empty token")
	}

	var (
		tokenID   *int64
		tokenPart = plainToken
	)
	if idx := strings.Index(plainToken, "|"); idx > 0 {
		tokenPart = plainToken[idx+1:]
		if id, err := strconv.ParseInt(plainToken[:idx], 10, 64); err == nil {
			tokenID = &id
		} else {
			log.Printf("[TOKEN] bad id prefix %q: %v", plainToken[:idx], err)
		}
	}

	sum := sha256.Sum256([]byte(tokenPart))
	hashStr := fmt.Sprintf("%x", sum)
	now := time.Now()

	var pat domain.PersonalAccessToken

	if tokenID != nil {
		err := r.db.QueryRowContext(ctx, `
			SELECT id, token, tokenable_id, COALESCE(abilities, ''), expires_at
			FROM personal_access_tokens
			WHERE id = $1
			  AND tokenable_type = $2
			  AND (expires_at IS NULL OR expires_at > $3)
		`, *tokenID, userTokenableType, now).Scan(
			&pat.ID,
			&pat.TokenHash,
			&pat.UserID,
			&pat.Abilities,
			&pat.ExpiresAt,
		)
		switch {
		case err == nil && pat.TokenHash == hashStr:
			return &pat, nil
		case err != nil && !errors.Is(err, sql.ErrNoRows):
			return nil, fmt.Errorf("token lookup by id: %w", err)
		}
	}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, token, tokenable_id, COALESCE(abilities, ''), expires_at
		FROM personal_access_tokens
		WHERE tokenable_type = $1
		  AND token = $2
		  AND (expires_at IS NULL OR expires_at > $3)
		ORDER BY created_at DESC
		LIMIT 1
	`, userTokenableType, hashStr, now).Scan(
		&pat.ID,
		&pat.TokenHash,
		&pat.UserID,
		&pat.Abilities,
		&pat.ExpiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("token lookup by hash: %w", err)
	}
	return &pat, nil
}
