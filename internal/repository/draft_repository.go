package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/dbos-admissions-api/internal/admission"
	appErrors "github.com/noah-isme/dbos-admissions-api/pkg/errors"
)

const (
	draftKeyPrefix = "intake:session:"
	photoKeyPrefix = "intake:photo:"
)

// DraftRepository keeps applicant drafts and their chosen photo in Redis.
type DraftRepository struct {
	client redis.Cmdable
}

// NewDraftRepository creates a new DraftRepository.
func NewDraftRepository(client redis.Cmdable) *DraftRepository {
	return &DraftRepository{client: client}
}

// Save stores the draft and refreshes the expiry of its photo.
func (r *DraftRepository) Save(ctx context.Context, sessionID string, form *admission.Form, ttl time.Duration) error {
	payload, err := json.Marshal(form)
	if err != nil {
		return fmt.Errorf("marshal draft %s: %w", sessionID, err)
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, draftKeyPrefix+sessionID, payload, ttl)
	pipe.Expire(ctx, photoKeyPrefix+sessionID, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save draft %s: %w", sessionID, err)
	}
	return nil
}

// Load returns the draft for sessionID or ErrNotFound when it expired.
func (r *DraftRepository) Load(ctx context.Context, sessionID string) (*admission.Form, error) {
	raw, err := r.client.Get(ctx, draftKeyPrefix+sessionID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "intake session not found or expired")
		}
		return nil, fmt.Errorf("load draft %s: %w", sessionID, err)
	}
	var form admission.Form
	if err := json.Unmarshal(raw, &form); err != nil {
		return nil, fmt.Errorf("decode draft %s: %w", sessionID, err)
	}
	return &form, nil
}

// SavePhoto stores the photo bytes chosen for a draft.
func (r *DraftRepository) SavePhoto(ctx context.Context, sessionID string, data []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, photoKeyPrefix+sessionID, data, ttl).Err(); err != nil {
		return fmt.Errorf("save draft photo %s: %w", sessionID, err)
	}
	return nil
}

// LoadPhoto returns the photo bytes chosen for a draft.
func (r *DraftRepository) LoadPhoto(ctx context.Context, sessionID string) ([]byte, error) {
	data, err := r.client.Get(ctx, photoKeyPrefix+sessionID).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "chosen photo expired, please choose it again")
		}
		return nil, fmt.Errorf("load draft photo %s: %w", sessionID, err)
	}
	return data, nil
}

// DeletePhoto drops the stored photo bytes.
func (r *DraftRepository) DeletePhoto(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, photoKeyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("delete draft photo %s: %w", sessionID, err)
	}
	return nil
}
