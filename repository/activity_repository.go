package repository

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/fescii/qval-sub002/model"
)

const (
	// Cache TTLs
	unreadCountTTL    = 5 * time.Minute
	activityTTL       = 15 * time.Minute
	userActivitiesTTL = 2 * time.Minute

	// Cache key prefixes
	unreadCountPrefix = "activity:unread:"
	activityPrefix    = "activity:id:"
	userActsPrefix    = "activity:user:"
)

type ActivityRepository interface {
	Create(ctx context.Context, activity *models.Activity) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Activity, error)
	GetByRecipient(ctx context.Context, userHash string, first int, after *string) (*models.ActivityConnection, error)
	MarkAsRead(ctx context.Context, id uuid.UUID, userHash string) error
	MarkAllAsRead(ctx context.Context, userHash string) error
	Delete(ctx context.Context, id uuid.UUID) error
	GetUnreadCount(ctx context.Context, userHash string) (int32, error)
}

type activityRepository struct {
	db    *sqlx.DB
	redis *redis.Client
}

func NewActivityRepository(db *sqlx.DB, redisClient *redis.Client) ActivityRepository {
	return &activityRepository{
		db:    db,
		redis: redisClient,
	}
}

func (r *activityRepository) Create(ctx context.Context, activity *models.Activity) error {
	query := `
		INSERT INTO activities (id, kind, action, author, to_user, target, name, content, verb, read, deleted, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		activity.ID,
		activity.Kind,
		activity.Action,
		activity.Author,
		activity.To,
		activity.Target,
		activity.Name,
		activity.Content,
		activity.Verb,
		activity.Read,
		activity.Deleted,
		activity.CreatedAt,
		activity.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create activity: %w", err)
	}

	if activity.To != nil {
		r.invalidateUserCaches(ctx, *activity.To)
	}

	r.cacheActivity(ctx, activity)

	return nil
}

func (r *activityRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Activity, error) {
	cacheKey := activityPrefix + id.String()
	cached, err := r.redis.Get(ctx, cacheKey).Result()
	if err == nil {
		var activity models.Activity
		if err := json.Unmarshal([]byte(cached), &activity); err == nil {
			return &activity, nil
		}
	}

	query := `
		SELECT id, kind, action, author, to_user, target, name, content, verb, read, deleted, created_at, updated_at
		FROM activities
		WHERE id = $1 AND deleted = false
	`

	var activity models.Activity
	err = r.db.GetContext(ctx, &activity, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("activity %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get activity: %w", err)
	}

	r.cacheActivity(ctx, &activity)

	return &activity, nil
}

func (r *activityRepository) GetByRecipient(ctx context.Context, userHash string, first int, after *string) (*models.ActivityConnection, error) {
	cacheKey := fmt.Sprintf("%s%s:first:%d", userActsPrefix, userHash, first)
	if after != nil && *after != "" {
		cacheKey += ":after:" + *after
	}

	if after == nil || *after == "" {
		cached, err := r.redis.Get(ctx, cacheKey).Result()
		if err == nil {
			var connection models.ActivityConnection
			if err := json.Unmarshal([]byte(cached), &connection); err == nil {
				return &connection, nil
			}
		}
	}

	var totalCount int32
	countQuery := `SELECT COUNT(*) FROM activities WHERE to_user = $1 AND deleted = false`
	err := r.db.GetContext(ctx, &totalCount, countQuery, userHash)
	if err != nil {
		return nil, fmt.Errorf("failed to count activities: %w", err)
	}

	query := `
		SELECT id, kind, action, author, to_user, target, name, content, verb, read, deleted, created_at, updated_at
		FROM activities
		WHERE to_user = $1 AND deleted = false
	`
	args := []interface{}{userHash}
	argIndex := 2

	if after != nil && *after != "" {
		cursorTime, err := decodeCursor(*after)
		if err != nil {
			return nil, fmt.Errorf("invalid cursor: %w", err)
		}
		query += fmt.Sprintf(" AND created_at < $%d", argIndex)
		args = append(args, cursorTime)
		argIndex++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", argIndex)
	args = append(args, first+1)

	var activities []models.Activity
	err = r.db.SelectContext(ctx, &activities, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}

	unreadCount, err := r.GetUnreadCount(ctx, userHash)
	if err != nil {
		return nil, err
	}

	hasNextPage := len(activities) > first
	if hasNextPage {
		activities = activities[:first]
	}

	edges := make([]models.ActivityEdge, len(activities))
	for i, activity := range activities {
		edges[i] = models.ActivityEdge{
			Cursor: encodeCursor(activity.CreatedAt),
			Node:   activity,
		}
	}

	var endCursor, startCursor *string
	if len(edges) > 0 {
		endCursor = &edges[len(edges)-1].Cursor
		startCursor = &edges[0].Cursor
	}

	connection := &models.ActivityConnection{
		Edges: edges,
		PageInfo: models.PageInfo{
			EndCursor:       endCursor,
			HasNextPage:     hasNextPage,
			StartCursor:     startCursor,
			HasPreviousPage: after != nil && *after != "",
		},
		TotalCount:  totalCount,
		UnreadCount: unreadCount,
	}

	if after == nil || *after == "" {
		if data, err := json.Marshal(connection); err == nil {
			r.redis.Set(ctx, cacheKey, data, userActivitiesTTL)
		}
	}

	return connection, nil
}

func (r *activityRepository) MarkAsRead(ctx context.Context, id uuid.UUID, userHash string) error {
	query := `
		UPDATE activities
		SET read = true, updated_at = NOW()
		WHERE id = $1 AND to_user = $2 AND deleted = false
	`

	result, err := r.db.ExecContext(ctx, query, id, userHash)
	if err != nil {
		return fmt.Errorf("failed to mark activity as read: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("activity %s: %w", id, ErrNotFound)
	}

	r.invalidateUserCaches(ctx, userHash)
	r.redis.Del(ctx, activityPrefix+id.String())

	return nil
}

func (r *activityRepository) MarkAllAsRead(ctx context.Context, userHash string) error {
	query := `
		UPDATE activities
		SET read = true, updated_at = NOW()
		WHERE to_user = $1 AND read = false AND deleted = false
	`

	_, err := r.db.ExecContext(ctx, query, userHash)
	if err != nil {
		return fmt.Errorf("failed to mark activities as read: %w", err)
	}

	r.invalidateUserCaches(ctx, userHash)

	return nil
}

// Delete soft-deletes an activity; the row stays for audit, reads skip it.
func (r *activityRepository) Delete(ctx context.Context, id uuid.UUID) error {
	activity, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	query := `
		UPDATE activities
		SET deleted = true, updated_at = NOW()
		WHERE id = $1 AND deleted = false
	`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete activity: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("activity %s: %w", id, ErrNotFound)
	}

	if activity.To != nil {
		r.invalidateUserCaches(ctx, *activity.To)
	}
	r.redis.Del(ctx, activityPrefix+id.String())

	return nil
}

func (r *activityRepository) GetUnreadCount(ctx context.Context, userHash string) (int32, error) {
	cacheKey := unreadCountPrefix + userHash
	cached, err := r.redis.Get(ctx, cacheKey).Result()
	if err == nil {
		var count int32
		if _, err := fmt.Sscanf(cached, "%d", &count); err == nil {
			return count, nil
		}
	}

	query := `SELECT COUNT(*) FROM activities WHERE to_user = $1 AND read = false AND deleted = false`

	var count int32
	err = r.db.GetContext(ctx, &count, query, userHash)
	if err != nil {
		return 0, fmt.Errorf("failed to get unread count: %w", err)
	}

	r.redis.Set(ctx, cacheKey, fmt.Sprintf("%d", count), unreadCountTTL)

	return count, nil
}

// Helper functions for caching

func (r *activityRepository) cacheActivity(ctx context.Context, activity *models.Activity) {
	cacheKey := activityPrefix + activity.ID.String()
	if data, err := json.Marshal(activity); err == nil {
		r.redis.Set(ctx, cacheKey, data, activityTTL)
	}
}

func (r *activityRepository) invalidateUserCaches(ctx context.Context, userHash string) {
	r.redis.Del(ctx, unreadCountPrefix+userHash)

	pattern := userActsPrefix + userHash + ":*"
	iter := r.redis.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		r.redis.Del(ctx, iter.Val())
	}
}

// Helper functions for cursor encoding/decoding
func encodeCursor(t time.Time) string {
	return base64.StdEncoding.EncodeToString([]byte(t.Format(time.RFC3339Nano)))
}

func decodeCursor(cursor string) (time.Time, error) {
	decoded, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, string(decoded))
}
