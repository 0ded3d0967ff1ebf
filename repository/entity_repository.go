package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/fescii/qval-sub002/events"
	"github.com/fescii/qval-sub002/model"
)

// ErrNotFound is returned when a referenced entity no longer exists.
// Consumers treat it as terminal: the target is gone, retrying cannot help.
var ErrNotFound = errors.New("entity not found")

// Publisher is the slice of the queue client the entity store needs to emit
// cascade events from CreateView.
type Publisher interface {
	Publish(subject string, data interface{}) error
}

type EntityRepository interface {
	GetUser(ctx context.Context, hash string) (*models.UserFields, error)
	GetStory(ctx context.Context, hash string) (*models.StoryFields, error)
	GetReply(ctx context.Context, hash string) (*models.ReplyFields, error)
	GetTopic(ctx context.Context, hash string) (*models.TopicFields, error)
	IncrementCounter(ctx context.Context, kind, hash, column string, delta int) error
	RecordVoteOption(ctx context.Context, storyHash string, option int) error
	AttachTopics(ctx context.Context, storyHash string, topicHashes []string) error
	CreateView(ctx context.Context, view *models.View) error
}

type entityRepository struct {
	db        *sqlx.DB
	publisher Publisher
}

func NewEntityRepository(db *sqlx.DB, publisher Publisher) EntityRepository {
	return &entityRepository{db: db, publisher: publisher}
}

func (r *entityRepository) GetUser(ctx context.Context, hash string) (*models.UserFields, error) {
	query := `SELECT hash, name, COALESCE(bio, '') AS bio FROM users WHERE hash = $1`

	var user models.UserFields
	err := r.db.GetContext(ctx, &user, query, hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", hash, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return &user, nil
}

func (r *entityRepository) GetStory(ctx context.Context, hash string) (*models.StoryFields, error) {
	query := `SELECT hash, author, COALESCE(title, '') AS title, content FROM stories WHERE hash = $1`

	var story models.StoryFields
	err := r.db.GetContext(ctx, &story, query, hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("story %s: %w", hash, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get story: %w", err)
	}

	return &story, nil
}

func (r *entityRepository) GetReply(ctx context.Context, hash string) (*models.ReplyFields, error) {
	query := `SELECT hash, author, content FROM replies WHERE hash = $1`

	var reply models.ReplyFields
	err := r.db.GetContext(ctx, &reply, query, hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("reply %s: %w", hash, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get reply: %w", err)
	}

	return &reply, nil
}

func (r *entityRepository) GetTopic(ctx context.Context, hash string) (*models.TopicFields, error) {
	query := `SELECT hash, author, name, COALESCE(summary, '') AS summary FROM topics WHERE hash = $1`

	var topic models.TopicFields
	err := r.db.GetContext(ctx, &topic, query, hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("topic %s: %w", hash, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get topic: %w", err)
	}

	return &topic, nil
}

// IncrementCounter applies a relative delta to one counter column, keyed by
// the entity's external hash. The update never reads the current value, so
// concurrent unordered deliveries still converge to the net sum of deltas.
func (r *entityRepository) IncrementCounter(ctx context.Context, kind, hash, column string, delta int) error {
	table, ok := models.TableForKind(kind)
	if !ok {
		return fmt.Errorf("kind %q has no counter table", kind)
	}
	if !models.IsCounterColumn(table, column) {
		return fmt.Errorf("unknown counter column %q on table %q", column, table)
	}

	query := fmt.Sprintf(`UPDATE %s SET %s = %s + $1 WHERE hash = $2`, table, column, column)

	result, err := r.db.ExecContext(ctx, query, delta, hash)
	if err != nil {
		return fmt.Errorf("failed to update %s.%s: %w", table, column, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("%s %s: %w", kind, hash, ErrNotFound)
	}

	return nil
}

// RecordVoteOption tallies the chosen poll option for a story. The counter
// itself is relative too, for the same order-independence reason.
func (r *entityRepository) RecordVoteOption(ctx context.Context, storyHash string, option int) error {
	query := `
		INSERT INTO story_votes (story_hash, option, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (story_hash, option) DO UPDATE SET count = story_votes.count + 1
	`

	_, err := r.db.ExecContext(ctx, query, storyHash, option)
	if err != nil {
		return fmt.Errorf("failed to record vote option: %w", err)
	}

	return nil
}

// AttachTopics associates a story with a list of topics in one statement.
func (r *entityRepository) AttachTopics(ctx context.Context, storyHash string, topicHashes []string) error {
	if len(topicHashes) == 0 {
		return nil
	}

	query := `
		INSERT INTO story_topics (story_hash, topic_hash)
		SELECT $1, unnest($2::text[])
		ON CONFLICT (story_hash, topic_hash) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query, storyHash, pq.Array(topicHashes))
	if err != nil {
		return fmt.Errorf("failed to attach topics: %w", err)
	}

	return nil
}

// CreateView records a view row and publishes the declared follow-up event
// for the viewed entity's kind, keeping the cascade out of the handlers.
func (r *entityRepository) CreateView(ctx context.Context, view *models.View) error {
	if view.CreatedAt.IsZero() {
		view.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO views (kind, target, author, viewer, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(ctx, query, view.Kind, view.Target, view.Author, view.User, view.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create view: %w", err)
	}

	event, ok := events.ViewCascade(view.Kind, view.Target, view.User)
	if !ok {
		return nil
	}

	if err := r.publisher.Publish(events.SubjectAction, event); err != nil {
		return fmt.Errorf("failed to publish view cascade: %w", err)
	}

	return nil
}
