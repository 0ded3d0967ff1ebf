package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/fescii/qval-sub002/model"
	"github.com/fescii/qval-sub002/repository"
)

type fakeStore struct {
	users   map[string]*models.UserFields
	stories map[string]*models.StoryFields
	replies map[string]*models.ReplyFields
	topics  map[string]*models.TopicFields
}

func (s *fakeStore) GetUser(ctx context.Context, hash string) (*models.UserFields, error) {
	if u, ok := s.users[hash]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("user %s: %w", hash, repository.ErrNotFound)
}

func (s *fakeStore) GetStory(ctx context.Context, hash string) (*models.StoryFields, error) {
	if st, ok := s.stories[hash]; ok {
		return st, nil
	}
	return nil, fmt.Errorf("story %s: %w", hash, repository.ErrNotFound)
}

func (s *fakeStore) GetReply(ctx context.Context, hash string) (*models.ReplyFields, error) {
	if r, ok := s.replies[hash]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("reply %s: %w", hash, repository.ErrNotFound)
}

func (s *fakeStore) GetTopic(ctx context.Context, hash string) (*models.TopicFields, error) {
	if tp, ok := s.topics[hash]; ok {
		return tp, nil
	}
	return nil, fmt.Errorf("topic %s: %w", hash, repository.ErrNotFound)
}

func (s *fakeStore) IncrementCounter(ctx context.Context, kind, hash, column string, delta int) error {
	return nil
}

func (s *fakeStore) RecordVoteOption(ctx context.Context, storyHash string, option int) error {
	return nil
}

func (s *fakeStore) AttachTopics(ctx context.Context, storyHash string, topicHashes []string) error {
	return nil
}

func (s *fakeStore) CreateView(ctx context.Context, view *models.View) error {
	return nil
}

func TestSanitizeStripsTags(t *testing.T) {
	got := Sanitize("<p>Hello <b>world</b></p>")
	if got != "Hello world" {
		t.Fatalf("expected tags stripped, got %q", got)
	}
}

func TestSanitizeRestoresEncodedMarkup(t *testing.T) {
	got := Sanitize("&lt;p&gt;Hello&lt;/p&gt;")
	if got != "<p>Hello</p>" {
		t.Fatalf("expected encoded markup restored, got %q", got)
	}

	got = Sanitize("&lt;b&gt;hello&lt;/b&gt;")
	if got != "<b>hello</b>" {
		t.Fatalf("expected encoded markup restored, got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	short := "short text"
	if got := Truncate(short, 120); got != short {
		t.Fatalf("expected short text untouched, got %q", got)
	}

	long := strings.Repeat("a", 200)
	got := Truncate(long, 120)
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("expected ellipsis on truncated text, got %q", got)
	}
	if utf8.RuneCountInString(got) > 121 {
		t.Fatalf("expected at most 121 runes, got %d", utf8.RuneCountInString(got))
	}
}

func TestResolveStory(t *testing.T) {
	store := &fakeStore{stories: map[string]*models.StoryFields{
		"S0A": {
			Hash:    "S0A",
			Author:  "U0A",
			Title:   "A Story",
			Content: "<p>" + strings.Repeat("body ", 40) + "</p>",
		},
	}}

	snap, err := NewResolver(store).Resolve(context.Background(), models.KindStory, "S0A")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if snap.Author != "U0A" {
		t.Fatalf("expected story author U0A, got %q", snap.Author)
	}
	if !strings.HasPrefix(snap.Content, "<h3>A Story</h3>") {
		t.Fatalf("expected title heading, got %q", snap.Content)
	}
	if strings.Contains(snap.Content, "<p>") {
		t.Fatalf("expected body tags stripped, got %q", snap.Content)
	}
	if !strings.Contains(snap.Content, "…") {
		t.Fatalf("expected truncated body with ellipsis, got %q", snap.Content)
	}
}

func TestResolveUser(t *testing.T) {
	store := &fakeStore{users: map[string]*models.UserFields{
		"U0A": {Hash: "U0A", Name: "Alice", Bio: "Writes <i>things</i>"},
	}}

	snap, err := NewResolver(store).Resolve(context.Background(), models.KindUser, "U0A")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if snap.Author != "U0A" {
		t.Fatalf("expected actor hash U0A, got %q", snap.Author)
	}
	if snap.Content != "<h3>Alice</h3>Writes things" {
		t.Fatalf("unexpected user snapshot: %q", snap.Content)
	}
}

func TestResolveReplyHasNoHeading(t *testing.T) {
	store := &fakeStore{replies: map[string]*models.ReplyFields{
		"R0A": {Hash: "R0A", Author: "U0B", Content: "<p>quick reply</p>"},
	}}

	snap, err := NewResolver(store).Resolve(context.Background(), models.KindReply, "R0A")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if snap.Content != "quick reply" {
		t.Fatalf("unexpected reply snapshot: %q", snap.Content)
	}
}

func TestResolveMissingEntity(t *testing.T) {
	store := &fakeStore{}

	_, err := NewResolver(store).Resolve(context.Background(), models.KindStory, "S0X")
	if err == nil {
		t.Fatalf("expected an error for a missing story")
	}
	if !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveUnknownKind(t *testing.T) {
	if _, err := NewResolver(&fakeStore{}).Resolve(context.Background(), "widget", "X"); err == nil {
		t.Fatalf("expected an error for an unknown kind")
	}
}
