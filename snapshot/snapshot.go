// Package snapshot builds the short sanitized excerpt an activity carries:
// who authored the affected entity plus at most ~150 characters of safe HTML.
package snapshot

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/fescii/qval-sub002/model"
	"github.com/fescii/qval-sub002/repository"
)

const excerptLimit = 120

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// Snapshot is the resolved excerpt for one entity.
type Snapshot struct {
	Author  string
	Content string
}

type Resolver struct {
	store repository.EntityRepository
}

func NewResolver(store repository.EntityRepository) *Resolver {
	return &Resolver{store: store}
}

// Resolve fetches the minimal fields for the entity and renders its excerpt.
// A missing entity surfaces repository.ErrNotFound; callers treat that as
// terminal since the target is gone.
func (r *Resolver) Resolve(ctx context.Context, kind, hash string) (*Snapshot, error) {
	switch kind {
	case models.KindUser:
		user, err := r.store.GetUser(ctx, hash)
		if err != nil {
			return nil, err
		}
		return &Snapshot{
			Author:  user.Hash,
			Content: render(user.Name, user.Bio),
		}, nil

	case models.KindStory:
		story, err := r.store.GetStory(ctx, hash)
		if err != nil {
			return nil, err
		}
		return &Snapshot{
			Author:  story.Author,
			Content: render(story.Title, story.Content),
		}, nil

	case models.KindReply:
		reply, err := r.store.GetReply(ctx, hash)
		if err != nil {
			return nil, err
		}
		return &Snapshot{
			Author:  reply.Author,
			Content: render("", reply.Content),
		}, nil

	case models.KindTopic:
		topic, err := r.store.GetTopic(ctx, hash)
		if err != nil {
			return nil, err
		}
		return &Snapshot{
			Author:  topic.Author,
			Content: render(topic.Name, topic.Summary),
		}, nil

	default:
		return nil, fmt.Errorf("cannot snapshot kind %q", kind)
	}
}

// render produces the excerpt: sanitized body truncated to the limit, with
// the title, when present, wrapped in a heading ahead of it.
func render(title, body string) string {
	excerpt := Truncate(Sanitize(body), excerptLimit)
	if title == "" {
		return excerpt
	}
	return fmt.Sprintf("<h3>%s</h3>%s", Sanitize(title), excerpt)
}

// Sanitize prepares stored text for the excerpt. Text stored with encoded
// entities (&lt;/&gt;) gets its markup restored and kept; anything else has
// its markup stripped.
func Sanitize(text string) string {
	if strings.Contains(text, "&lt;") || strings.Contains(text, "&gt;") {
		return strings.TrimSpace(html.UnescapeString(text))
	}
	return strings.TrimSpace(tagPattern.ReplaceAllString(text, ""))
}

// Truncate cuts text to at most limit runes, appending an ellipsis when
// anything was cut.
func Truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return strings.TrimSpace(string(runes[:limit])) + "…"
}
