// Package generator turns directed social interactions (likes, replies,
// follows, subscribes, votes) into persisted activity records and fans each
// one out to the realtime relay.
package generator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/fescii/qval-sub002/config"
	"github.com/fescii/qval-sub002/events"
	"github.com/fescii/qval-sub002/model"
	"github.com/fescii/qval-sub002/queue"
	"github.com/fescii/qval-sub002/repository"
	"github.com/fescii/qval-sub002/snapshot"
)

// Publisher is the slice of the queue client the generator uses to enqueue
// fan-out events.
type Publisher interface {
	Publish(subject string, data interface{}) error
}

type Generator struct {
	queue      *queue.Client
	publisher  Publisher
	resolver   *snapshot.Resolver
	activities repository.ActivityRepository
	cfg        *config.PipelineConfig
	ctx        context.Context
	sub        *nats.Subscription
}

func New(
	queueClient *queue.Client,
	publisher Publisher,
	resolver *snapshot.Resolver,
	activities repository.ActivityRepository,
	cfg *config.PipelineConfig,
	ctx context.Context,
) *Generator {
	return &Generator{
		queue:      queueClient,
		publisher:  publisher,
		resolver:   resolver,
		activities: activities,
		cfg:        cfg,
		ctx:        ctx,
	}
}

func (g *Generator) Start() error {
	sub, err := g.queue.SubscribeDurable(
		events.SubjectAction,
		"activity-generator",
		"activity-generators",
		g.cfg.MaxAttempts,
		g.cfg.RetryBackoff,
		g.handle,
	)
	if err != nil {
		return err
	}

	g.sub = sub
	log.Println("Activity generator started")
	return nil
}

func (g *Generator) Stop() error {
	if g.sub != nil {
		return g.sub.Drain()
	}
	return nil
}

func (g *Generator) handle(msg *nats.Msg) {
	var event events.ActionEvent
	if err := queue.DecodeEvent(msg, &event); err != nil {
		log.Printf("Error decoding action event: %v", err)
		msg.Term()
		return
	}

	if !event.Directed() {
		msg.Ack()
		return
	}

	// Persistence failures are terminal here: the activity is simply not
	// created. Only the fan-out enqueue below carries its own retry.
	activity, err := g.Generate(g.ctx, event)
	if err != nil {
		log.Printf("Error generating activity for %s/%s: %v", event.Kind, event.Action, err)
		msg.Term()
		return
	}

	g.fanOut(*activity)
	msg.Ack()
}

// Generate validates the directed-interaction fields, resolves the snapshot
// and recipient, and persists exactly one activity.
func (g *Generator) Generate(ctx context.Context, event events.ActionEvent) (*models.Activity, error) {
	target := event.Hashes.Target
	if event.Kind == models.KindUser && event.Action == events.ActionConnect {
		target = event.Hashes.To
	}

	if event.Author == "" || target == "" || event.Name == "" || event.Verb == "" {
		return nil, fmt.Errorf("%w: activity event requires author, target, name and verb", events.ErrInvalidEvent)
	}

	var to *string
	var content string

	if event.Kind == models.KindUser {
		// A connect names its recipient directly; the excerpt describes
		// the acting user.
		snap, err := g.resolver.Resolve(ctx, models.KindUser, event.Author)
		if err != nil {
			return nil, err
		}
		to = &target
		content = snap.Content
	} else {
		snap, err := g.resolver.Resolve(ctx, event.Kind, target)
		if err != nil {
			return nil, err
		}
		if snap.Author != "" {
			author := snap.Author
			to = &author
		}
		content = snap.Content
	}

	now := time.Now()
	activity := &models.Activity{
		ID:        uuid.New(),
		Kind:      event.Kind,
		Action:    event.Action,
		Author:    event.Author,
		To:        to,
		Target:    target,
		Name:      event.Name,
		Content:   content,
		Verb:      event.Verb,
		Read:      false,
		Deleted:   false,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := g.activities.Create(ctx, activity); err != nil {
		return nil, err
	}

	return activity, nil
}

// fanOut enqueues one socket event with bounded retry: a fixed backoff
// between attempts, abandoned with a log line once the budget is spent.
func (g *Generator) fanOut(activity models.Activity) {
	event := events.SocketEvent{
		Type: "activity",
		Data: activity,
	}

	var err error
	for attempt := 1; attempt <= g.cfg.MaxAttempts; attempt++ {
		if err = g.publisher.Publish(events.SubjectSocket, event); err == nil {
			return
		}
		if attempt < g.cfg.MaxAttempts {
			time.Sleep(g.cfg.RetryBackoff)
		}
	}

	log.Printf("Giving up on socket event for activity %s after %d attempts: %v", activity.ID, g.cfg.MaxAttempts, err)
}
