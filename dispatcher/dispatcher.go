// Package dispatcher consumes action events and applies the counter
// mutations they describe. Any number of workers may run concurrently; no
// ordering is assumed, which is safe because every mutation is a relative
// atomic update.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"

	"github.com/fescii/qval-sub002/config"
	"github.com/fescii/qval-sub002/events"
	"github.com/fescii/qval-sub002/model"
	"github.com/fescii/qval-sub002/queue"
	"github.com/fescii/qval-sub002/repository"
)

type Dispatcher struct {
	queue *queue.Client
	store repository.EntityRepository
	cfg   *config.PipelineConfig
	ctx   context.Context
	sub   *nats.Subscription
}

func New(queueClient *queue.Client, store repository.EntityRepository, cfg *config.PipelineConfig, ctx context.Context) *Dispatcher {
	return &Dispatcher{
		queue: queueClient,
		store: store,
		cfg:   cfg,
		ctx:   ctx,
	}
}

func (d *Dispatcher) Start() error {
	sub, err := d.queue.SubscribeDurable(
		events.SubjectAction,
		"action-dispatcher",
		"action-dispatchers",
		d.cfg.MaxAttempts,
		d.cfg.RetryBackoff,
		d.handle,
	)
	if err != nil {
		return err
	}

	d.sub = sub
	log.Println("Action dispatcher started")
	return nil
}

func (d *Dispatcher) Stop() error {
	if d.sub != nil {
		return d.sub.Drain()
	}
	return nil
}

func (d *Dispatcher) handle(msg *nats.Msg) {
	var event events.ActionEvent
	if err := queue.DecodeEvent(msg, &event); err != nil {
		log.Printf("Error decoding action event: %v", err)
		msg.Term()
		return
	}

	if err := event.Validate(); err != nil {
		log.Printf("Dropping action event: %v", err)
		msg.Term()
		return
	}

	err := d.Apply(d.ctx, event)
	switch {
	case err == nil:
		msg.Ack()
	case errors.Is(err, repository.ErrNotFound):
		log.Printf("Dropping %s/%s event: %v", event.Kind, event.Action, err)
		msg.Term()
	case d.cfg.FailOpen:
		// Best-effort mode: the mutation failed but the delivery is still
		// acknowledged, so counters may drift until reconciled elsewhere.
		log.Printf("Error applying %s/%s event (fail-open): %v", event.Kind, event.Action, err)
		msg.Ack()
	default:
		log.Printf("Error applying %s/%s event, requeueing: %v", event.Kind, event.Action, err)
		msg.Nak()
	}
}

// Apply routes one validated event to its counter mutations.
func (d *Dispatcher) Apply(ctx context.Context, event events.ActionEvent) error {
	switch event.Kind {
	case models.KindUser:
		return d.applyUser(ctx, event)
	case models.KindTopic:
		return d.applyTopic(ctx, event)
	case models.KindStory:
		return d.applyStory(ctx, event)
	case models.KindReply:
		return d.applyReply(ctx, event)
	case models.KindTag:
		return d.store.AttachTopics(ctx, event.Hashes.Target, event.Hashes.Topics)
	case models.KindView:
		return d.applyView(ctx, event)
	default:
		return events.ErrInvalidEvent
	}
}

// applyView records a view row against the entity named by the target hash.
// The store publishes the declared follow-up view-counter event itself.
func (d *Dispatcher) applyView(ctx context.Context, event events.ActionEvent) error {
	kind, ok := models.KindFromHash(event.Hashes.Target)
	if !ok {
		return fmt.Errorf("%w: view target %q has no kind prefix", events.ErrInvalidEvent, event.Hashes.Target)
	}

	return d.store.CreateView(ctx, &models.View{
		Kind:   kind,
		Target: event.Hashes.Target,
		User:   event.User,
	})
}

func (d *Dispatcher) applyUser(ctx context.Context, event events.ActionEvent) error {
	switch event.Action {
	case events.ActionConnect:
		if err := d.store.IncrementCounter(ctx, models.KindUser, event.Hashes.To, "followers", event.Value); err != nil {
			return err
		}
		return d.store.IncrementCounter(ctx, models.KindUser, event.Hashes.From, "following", event.Value)
	case events.ActionReply:
		return d.store.IncrementCounter(ctx, models.KindUser, event.Hashes.Target, "replies", event.Value)
	case events.ActionStory:
		return d.store.IncrementCounter(ctx, models.KindUser, event.Hashes.Target, "stories", event.Value)
	case events.ActionView:
		return d.store.IncrementCounter(ctx, models.KindUser, event.Hashes.Target, "views", event.Value)
	default:
		return events.ErrInvalidEvent
	}
}

func (d *Dispatcher) applyTopic(ctx context.Context, event events.ActionEvent) error {
	columns := map[string]string{
		events.ActionSubscribe: "subscribers",
		events.ActionFollow:    "followers",
		events.ActionView:      "views",
		events.ActionStory:     "stories",
	}

	column, ok := columns[event.Action]
	if !ok {
		return events.ErrInvalidEvent
	}
	return d.store.IncrementCounter(ctx, models.KindTopic, event.Hashes.Target, column, event.Value)
}

func (d *Dispatcher) applyStory(ctx context.Context, event events.ActionEvent) error {
	switch event.Action {
	case events.ActionView:
		return d.store.IncrementCounter(ctx, models.KindStory, event.Hashes.Target, "views", event.Value)
	case events.ActionLike:
		return d.store.IncrementCounter(ctx, models.KindStory, event.Hashes.Target, "likes", event.Value)
	case events.ActionReply:
		return d.store.IncrementCounter(ctx, models.KindStory, event.Hashes.Target, "replies", event.Value)
	case events.ActionVote:
		if err := d.store.IncrementCounter(ctx, models.KindStory, event.Hashes.Target, "votes", 1); err != nil {
			return err
		}
		return d.store.RecordVoteOption(ctx, event.Hashes.Target, event.Value)
	default:
		return events.ErrInvalidEvent
	}
}

func (d *Dispatcher) applyReply(ctx context.Context, event events.ActionEvent) error {
	columns := map[string]string{
		events.ActionView:  "views",
		events.ActionLike:  "likes",
		events.ActionReply: "replies",
	}

	column, ok := columns[event.Action]
	if !ok {
		return events.ErrInvalidEvent
	}
	return d.store.IncrementCounter(ctx, models.KindReply, event.Hashes.Target, column, event.Value)
}
