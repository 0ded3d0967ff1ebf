package events

import (
	"errors"
	"fmt"

	"github.com/fescii/qval-sub002/model"
)

// Event subjects (topics)
const (
	SubjectAction = "actions.event"
	SubjectSocket = "actions.socket"
)

// Action verbs carried on an ActionEvent.
const (
	ActionFollow    = "follow"
	ActionSubscribe = "subscribe"
	ActionLike      = "like"
	ActionReply     = "reply"
	ActionStory     = "story"
	ActionView      = "view"
	ActionVote      = "vote"
	ActionConnect   = "connect"
)

// ErrInvalidEvent marks a payload that can never be processed; consumers
// log it and terminate the delivery instead of retrying.
var ErrInvalidEvent = errors.New("invalid action event")

// Hashes carries the external identifiers an ActionEvent targets. Counter
// actions set Target; user connect events set From/To instead.
type Hashes struct {
	Target string   `json:"target,omitempty"`
	From   string   `json:"from,omitempty"`
	To     string   `json:"to,omitempty"`
	Topics []string `json:"topics,omitempty"`
}

// ActionEvent is published when an interaction row is created or destroyed.
// It describes a relative counter mutation to apply; for directed social
// interactions it additionally carries the actor fields the activity
// generator needs (Author, Name, Verb).
type ActionEvent struct {
	Kind   string `json:"kind"`
	Action string `json:"action"`
	Hashes Hashes `json:"hashes"`
	Value  int    `json:"value"`
	User   string `json:"user,omitempty"`

	Author string `json:"author,omitempty"`
	Name   string `json:"name,omitempty"`
	Verb   string `json:"verb,omitempty"`
}

// SocketEvent bridges a persisted activity to connected realtime clients.
type SocketEvent struct {
	Type string          `json:"type"`
	Data models.Activity `json:"data"`
}

// actionsForKind enumerates which actions each kind accepts. Anything
// outside this table is a validation failure, never a retry.
var actionsForKind = map[string]map[string]bool{
	models.KindUser: {
		ActionConnect: true,
		ActionReply:   true,
		ActionStory:   true,
		ActionView:    true,
	},
	models.KindTopic: {
		ActionSubscribe: true,
		ActionFollow:    true,
		ActionView:      true,
		ActionStory:     true,
	},
	models.KindStory: {
		ActionView:  true,
		ActionLike:  true,
		ActionReply: true,
		ActionVote:  true,
	},
	models.KindReply: {
		ActionView:  true,
		ActionLike:  true,
		ActionReply: true,
	},
	models.KindTag: {
		ActionStory: true,
	},
	models.KindView: {
		ActionView: true,
	},
}

// Validate checks that the event names a known kind/action pair and carries
// the identifiers that pair requires.
func (e ActionEvent) Validate() error {
	actions, ok := actionsForKind[e.Kind]
	if !ok {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, e.Kind)
	}
	if !actions[e.Action] {
		return fmt.Errorf("%w: kind %q does not accept action %q", ErrInvalidEvent, e.Kind, e.Action)
	}

	switch {
	case e.Kind == models.KindUser && e.Action == ActionConnect:
		if e.Hashes.From == "" || e.Hashes.To == "" {
			return fmt.Errorf("%w: connect event requires from and to hashes", ErrInvalidEvent)
		}
	case e.Kind == models.KindTag:
		if e.Hashes.Target == "" || len(e.Hashes.Topics) == 0 {
			return fmt.Errorf("%w: tag event requires a story hash and topic hashes", ErrInvalidEvent)
		}
	default:
		if e.Hashes.Target == "" {
			return fmt.Errorf("%w: event requires a target hash", ErrInvalidEvent)
		}
	}

	if e.Kind != models.KindTag && e.Action != ActionVote && e.Value != 1 && e.Value != -1 {
		return fmt.Errorf("%w: counter delta must be -1 or +1, got %d", ErrInvalidEvent, e.Value)
	}

	return nil
}

// directedPairs enumerates the kind/action combinations that describe a
// directed social interaction. The same actions on other kinds (a reply
// counter bump on a user, say) are plain denormalization events.
var directedPairs = map[string]map[string]bool{
	models.KindUser: {
		ActionConnect: true,
	},
	models.KindTopic: {
		ActionFollow:    true,
		ActionSubscribe: true,
	},
	models.KindStory: {
		ActionLike:  true,
		ActionReply: true,
		ActionVote:  true,
	},
	models.KindReply: {
		ActionLike:  true,
		ActionReply: true,
	},
}

// Directed reports whether this event describes a directed social
// interaction that should produce an activity record.
func (e ActionEvent) Directed() bool {
	return directedPairs[e.Kind][e.Action] && e.Value >= 0
}
