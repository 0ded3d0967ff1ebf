package events

import "github.com/fescii/qval-sub002/model"

// viewCascades declares the follow-up event emitted when a view row is
// recorded against an entity of the given kind. Keeping the chain in one
// table makes it visible and testable instead of hiding it in a store hook.
var viewCascades = map[string]bool{
	models.KindStory: true,
	models.KindReply: true,
	models.KindTopic: true,
	models.KindUser:  true,
}

// ViewCascade returns the secondary ActionEvent a recorded view spawns:
// a +1 view-counter event on the viewed entity. The second return is false
// for kinds that carry no view counter.
func ViewCascade(kind, target, viewer string) (ActionEvent, bool) {
	if !viewCascades[kind] {
		return ActionEvent{}, false
	}
	return ActionEvent{
		Kind:   kind,
		Action: ActionView,
		Hashes: Hashes{Target: target},
		Value:  1,
		User:   viewer,
	}, true
}
