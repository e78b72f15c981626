package moderation

import "souqmarket/catalog"

// Action is a moderation operation.
type Action string

const (
	ActionApprove    Action = "approve"
	ActionReject     Action = "reject"
	ActionSelfDelete Action = "self_delete"
)

type transition struct {
	to         catalog.Status
	deactivate bool
}

// transitions lists the allowed moves per action keyed by the current status.
// Rejected and deleted are terminal.
var transitions = map[Action]map[catalog.Status]transition{
	ActionApprove: {
		catalog.StatusPending: {to: catalog.StatusApproved},
	},
	ActionReject: {
		catalog.StatusPending: {to: catalog.StatusRejected, deactivate: true},
	},
	ActionSelfDelete: {
		catalog.StatusPending:  {to: catalog.StatusDeleted, deactivate: true},
		catalog.StatusApproved: {to: catalog.StatusDeleted, deactivate: true},
	},
}

// noops are requests that already hold and succeed without writing.
var noops = map[Action]catalog.Status{
	ActionApprove:    catalog.StatusApproved,
	ActionSelfDelete: catalog.StatusDeleted,
}

func next(a Action, from catalog.Status) (transition, bool) {
	t, ok := transitions[a][from]
	return t, ok
}

func isNoop(a Action, current catalog.Status) bool {
	s, ok := noops[a]
	return ok && s == current
}
