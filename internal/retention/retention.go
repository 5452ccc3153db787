// Package retention decides what survives of a run's local working copy.
// The policy is injected by the caller instead of being an unconditional
// delete, so a failed upload no longer destroys the only copy of a dump.
package retention

import (
	"os"

	"github.com/rs/zerolog/log"
)

// Action is what happens to the local working copy after a run.
type Action int

const (
	Keep Action = iota
	Delete
)

func (a Action) String() string {
	if a == Delete {
		return "delete"
	}
	return "keep"
}

// ParseAction maps the config tokens "keep"/"delete" to an Action; anything
// else falls back to def.
func ParseAction(s string, def Action) Action {
	switch s {
	case "keep":
		return Keep
	case "delete":
		return Delete
	default:
		return def
	}
}

// Policy selects the action per run outcome.
type Policy struct {
	OnSuccess Action
	OnFailure Action
}

// Apply enforces the policy on the run's working directory. Removal is
// recursive and idempotent: a directory that is already gone is not an
// error. The scope is exactly dir, never a parent.
func (p Policy) Apply(dir string, succeeded bool) error {
	action := p.OnFailure
	if succeeded {
		action = p.OnSuccess
	}
	log.Debug().
		Str("action", "retention").
		Str("dir", dir).
		Bool("succeeded", succeeded).
		Str("decision", action.String()).
		Msg("applying retention policy")

	if action == Keep {
		return nil
	}
	return os.RemoveAll(dir)
}
