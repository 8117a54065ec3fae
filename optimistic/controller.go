// Package optimistic implements the tentative-apply-then-confirm pattern
// behind instant toggles such as like and follow: flip the local state
// first, confirm against the remote API, roll back if the call fails.
package optimistic

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// EditState tracks the lifecycle of one optimistic edit.
type EditState string

const (
	EditPending    EditState = "pending"
	EditConfirmed  EditState = "confirmed"
	EditRolledBack EditState = "rolled_back"
)

// Edit captures a single tentative state change until it settles.
type Edit struct {
	ID        string
	EntityID  string
	Previous  bool
	Tentative bool
	State     EditState
}

// View is the local state the controller mutates. Apply must be cheap and
// must not fail: it is called once to apply the tentative value and, on
// remote failure, once more to restore the previous one.
type View interface {
	Apply(value bool)
}

// ViewFunc adapts a function to the View interface.
type ViewFunc func(value bool)

func (f ViewFunc) Apply(value bool) { f(value) }

// RemoteCall performs the create-or-delete call that makes the tentative
// value authoritative. It receives the desired value and is issued exactly
// once per toggle.
type RemoteCall func(ctx context.Context, desired bool) error

// ErrTogglePending is returned when a toggle arrives for an entity whose
// previous toggle has not settled. The caller treats it as a no-op; this is
// what keeps a rapid double-click from racing a create against a delete.
var ErrTogglePending = errors.New("a toggle for this entity is still pending")

// Controller serializes toggles per entity. Toggles on distinct entities
// are independent and may be in flight concurrently.
type Controller struct {
	lock    sync.Mutex
	pending map[string]*Edit
}

func NewController() *Controller {
	return &Controller{pending: make(map[string]*Edit)}
}

// Toggle flips the boolean state of the entity: the view sees the new value
// immediately, then the remote call settles it. On failure the previous
// value is restored exactly and the error is returned for display; the
// caller's state is back where it started.
func (c *Controller) Toggle(ctx context.Context, entityID string, current bool, view View, call RemoteCall) error {
	edit, err := c.begin(entityID, current)
	if err != nil {
		return err
	}

	view.Apply(edit.Tentative)

	if err := call(ctx, edit.Tentative); err != nil {
		view.Apply(edit.Previous)
		c.settle(edit, EditRolledBack)
		log.Debug().Str("entity_id", entityID).Err(err).Msg("optimistic: toggle rolled back")
		return errors.Wrapf(err, "[Controller.Toggle] entity %s", entityID)
	}

	c.settle(edit, EditConfirmed)
	return nil
}

// Pending reports whether an unsettled edit exists for the entity.
func (c *Controller) Pending(entityID string) bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	_, ok := c.pending[entityID]
	return ok
}

func (c *Controller) begin(entityID string, current bool) (*Edit, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if _, ok := c.pending[entityID]; ok {
		return nil, ErrTogglePending
	}
	edit := &Edit{
		ID:        uuid.New().String(),
		EntityID:  entityID,
		Previous:  current,
		Tentative: !current,
		State:     EditPending,
	}
	c.pending[entityID] = edit
	return edit, nil
}

func (c *Controller) settle(edit *Edit, state EditState) {
	c.lock.Lock()
	defer c.lock.Unlock()
	edit.State = state
	delete(c.pending, edit.EntityID)
}
