package bookings

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/MrEthical07/authengine"
	"github.com/MrEthical07/authengine/internal/keylock"
	"github.com/MrEthical07/authengine/internal/logutil"
	"github.com/MrEthical07/authengine/store"
	"github.com/google/uuid"
)

const (
	msgNoBookings      = "No bookings found."
	msgBookingNotFound = "Booking not found."
	msgBookingExists   = "Booking already exists."
	msgEndBeforeStart  = "Booking end must not be before its start."
	msgStoreFailure    = "Booking store unavailable."

	msgDenyView   = "You do not have permission to view this user's bookings."
	msgDenyAdd    = "You do not have permission to add a booking to this user."
	msgDenyDelete = "You do not have permission to delete a booking from this user."
	msgDenyEdit   = "You do not have permission to edit a booking from this user."
)

// Booking is one reservation owned by a user.
type Booking struct {
	ID          string    `json:"booking_id"`
	Created     time.Time `json:"created"`
	Name        string    `json:"name"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
}

// Authorizer is the privilege check bookings are gated by.
// *authengine.Engine satisfies it.
type Authorizer interface {
	Authorize(ctx context.Context, actor, token, target string) error
}

// Service manages per-owner booking lists. An actor may read and change the
// bookings of itself and of any account ranked below it.
type Service struct {
	auth  Authorizer
	store store.Store
	locks *keylock.Striped
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides time.Now for Created stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// New returns a Service persisting one JSON list per owner in s.
func New(auth Authorizer, s store.Store, opts ...Option) *Service {
	svc := &Service{
		auth:  auth,
		store: s,
		locks: keylock.New(0),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// List returns every booking of owner.
func (s *Service) List(ctx context.Context, actor, token, owner string) ([]Booking, error) {
	unlock := s.locks.Lock(owner)
	defer unlock()

	return s.listLocked(ctx, actor, token, owner)
}

// Get returns one booking of owner.
func (s *Service) Get(ctx context.Context, actor, token, owner, id string) (*Booking, error) {
	unlock := s.locks.Lock(owner)
	defer unlock()

	list, err := s.listLocked(ctx, actor, token, owner)
	if err != nil {
		return nil, err
	}
	i := indexOf(list, id)
	if i < 0 {
		return nil, authengine.NewError(authengine.ErrNotFound, msgBookingNotFound)
	}
	return &list[i], nil
}

func (s *Service) listLocked(ctx context.Context, actor, token, owner string) ([]Booking, error) {
	if err := s.authorize(ctx, actor, token, owner, msgDenyView); err != nil {
		return nil, err
	}
	list, err := s.load(ctx, owner)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, authengine.NewError(authengine.ErrNotFound, msgNoBookings)
	}
	return list, nil
}

// Add appends b to owner's bookings. An empty ID is replaced by a random
// UUID and Created is always stamped by the Service.
//
// Every mutation checks permission while holding the owner's lock, so a
// Purge that follows the owner's deletion cannot be outrun by a write that
// was authorized before it.
func (s *Service) Add(ctx context.Context, actor, token, owner string, b Booking) (*Booking, error) {
	unlock := s.locks.Lock(owner)
	defer unlock()

	if err := s.authorize(ctx, actor, token, owner, msgDenyAdd); err != nil {
		return nil, err
	}
	if err := validate(b); err != nil {
		return nil, err
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	b.Created = s.now().UTC()

	list, err := s.load(ctx, owner)
	if err != nil {
		return nil, err
	}
	if indexOf(list, b.ID) >= 0 {
		return nil, authengine.NewError(authengine.ErrConflict, msgBookingExists)
	}
	list = append(list, b)
	if err := s.save(ctx, owner, list); err != nil {
		return nil, err
	}

	logger := logutil.GetOrDefault(ctx)
	logger.Info().
		Str("actor", actor).
		Str("owner", owner).
		Str("booking_id", b.ID).
		Msg("booking added")
	return &b, nil
}

// Delete removes one booking of owner.
func (s *Service) Delete(ctx context.Context, actor, token, owner, id string) error {
	unlock := s.locks.Lock(owner)
	defer unlock()

	if err := s.authorize(ctx, actor, token, owner, msgDenyDelete); err != nil {
		return err
	}

	list, err := s.load(ctx, owner)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return authengine.NewError(authengine.ErrNotFound, msgNoBookings)
	}
	i := indexOf(list, id)
	if i < 0 {
		return authengine.NewError(authengine.ErrNotFound, msgBookingNotFound)
	}
	list = append(list[:i], list[i+1:]...)
	if err := s.save(ctx, owner, list); err != nil {
		return err
	}

	logger := logutil.GetOrDefault(ctx)
	logger.Info().
		Str("actor", actor).
		Str("owner", owner).
		Str("booking_id", id).
		Msg("booking deleted")
	return nil
}

// Edit replaces the booking id of owner with b. The ID and Created stamp of
// the stored booking are kept.
func (s *Service) Edit(ctx context.Context, actor, token, owner, id string, b Booking) (*Booking, error) {
	unlock := s.locks.Lock(owner)
	defer unlock()

	if err := s.authorize(ctx, actor, token, owner, msgDenyEdit); err != nil {
		return nil, err
	}
	if err := validate(b); err != nil {
		return nil, err
	}

	list, err := s.load(ctx, owner)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, authengine.NewError(authengine.ErrNotFound, msgNoBookings)
	}
	i := indexOf(list, id)
	if i < 0 {
		return nil, authengine.NewError(authengine.ErrNotFound, msgBookingNotFound)
	}
	b.ID = list[i].ID
	b.Created = list[i].Created
	list[i] = b
	if err := s.save(ctx, owner, list); err != nil {
		return nil, err
	}
	return &b, nil
}

// Purge drops every booking of owner without an authorization check. It is
// called after the owner account has been deleted.
func (s *Service) Purge(ctx context.Context, owner string) error {
	unlock := s.locks.Lock(owner)
	defer unlock()

	if err := s.store.Delete(ctx, owner); err != nil {
		return s.storeFailure(ctx, owner, err)
	}
	return nil
}

// authorize runs the engine check and rewords a refusal for the operation.
func (s *Service) authorize(ctx context.Context, actor, token, owner, denied string) error {
	err := s.auth.Authorize(ctx, actor, token, owner)
	if errors.Is(err, authengine.ErrForbidden) {
		return authengine.NewError(authengine.ErrForbidden, denied)
	}
	return err
}

func (s *Service) load(ctx context.Context, owner string) ([]Booking, error) {
	raw, err := s.store.Get(ctx, owner)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, s.storeFailure(ctx, owner, err)
	}
	var list []Booking
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, s.storeFailure(ctx, owner, err)
	}
	return list, nil
}

func (s *Service) save(ctx context.Context, owner string, list []Booking) error {
	if len(list) == 0 {
		if err := s.store.Delete(ctx, owner); err != nil {
			return s.storeFailure(ctx, owner, err)
		}
		return nil
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return s.storeFailure(ctx, owner, err)
	}
	if err := s.store.Put(ctx, owner, raw); err != nil {
		return s.storeFailure(ctx, owner, err)
	}
	return nil
}

func (s *Service) storeFailure(ctx context.Context, owner string, err error) error {
	logger := logutil.GetOrDefault(ctx)
	logger.Error().Err(err).Str("owner", owner).Msg("booking store failure")
	return authengine.NewError(authengine.ErrEngineNotReady, msgStoreFailure)
}

func validate(b Booking) error {
	if !b.Start.IsZero() && !b.End.IsZero() && b.End.Before(b.Start) {
		return authengine.NewError(authengine.ErrInvalidInput, msgEndBeforeStart)
	}
	return nil
}

func indexOf(list []Booking, id string) int {
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}
