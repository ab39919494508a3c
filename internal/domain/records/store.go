package records

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Store is the in-memory copy of everything the portal has fetched from the
// Backend API. All mutation goes through its methods; reads return copies.
//
// Writes follow an optimistic pattern: after the backend confirms a write the
// store patches its own collection instead of re-fetching.
type Store struct {
	backend   Backend
	cache     DirectoryCache
	publisher Publisher
	logger    zerolog.Logger

	mu            sync.RWMutex
	loading       bool
	authenticated bool
	// generation changes on every auth transition so a fetch or write that
	// started before a sign-out never repopulates protected collections.
	generation   uint64
	vaccines     []Vaccine
	news         []NewsArticle
	appointments []Appointment
	covidTests   []CovidTest
	vaccinations []Vaccination
	patients     []Patient
	hospitals    []Hospital

	doseLocks keyedLocks
}

// NewStore builds an empty, signed-out store. cache and publisher may be nil.
func NewStore(backend Backend, cache DirectoryCache, publisher Publisher, logger zerolog.Logger) *Store {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	return &Store{
		backend:   backend,
		cache:     cache,
		publisher: publisher,
		logger:    logger.With().Str("component", "record_store").Logger(),
		loading:   true,
	}
}

// FetchPublicData loads vaccines and published news. Failures are logged and
// leave the previous collection in place; the loading flag is cleared either
// way.
func (s *Store) FetchPublicData(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
	}()

	if vaccines, err := s.backend.ListVaccines(ctx); err != nil {
		s.logReadError(err, "fetch_public_data", CollectionVaccines)
	} else {
		s.mu.Lock()
		s.vaccines = vaccines
		s.mu.Unlock()
		s.publish(ctx, Change{Collection: CollectionVaccines, Action: ActionLoaded})
	}

	if news, err := s.backend.ListPublishedNews(ctx); err != nil {
		s.logReadError(err, "fetch_public_data", CollectionNews)
	} else {
		s.mu.Lock()
		s.news = news
		s.mu.Unlock()
		s.publish(ctx, Change{Collection: CollectionNews, Action: ActionLoaded})
	}
}

// FetchProtectedData loads appointments, covid tests and vaccinations. It is
// a no-op while signed out. Each collection is replaced only when its own
// fetch succeeds.
func (s *Store) FetchProtectedData(ctx context.Context) {
	s.mu.RLock()
	gen, authenticated := s.generation, s.authenticated
	s.mu.RUnlock()
	if !authenticated {
		s.logger.Debug().Msg("skipping protected fetch while signed out")
		return
	}

	if appts, err := s.backend.ListAppointments(ctx); err != nil {
		s.logReadError(err, "fetch_protected_data", CollectionAppointments)
	} else if s.applyProtected(gen, func() { s.appointments = appts }) {
		s.publish(ctx, Change{Collection: CollectionAppointments, Action: ActionLoaded})
	}

	if tests, err := s.backend.ListCovidTests(ctx); err != nil {
		s.logReadError(err, "fetch_protected_data", CollectionCovidTests)
	} else if s.applyProtected(gen, func() { s.covidTests = tests }) {
		s.publish(ctx, Change{Collection: CollectionCovidTests, Action: ActionLoaded})
	}

	if vacs, err := s.backend.ListVaccinations(ctx); err != nil {
		s.logReadError(err, "fetch_protected_data", CollectionVaccinations)
	} else if s.applyProtected(gen, func() { s.vaccinations = vacs }) {
		s.publish(ctx, Change{Collection: CollectionVaccinations, Action: ActionLoaded})
	}
}

// OnAuthChange is the session listener. Signing in triggers exactly one
// protected fetch; signing out empties the protected collections. Repeated
// notifications of the current state are ignored.
func (s *Store) OnAuthChange(ctx context.Context, authenticated bool) {
	s.mu.Lock()
	if s.authenticated == authenticated {
		s.mu.Unlock()
		return
	}
	s.authenticated = authenticated
	s.generation++
	if !authenticated {
		s.appointments = nil
		s.covidTests = nil
		s.vaccinations = nil
	}
	s.mu.Unlock()

	if authenticated {
		s.logger.Info().Msg("session signed in; loading protected data")
		s.FetchProtectedData(ctx)
		return
	}

	s.logger.Info().Msg("session signed out; protected data cleared")
	for _, c := range []string{CollectionAppointments, CollectionCovidTests, CollectionVaccinations} {
		s.publish(ctx, Change{Collection: c, Action: ActionCleared})
	}
}

// Loading reports whether the first public fetch is still outstanding.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

// Authenticated reports the auth state last delivered to OnAuthChange.
func (s *Store) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// Summary is a cheap overview of the store for status endpoints.
type Summary struct {
	Loading       bool           `json:"loading"`
	Authenticated bool           `json:"authenticated"`
	Counts        map[string]int `json:"counts"`
}

func (s *Store) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Summary{
		Loading:       s.loading,
		Authenticated: s.authenticated,
		Counts: map[string]int{
			CollectionVaccines:     len(s.vaccines),
			CollectionNews:         len(s.news),
			CollectionAppointments: len(s.appointments),
			CollectionCovidTests:   len(s.covidTests),
			CollectionVaccinations: len(s.vaccinations),
			CollectionPatients:     len(s.patients),
			CollectionHospitals:    len(s.hospitals),
		},
	}
}

// protectedGeneration returns the current auth generation, or
// ErrNotAuthenticated while signed out.
func (s *Store) protectedGeneration() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.authenticated {
		return 0, ErrNotAuthenticated
	}
	return s.generation, nil
}

// applyProtected runs fn under the write lock only if no auth transition
// happened since gen was read and the session is still signed in.
func (s *Store) applyProtected(gen uint64, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen || !s.authenticated {
		return false
	}
	fn()
	return true
}

func (s *Store) publish(ctx context.Context, ch Change) {
	if err := s.publisher.Publish(ctx, ch); err != nil {
		s.logger.Warn().Err(err).Str("collection", ch.Collection).Str("action", ch.Action).Msg("publish change failed")
	}
}

func (s *Store) logReadError(err error, op, collection string) {
	s.logger.Error().Err(err).Str("op", op).Str("collection", collection).
		Msg("backend read failed; keeping previous collection")
}

func (s *Store) logWriteError(err error, op string) {
	s.logger.Error().Err(err).Str("op", op).Msg("backend write failed")
}

// keyedLocks hands out one mutex per key.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedLocks) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
