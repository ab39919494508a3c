package records

import (
	"context"
	"encoding/json"
	"fmt"
)

// FetchDirectory loads the admin patient and hospital listings. A successful
// listing is written to the directory cache; a failed one falls back to the
// last cached copy, and if there is none the current collection is kept.
func (s *Store) FetchDirectory(ctx context.Context) {
	if patients, ok := loadDirectory(ctx, s, CollectionPatients, s.backend.ListPatients); ok {
		s.mu.Lock()
		s.patients = patients
		s.mu.Unlock()
		s.publish(ctx, Change{Collection: CollectionPatients, Action: ActionLoaded})
	}
	if hospitals, ok := loadDirectory(ctx, s, CollectionHospitals, s.backend.ListHospitals); ok {
		s.mu.Lock()
		s.hospitals = hospitals
		s.mu.Unlock()
		s.publish(ctx, Change{Collection: CollectionHospitals, Action: ActionLoaded})
	}
}

func loadDirectory[T any](ctx context.Context, s *Store, kind string, list func(context.Context) ([]T, error)) ([]T, bool) {
	items, err := list(ctx)
	if err == nil {
		s.saveDirectory(ctx, kind, items)
		return items, true
	}
	s.logReadError(err, "fetch_directory", kind)

	if s.cache == nil {
		return nil, false
	}
	payload, cerr := s.cache.Load(ctx, kind)
	if cerr != nil {
		s.logger.Warn().Err(cerr).Str("kind", kind).Msg("directory cache load failed")
		return nil, false
	}
	if payload == nil {
		return nil, false
	}
	var cached []T
	if jerr := json.Unmarshal(payload, &cached); jerr != nil {
		s.logger.Warn().Err(jerr).Str("kind", kind).Msg("directory cache entry unreadable")
		return nil, false
	}
	s.logger.Info().Str("kind", kind).Int("count", len(cached)).Msg("serving cached directory listing")
	return cached, true
}

func (s *Store) saveDirectory(ctx context.Context, kind string, v interface{}) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err == nil {
		err = s.cache.Save(ctx, kind, payload)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("kind", kind).Msg("directory cache save failed")
	}
}

// UpdateHospitalStatus approves or rejects a hospital registration and patches
// the local directory entry. A locally known hospital that has already been
// decided is refused without calling the backend.
func (s *Store) UpdateHospitalStatus(ctx context.Context, id string, status HospitalStatus) error {
	if status != HospitalApproved && status != HospitalRejected {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if cur, ok := s.hospitalStatus(id); ok && !cur.CanTransitionTo(status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur, status)
	}
	if err := s.backend.UpdateHospitalStatus(ctx, id, status); err != nil {
		s.logWriteError(err, "update_hospital_status")
		return fmt.Errorf("update hospital %s status: %w", id, err)
	}

	s.mu.Lock()
	for i := range s.hospitals {
		if s.hospitals[i].ID == id && s.hospitals[i].Status.CanTransitionTo(status) {
			s.hospitals[i].Status = status
		}
	}
	hospitals := all(s.hospitals)
	s.mu.Unlock()

	s.saveDirectory(ctx, CollectionHospitals, hospitals)
	s.publish(ctx, Change{Collection: CollectionHospitals, Action: ActionUpdated, ID: id, Data: map[string]string{"status": string(status)}})
	return nil
}

func (s *Store) hospitalStatus(id string) (HospitalStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, h := range s.hospitals {
		if h.ID == id {
			return h.Status, true
		}
	}
	return "", false
}
