package ephemeral

import (
	"context"
	"time"

	"github.com/yocore/yocore/internal/ids"
	"github.com/yocore/yocore/internal/storage"
)

// InsertMarker records a detected marker.
func (s *Store) InsertMarker(ctx context.Context, m storage.Marker) (int64, error) {
	s.markerMu.Lock()
	defer s.markerMu.Unlock()

	s.nextMarkerID++
	m.ID = s.nextMarkerID
	stored := m
	s.markers[m.ID] = &stored
	return m.ID, nil
}

// DeleteMarker removes a marker explicitly.
func (s *Store) DeleteMarker(ctx context.Context, id int64) error {
	s.markerMu.Lock()
	defer s.markerMu.Unlock()

	if _, ok := s.markers[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.markers, id)
	return nil
}

// ListMarkers returns every marker for a session.
func (s *Store) ListMarkers(ctx context.Context, sessionID string) ([]storage.Marker, error) {
	s.markerMu.RLock()
	defer s.markerMu.RUnlock()

	var out []storage.Marker
	for _, m := range s.markers {
		if m.SessionID == sessionID {
			out = append(out, *m)
		}
	}
	return out, nil
}

// SaveSessionContext upserts the lifeboat payload for a session.
func (s *Store) SaveSessionContext(ctx context.Context, sc storage.SessionContext) error {
	s.ctxMu.Lock()
	defer s.ctxMu.Unlock()

	now := time.Now()
	if existing, ok := s.contexts[sc.SessionID]; ok {
		sc.CreatedAt = existing.CreatedAt
	} else {
		sc.CreatedAt = now
	}
	sc.UpdatedAt = now
	s.contexts[sc.SessionID] = sc
	return nil
}

// GetSessionContext retrieves the lifeboat payload, if any.
func (s *Store) GetSessionContext(ctx context.Context, sessionID string) (storage.SessionContext, error) {
	s.ctxMu.RLock()
	defer s.ctxMu.RUnlock()

	sc, ok := s.contexts[sessionID]
	if !ok {
		return storage.SessionContext{}, storage.ErrNotFound
	}
	return sc, nil
}

// GetOrCreateInstanceMetadata returns a process-lifetime singleton —
// ephemeral mode has no restart-stable UUID since nothing persists.
func (s *Store) GetOrCreateInstanceMetadata(ctx context.Context, instanceName string) (storage.InstanceMetadata, error) {
	s.metaOnce.Do(func() {
		s.meta = storage.InstanceMetadata{
			UUID:         ids.New(),
			InstanceName: instanceName,
			CreatedAt:    time.Now(),
		}
	})
	return s.meta, nil
}
