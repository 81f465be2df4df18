package relation

import (
	"context"
	"math"
	"time"

	"github.com/aimerfeng/neuralfs/internal/metadata"
)

// sessionLookback bounds how far back GetCoOccurringFiles looks when the
// session tracker scores a same-session relation. A year comfortably covers
// any single installation's history without scanning the whole table.
const sessionLookback = 365 * 24 * time.Hour

// TrackFileAccess records that fileID was touched by the user right now. If
// no session is open, or the previous access was more than SessionTimeout
// ago, the idle session (if any) is closed first and a new one opened: a
// session is an interval of user activity with no gap longer than
// SessionTimeout between accesses.
func (s *Service) TrackFileAccess(ctx context.Context, fileID string) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	now := time.Now()
	if s.session != nil && now.Sub(s.lastActivity) > s.cfg.SessionTimeout {
		if err := s.closeSessionLocked(ctx); err != nil {
			return err
		}
	}

	if s.session == nil {
		sess, err := s.store.OpenSession(ctx)
		if err != nil {
			return err
		}
		s.session = sess
		s.sessionFiles = make(map[string]bool)
	}

	if err := s.store.RecordSessionAccess(ctx, &metadata.SessionFileAccess{
		SessionID:  s.session.ID,
		FileID:     fileID,
		AccessedAt: now,
	}); err != nil {
		return err
	}

	s.sessionFiles[fileID] = true
	s.lastActivity = now
	return nil
}

// CloseIdleSession closes the current session if it has been idle longer
// than SessionTimeout, without requiring a new access to trigger it (e.g. a
// periodic sweep). Returns true if a session was closed.
func (s *Service) CloseIdleSession(ctx context.Context) (bool, error) {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()

	if s.session == nil || time.Since(s.lastActivity) <= s.cfg.SessionTimeout {
		return false, nil
	}
	if err := s.closeSessionLocked(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// EndSession force-closes the current session regardless of idle time, for
// explicit shutdown paths.
func (s *Service) EndSession(ctx context.Context) error {
	s.sessionMu.Lock()
	defer s.sessionMu.Unlock()
	return s.closeSessionLocked(ctx)
}

// closeSessionLocked closes the open session in the store and, if it
// touched two or more distinct files, emits same-session relations for
// every pair. Callers must hold sessionMu.
func (s *Service) closeSessionLocked(ctx context.Context) error {
	if s.session == nil {
		return nil
	}
	sessionID := s.session.ID
	files := make([]string, 0, len(s.sessionFiles))
	for f := range s.sessionFiles {
		files = append(files, f)
	}

	if err := s.store.CloseSession(ctx, sessionID); err != nil {
		return err
	}
	s.session = nil
	s.sessionFiles = nil

	if len(files) < 2 {
		return nil
	}
	return s.emitSameSessionRelations(ctx, files)
}

// emitSameSessionRelations creates or refreshes a co-occurrence relation for
// every unordered pair in files, strength derived from how many sessions
// within sessionLookback have touched both files, discounted by
// CoOccurrenceDecay per co-occurrence so a pair seen together once is weak
// and a pair seen together repeatedly approaches 1.
func (s *Service) emitSameSessionRelations(ctx context.Context, files []string) error {
	for i := 0; i < len(files); i++ {
		coOccurring, err := s.store.GetCoOccurringFiles(ctx, files[i], sessionLookback)
		if err != nil {
			return err
		}
		for j := i + 1; j < len(files); j++ {
			count := coOccurring[files[j]]
			if count <= 0 {
				count = 1 // this session's own co-occurrence, not yet reflected in the store read above
			}
			strength := 1 - math.Pow(s.cfg.CoOccurrenceDecay, float64(count))
			if err := s.upsertRelation(ctx, files[i], files[j], metadata.RelationCoOccurrence, strength); err != nil {
				return err
			}
		}
	}
	return nil
}
