package journal

import "time"

// SetClock replaces the store clock.
func (s *Store) SetClock(clock func() time.Time) {
	s.clock = clock
}
