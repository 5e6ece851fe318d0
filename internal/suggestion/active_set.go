package suggestion

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/saaga0h/jeeves-anticipation/internal/cooldown"
)

// knownLimit caps how many admitted ids are remembered for feedback validation
const knownLimit = 1000

// ActiveSetConfig holds admission settings
type ActiveSetConfig struct {
	MaxActive int
	Cooldown  time.Duration
}

// ActiveSet is the bounded collection of live suggestions
type ActiveSet struct {
	mu     sync.Mutex
	cfg    ActiveSetConfig
	active map[string]Suggestion

	// per-category time last shown
	shownAt *cooldown.Tracker
	// categories of admitted suggestions, oldest first
	shown []Category
	// ids ever admitted, oldest first
	known      []string
	knownIndex map[string]bool

	logger *slog.Logger
}

// ActiveSetState is the persisted form of an ActiveSet
type ActiveSetState struct {
	Active  []Suggestion         `json:"active"`
	ShownAt map[string]time.Time `json:"shown_at"`
	Shown   []Category           `json:"shown"`
	Known   []string             `json:"known"`
}

// NewActiveSet creates an empty active set
func NewActiveSet(cfg ActiveSetConfig, logger *slog.Logger) *ActiveSet {
	if cfg.MaxActive <= 0 {
		cfg.MaxActive = 5
	}
	return &ActiveSet{
		cfg:        cfg,
		active:     make(map[string]Suggestion),
		shownAt:    cooldown.NewTracker(),
		knownIndex: make(map[string]bool),
		logger:     logger,
	}
}

// Admit merges candidates into the set and returns the newly admitted ones.
// Expired suggestions are dropped first, then candidates duplicating an
// active (category, title) or hitting a category cooldown are rejected, and
// finally the set is trimmed to capacity by score.
func (s *ActiveSet) Admit(candidates []Suggestion, now time.Time) []Suggestion {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked(now)
	s.shownAt.Prune(now, s.cfg.Cooldown)

	ordered := make([]Suggestion, len(candidates))
	copy(ordered, candidates)
	sortByRank(ordered)

	activeKeys := make(map[string]bool, len(s.active))
	for _, a := range s.active {
		activeKeys[a.Key()] = true
	}

	batchCategories := make(map[Category]bool)
	var accepted []Suggestion
	for _, c := range ordered {
		if c.Expired(now) {
			continue
		}
		if activeKeys[c.Key()] {
			s.logger.Debug("Suggestion rejected as duplicate", "category", c.Category, "title", c.Title)
			continue
		}
		if s.cfg.Cooldown > 0 {
			if batchCategories[c.Category] || s.shownAt.Active(string(c.Category), now, s.cfg.Cooldown) {
				s.logger.Debug("Suggestion rejected by cooldown", "category", c.Category, "title", c.Title)
				continue
			}
		}
		if _, exists := s.active[c.ID]; exists {
			continue
		}

		activeKeys[c.Key()] = true
		batchCategories[c.Category] = true
		accepted = append(accepted, c.Clone())
	}

	if len(accepted) == 0 {
		return nil
	}

	all := make([]Suggestion, 0, len(s.active)+len(accepted))
	for _, a := range s.active {
		all = append(all, a)
	}
	all = append(all, accepted...)
	sortByRank(all)
	if len(all) > s.cfg.MaxActive {
		for _, dropped := range all[s.cfg.MaxActive:] {
			delete(s.active, dropped.ID)
		}
		all = all[:s.cfg.MaxActive]
	}

	survivors := make(map[string]bool, len(all))
	for _, a := range all {
		survivors[a.ID] = true
	}

	var admitted []Suggestion
	for _, c := range accepted {
		if !survivors[c.ID] {
			continue
		}
		s.active[c.ID] = c
		s.shownAt.Record(string(c.Category), now)
		s.shown = append(s.shown, c.Category)
		s.rememberLocked(c.ID)
		admitted = append(admitted, c.Clone())
	}

	if len(s.shown) > RecencyWindow {
		s.shown = append([]Category(nil), s.shown[len(s.shown)-RecencyWindow:]...)
	}

	return admitted
}

// Active returns the live suggestions ordered by rank
func (s *ActiveSet) Active(now time.Time) []Suggestion {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expireLocked(now)

	out := make([]Suggestion, 0, len(s.active))
	for _, a := range s.active {
		out = append(out, a.Clone())
	}
	sortByRank(out)
	return out
}

// Remove takes a live suggestion out of the set. It returns ErrNotFound for
// unknown or expired ids.
func (s *ActiveSet) Remove(id string, now time.Time) (Suggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.active[id]
	if !ok {
		return Suggestion{}, ErrNotFound
	}
	if a.Expired(now) {
		delete(s.active, id)
		return Suggestion{}, ErrNotFound
	}

	delete(s.active, id)
	return a, nil
}

// Known reports whether id was ever admitted, even if it has since expired
func (s *ActiveSet) Known(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.knownIndex[id]
}

// RecentCategories returns the categories of the most recently admitted suggestions, oldest first
func (s *ActiveSet) RecentCategories() []Category {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Category(nil), s.shown...)
}

// Len returns the number of suggestions held, including any not yet expired out
func (s *ActiveSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.active)
}

// Snapshot captures the set for persistence
func (s *ActiveSet) Snapshot() ActiveSetState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := ActiveSetState{
		Active:  make([]Suggestion, 0, len(s.active)),
		ShownAt: s.shownAt.Snapshot(),
		Shown:   append([]Category(nil), s.shown...),
		Known:   append([]string(nil), s.known...),
	}
	for _, a := range s.active {
		state.Active = append(state.Active, a.Clone())
	}
	sortByRank(state.Active)
	return state
}

// Restore replaces the contents of the set. Entries beyond capacity are dropped by rank.
func (s *ActiveSet) Restore(state ActiveSetState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	restored := make([]Suggestion, len(state.Active))
	copy(restored, state.Active)
	sortByRank(restored)
	if len(restored) > s.cfg.MaxActive {
		restored = restored[:s.cfg.MaxActive]
	}

	s.active = make(map[string]Suggestion, len(restored))
	keys := make(map[string]bool, len(restored))
	for _, a := range restored {
		if keys[a.Key()] {
			continue
		}
		keys[a.Key()] = true
		s.active[a.ID] = a.Clone()
	}

	s.shownAt.Restore(state.ShownAt)
	s.shown = append([]Category(nil), state.Shown...)

	s.known = nil
	s.knownIndex = make(map[string]bool, len(state.Known))
	for _, id := range state.Known {
		s.rememberLocked(id)
	}
	for id := range s.active {
		s.rememberLocked(id)
	}
}

func (s *ActiveSet) expireLocked(now time.Time) {
	for id, a := range s.active {
		if a.Expired(now) {
			delete(s.active, id)
			s.logger.Debug("Suggestion expired", "id", id, "title", a.Title)
		}
	}
}

func (s *ActiveSet) rememberLocked(id string) {
	if s.knownIndex[id] {
		return
	}
	s.known = append(s.known, id)
	s.knownIndex[id] = true
	if len(s.known) > knownLimit {
		delete(s.knownIndex, s.known[0])
		s.known = s.known[1:]
	}
}

// sortByRank orders by score descending, then earliest creation, then id
func sortByRank(list []Suggestion) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].FinalScore != list[j].FinalScore {
			return list[i].FinalScore > list[j].FinalScore
		}
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}
