package speech

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// ClipStore holds synthesized clips in memory until the gateway fetches
// them to play. Entries expire after a TTL because the gateway retries for
// at most a few seconds; expired entries are pruned on writes so the map
// never grows past the active call window.
type ClipStore struct {
	mu  sync.Mutex
	ttl time.Duration
	now func() time.Time

	clips map[string]storedClip
}

type storedClip struct {
	clip      Clip
	expiresAt time.Time
}

func NewClipStore(ttl time.Duration) *ClipStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ClipStore{
		ttl:   ttl,
		now:   time.Now,
		clips: make(map[string]storedClip),
	}
}

// Put stores the clip and returns its id for the clip-serving URL.
func (s *ClipStore) Put(clip Clip) string {
	id := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, v := range s.clips {
		if !v.expiresAt.After(now) {
			delete(s.clips, k)
		}
	}
	s.clips[id] = storedClip{clip: clip, expiresAt: now.Add(s.ttl)}
	return id
}

// Get returns the clip body and content type. Expired or unknown ids
// report false.
func (s *ClipStore) Get(id string) ([]byte, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.clips[id]
	if !ok {
		return nil, "", false
	}
	if !v.expiresAt.After(s.now()) {
		delete(s.clips, id)
		return nil, "", false
	}
	return v.clip.Data, v.clip.ContentType, true
}

// Len reports how many clips are held, counting expired but unpruned
// entries.
func (s *ClipStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clips)
}
