package memberstore

import (
	"context"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// MemStore keeps member state in process memory. Suitable for development,
// testing, and single-node deployments that accept losing state on restart.
type MemStore struct {
	records *xsync.MapOf[string, *memRecord]
}

type memRecord struct {
	mu     sync.Mutex
	member Member
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		records: xsync.NewMapOf[string, *memRecord](),
	}
}

func (s *MemStore) Get(ctx context.Context, communityID, memberID string) (*Member, error) {
	rec, ok := s.records.Load(memberKey(communityID, memberID))
	if !ok {
		return nil, ErrNotFound
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.member.Clone(), nil
}

func (s *MemStore) Update(ctx context.Context, communityID, memberID string, mutate func(*Member) error) error {
	rec, _ := s.records.LoadOrCompute(memberKey(communityID, memberID), func() *memRecord {
		return &memRecord{
			member: Member{CommunityID: communityID, MemberID: memberID, SanctionState: StateClean},
		}
	})
	rec.mu.Lock()
	defer rec.mu.Unlock()

	next := rec.member.Clone()
	if err := mutate(next); err != nil {
		return err
	}
	rec.member = *next
	return nil
}

func (s *MemStore) PurgeExpiredStrikes(ctx context.Context, before time.Time) (int64, error) {
	var removed int64
	s.records.Range(func(key string, rec *memRecord) bool {
		rec.mu.Lock()
		kept := rec.member.Strikes[:0]
		for _, st := range rec.member.Strikes {
			if st.ExpiresAt.After(before) {
				kept = append(kept, st)
			} else {
				removed++
			}
		}
		rec.member.Strikes = kept
		rec.mu.Unlock()
		return true
	})
	return removed, nil
}

func (s *MemStore) Count(ctx context.Context) (int64, error) {
	return int64(s.records.Size()), nil
}
