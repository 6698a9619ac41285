package rank

import (
	"context"
	"hash/fnv"
	"sync"
)

// Treap-based, in-memory Store implementation.
//
// The comparator implements the leaderboard's total order: karma DESC,
// CreatedAt ASC, identity ASC, so an in-order traversal walks the board
// from best to worst. Nodes are size-augmented, giving O(log n) rank and
// offset selection. Priorities are hashes of the identity, so the tree
// shape (and therefore iteration cost) is reproducible for a given
// member set.

type node struct {
	m     Member
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less reports whether a ranks strictly before b.
func less(a, b Member) bool {
	if a.Karma != b.Karma {
		return a.Karma > b.Karma
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.Identity < b.Identity
}

func rotateRight(n *node) *node {
	l := n.left
	n.left = l.right
	l.right = n
	fix(n)
	fix(l)
	return l
}

func rotateLeft(n *node) *node {
	r := n.right
	n.right = r.left
	r.left = n
	fix(n)
	fix(r)
	return r
}

func insert(n *node, nn *node) *node {
	if n == nil {
		nn.size = 1
		return nn
	}
	if less(nn.m, n.m) {
		n.left = insert(n.left, nn)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, nn)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func remove(n *node, m Member) *node {
	if n == nil {
		return nil
	}
	switch {
	case less(m, n.m):
		n.left = remove(n.left, m)
	case less(n.m, m):
		n.right = remove(n.right, m)
	default:
		// Found: rotate down until it is a leaf, then drop it.
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = remove(n.right, m)
		} else {
			n = rotateLeft(n)
			n.left = remove(n.left, m)
		}
	}
	fix(n)
	return n
}

// rankOf returns the 0-based position of m in the in-order traversal.
func rankOf(n *node, m Member) int {
	rank := 0
	for n != nil {
		switch {
		case less(m, n.m):
			n = n.left
		case less(n.m, m):
			rank += nsize(n.left) + 1
			n = n.right
		default:
			return rank + nsize(n.left)
		}
	}
	return -1
}

// walk appends members in ranking order starting at the 0-based offset
// until out holds target members. Subtree sizes let it skip whole
// subtrees below the offset.
func walk(n *node, offset, target int, out *[]Member) {
	if n == nil || len(*out) >= target {
		return
	}
	leftSize := nsize(n.left)
	if offset < leftSize {
		walk(n.left, offset, target, out)
	}
	if len(*out) >= target {
		return
	}
	if offset <= leftSize {
		*out = append(*out, n.m)
		walk(n.right, 0, target, out)
		return
	}
	walk(n.right, offset-leftSize-1, target, out)
}

// TreapStore implements Store.
type TreapStore struct {
	mu   sync.RWMutex
	root *node
	byID map[string]Member
}

// NewTreapStore creates an empty treap store.
func NewTreapStore(ctx context.Context) *TreapStore {
	return &TreapStore{
		byID: make(map[string]Member),
	}
}

func (s *TreapStore) prioFor(identity string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(identity))
	return h.Sum64()
}

// Upsert inserts or repositions a member after a karma change.
func (s *TreapStore) Upsert(ctx context.Context, m Member) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.byID[m.Identity]; ok {
		if old == m {
			return
		}
		s.root = remove(s.root, old)
	}
	s.byID[m.Identity] = m
	s.root = insert(s.root, &node{m: m, prio: s.prioFor(m.Identity)})
}

// Rank returns the 1-based rank and stored row for an identity.
func (s *TreapStore) Rank(ctx context.Context, identity string) (int, Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.byID[identity]
	if !ok {
		return 0, Member{}, ErrNotFound
	}
	r := rankOf(s.root, m)
	if r < 0 {
		return 0, Member{}, ErrNotFound
	}
	return r + 1, m, nil
}

// Page returns members [offset, offset+limit) in ranking order.
func (s *TreapStore) Page(ctx context.Context, offset, limit int) ([]Member, error) {
	if offset < 0 {
		return nil, ErrInvalidPage
	}
	if limit <= 0 {
		return nil, ErrInvalidLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Member, 0, limit)
	walk(s.root, offset, limit, &out)
	return out, nil
}

// Count returns the number of tracked members.
func (s *TreapStore) Count(ctx context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
