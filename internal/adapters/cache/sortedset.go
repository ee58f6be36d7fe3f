package cache

import "math/rand/v2"

// sortedSet is a treap keyed by (score desc, id asc) with subtree sizes,
// so in-order traversal yields the leaderboard and index ranges can skip
// whole subtrees.
type sortedSet struct {
	root   *node
	scores map[string]int64
}

type node struct {
	id    string
	score int64
	prio  uint64
	left  *node
	right *node
	size  int
}

func newSortedSet() *sortedSet {
	return &sortedSet{scores: make(map[string]int64)}
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

// less reports whether (aScore, aID) ranks before (bScore, bID).
func less(aScore int64, aID string, bScore int64, bID string) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, score int64, prio uint64) *node {
	if n == nil {
		return &node{id: id, score: score, prio: prio, size: 1}
	}
	if less(score, id, n.score, n.id) {
		n.left = insert(n.left, id, score, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, score, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func remove(n *node, id string, score int64) *node {
	if n == nil {
		return nil
	}
	switch {
	case score == n.score && id == n.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = remove(n.right, id, score)
		} else {
			n = rotateLeft(n)
			n.left = remove(n.left, id, score)
		}
	case less(score, id, n.score, n.id):
		n.left = remove(n.left, id, score)
	default:
		n.right = remove(n.right, id, score)
	}
	fix(n)
	return n
}

// add upserts id with score.
func (s *sortedSet) add(id string, score int64) {
	if old, ok := s.scores[id]; ok {
		if old == score {
			return
		}
		s.root = remove(s.root, id, old)
	}
	s.scores[id] = score
	s.root = insert(s.root, id, score, rand.Uint64())
}

func (s *sortedSet) len() int { return nsize(s.root) }

// rangeDesc returns members at ranks [start, stop], Redis index semantics.
func (s *sortedSet) rangeDesc(start, stop int) []Member {
	n := s.len()
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop {
		return nil
	}
	out := make([]Member, 0, stop-start+1)
	collect(s.root, start, stop-start+1, &out)
	return out
}

// collect appends up to want members of the subtree, skipping the first skip.
func collect(n *node, skip, want int, out *[]Member) {
	if n == nil || len(*out) >= want {
		return
	}
	leftSize := nsize(n.left)
	if skip < leftSize {
		collect(n.left, skip, want, out)
		skip = 0
	} else {
		skip -= leftSize
	}
	if len(*out) >= want {
		return
	}
	if skip == 0 {
		*out = append(*out, Member{ID: n.id, Score: n.score})
	} else {
		skip--
	}
	collect(n.right, skip, want, out)
}
