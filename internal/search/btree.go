// Package search implements C4: the tag-index B-tree reader, query
// intersection/subtraction, ID listing/pagination, and suggestions.
package search

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"hitomidl/internal/domain"
	"hitomidl/internal/sharedhttp"

	lru "github.com/hashicorp/golang-lru/arc/v2"
)

const (
	indexDomain     = "ltn.gold-usergeneratedcontent.net"
	nodeHeaderCap   = 464
	branchingFactor = 16
)

// hashTerm returns the first 4 bytes of sha256(value), the lookup key used
// throughout the B-tree traversal, per §4.4 step 2.
func hashTerm(value string) []byte {
	sum := sha256.Sum256([]byte(value))
	return sum[:4]
}

// nodeKey is one {key, posting location} pair within a node.
type nodeKey struct {
	key           []byte
	postingOffset uint64
	postingLength uint32
}

// node is one decoded B-tree node: its keys plus branchingFactor+1 child
// offsets (0 for a leaf), per the layout in §3.
type node struct {
	keys     []nodeKey
	children []uint64
}

func (n *node) isLeaf() bool {
	for _, c := range n.children {
		if c != 0 {
			return false
		}
	}
	return true
}

// decodeNode parses the big-endian layout of §3: uint32 key count, then
// per key {len uint32, bytes, offset u64, length u32}, then
// branchingFactor+1 child offsets (u64).
func decodeNode(buf []byte) (*node, error) {
	r := &byteReader{buf: buf}

	count, err := r.u32()
	if err != nil {
		return nil, err
	}
	if count > 10000 {
		return nil, domain.NewParseError("b-tree node reports implausible key count", nil)
	}

	n := &node{}
	for i := uint32(0); i < count; i++ {
		klen, err := r.u32()
		if err != nil {
			return nil, err
		}
		if klen == 0 || klen > 32 {
			return nil, domain.NewParseError("b-tree node key length out of range", nil)
		}
		key, err := r.bytes(int(klen))
		if err != nil {
			return nil, err
		}
		offset, err := r.u64()
		if err != nil {
			return nil, err
		}
		length, err := r.u32()
		if err != nil {
			return nil, err
		}
		n.keys = append(n.keys, nodeKey{key: key, postingOffset: offset, postingLength: length})
	}

	for i := 0; i < branchingFactor+1; i++ {
		addr, err := r.u64()
		if err != nil {
			return nil, err
		}
		n.children = append(n.children, addr)
	}

	return n, nil
}

// byteReader is a minimal big-endian cursor; used instead of bytes.Reader
// so decodeNode can report a distinguishable "need more bytes" error that
// triggers a range extension rather than a hard parse failure.
type byteReader struct {
	buf []byte
	pos int
}

var errShortBuffer = domain.NewParseError("b-tree node buffer too short", nil)

func (r *byteReader) u32() (uint32, error) {
	if r.pos+4 > len(r.buf) {
		return 0, errShortBuffer
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *byteReader) u64() (uint64, error) {
	if r.pos+8 > len(r.buf) {
		return 0, errShortBuffer
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *byteReader) bytes(n int) ([]byte, error) {
	if r.pos+n > len(r.buf) {
		return nil, errShortBuffer
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// compareKeys orders two keys lexicographically by byte.
func compareKeys(a, b []byte) int {
	top := len(a)
	if len(b) < top {
		top = len(b)
	}
	for i := 0; i < top; i++ {
		if a[i] < b[i] {
			return -1
		}
		if a[i] > b[i] {
			return 1
		}
	}
	return len(a) - len(b)
}

// locate finds the first key >= target in n, returning whether it was an
// exact match and its index (or len(n.keys) if target is past all keys).
func locate(n *node, target []byte) (exact bool, idx int) {
	for i, k := range n.keys {
		c := compareKeys(target, k.key)
		if c <= 0 {
			return c == 0, i
		}
	}
	return false, len(n.keys)
}

// nodeSource fetches and decodes the node at addr for a given index file,
// extending the byte-range request if the header-sized read was truncated.
type nodeSource struct {
	http      *sharedhttp.Client
	indexURL  string
	nodeCache *lru.ARCCache[uint64, *node]
}

func newNodeSource(http *sharedhttp.Client, indexURL string) *nodeSource {
	cache, _ := lru.NewARC[uint64, *node](512)
	return &nodeSource{http: http, indexURL: indexURL, nodeCache: cache}
}

func (s *nodeSource) get(ctx context.Context, addr uint64) (*node, error) {
	if n, ok := s.nodeCache.Get(addr); ok {
		return n, nil
	}

	size := int64(nodeHeaderCap)
	for attempt := 0; attempt < 4; attempt++ {
		buf, err := readRange(ctx, s.http, s.indexURL, int64(addr), int64(addr)+size)
		if err != nil {
			return nil, err
		}

		n, err := decodeNode(buf)
		if err == errShortBuffer {
			size *= 2
			continue
		}
		if err != nil {
			return nil, err
		}

		s.nodeCache.Add(addr, n)
		return n, nil
	}

	return nil, domain.NewParseError("b-tree node exceeds maximum read size", nil)
}

func readRange(ctx context.Context, http *sharedhttp.Client, url string, start, end int64) ([]byte, error) {
	resp, err := http.GetRange(ctx, url, start, end)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewNetworkError("could not read byte range", err)
	}
	return buf, nil
}

// bSearch performs the binary search of §4.4 step 2-3, descending from
// the root node until the key is found or a leaf is exhausted.
func bSearch(ctx context.Context, src *nodeSource, root *node, key []byte) (nodeKey, bool, error) {
	n := root

	for {
		exact, idx := locate(n, key)
		if exact {
			return n.keys[idx], true, nil
		}
		if n.isLeaf() {
			return nodeKey{}, false, nil
		}

		childAddr := n.children[idx]
		if childAddr == 0 {
			return nodeKey{}, false, nil
		}

		child, err := src.get(ctx, childAddr)
		if err != nil {
			return nodeKey{}, false, err
		}
		n = child
	}
}

// readPosting reads a posting list's entries (descending popularity
// order), per §3.
func readPosting(ctx context.Context, http *sharedhttp.Client, dataURL string, k nodeKey) ([]int, error) {
	if k.postingLength == 0 {
		return nil, nil
	}

	buf, err := readRange(ctx, http, dataURL, int64(k.postingOffset), int64(k.postingOffset)+int64(k.postingLength))
	if err != nil {
		return nil, err
	}

	r := &byteReader{buf: buf}
	count, err := r.u32()
	if err != nil {
		return nil, domain.NewParseError("posting list truncated", err)
	}
	if count > 5_000_000 {
		return nil, domain.NewParseError("posting list reports implausible entry count", nil)
	}

	ids := make([]int, 0, count)
	for i := uint32(0); i < count; i++ {
		v, err := r.u32()
		if err != nil {
			return nil, domain.NewParseError("posting list truncated", err)
		}
		ids = append(ids, int(v))
	}

	return ids, nil
}

// maxWalkNodes bounds a walkPrefix traversal so a common prefix with a
// wide fan-out cannot turn one suggestion lookup into an unbounded crawl
// of the whole index.
const maxWalkNodes = 64

// walkPrefix performs a bounded breadth-first walk of the B-tree rooted
// at root, collecting keys with the given byte prefix, per §4.4's
// suggestion algorithm ("walking the first few matching leaves").
// Traversal stops once limit matches are found or maxWalkNodes nodes
// have been visited, whichever comes first.
func walkPrefix(ctx context.Context, src *nodeSource, root *node, prefix []byte, limit int) ([]nodeKey, error) {
	var out []nodeKey
	queue := []*node{root}

	for i := 0; i < len(queue) && i < maxWalkNodes && len(out) < limit; i++ {
		n := queue[i]

		for _, k := range n.keys {
			if len(out) >= limit {
				break
			}
			if bytes.HasPrefix(k.key, prefix) {
				out = append(out, k)
			}
		}

		if n.isLeaf() {
			continue
		}
		for _, addr := range n.children {
			if addr == 0 {
				continue
			}
			child, err := src.get(ctx, addr)
			if err != nil {
				return nil, err
			}
			queue = append(queue, child)
		}
	}

	return out, nil
}

// postingCount reads only the 4-byte entry count at the head of a
// posting list, for callers like suggestions that need a result count
// without paying for the entries themselves.
func postingCount(ctx context.Context, http *sharedhttp.Client, dataURL string, k nodeKey) (int, error) {
	if k.postingLength == 0 {
		return 0, nil
	}

	buf, err := readRange(ctx, http, dataURL, int64(k.postingOffset), int64(k.postingOffset)+4)
	if err != nil {
		return 0, err
	}

	r := &byteReader{buf: buf}
	count, err := r.u32()
	if err != nil {
		return 0, domain.NewParseError("posting list truncated", err)
	}
	return int(count), nil
}

func indexURLs(field, version string) (indexURL, dataURL string) {
	root := fmt.Sprintf("tagindex/%s", field)
	base := fmt.Sprintf("https://%s/%s/%s.%s", indexDomain, root, field, version)
	return base + ".index", base + ".data"
}
