// Package token names effect scopes.
//
// A Token is an immutable, hierarchical identifier: an optional parent plus a
// local key. Cancelling a token reaches every token derived from it, which is
// what lets a parent tear down all the work its children started without
// knowing their names.
//
//	root := token.New("detail")
//	timer := root.Derive("timer")
//	root.IsAncestorOf(timer) // true
package token

import (
	"net/url"
	"strings"

	"github.com/cespare/xxhash/v2"
)

const separator = "/"

// Token identifies one logical effect scope.
// The zero Token is "no token".
type Token struct {
	parent *Token
	key    string
}

// New returns a root token.
func New(key string) Token {
	return Token{key: key}
}

// Derive returns a child of parent under key.
// Deriving from the zero token yields a root token.
func Derive(parent Token, key string) Token {
	if parent.IsZero() {
		return New(key)
	}
	p := parent
	return Token{parent: &p, key: key}
}

// Derive is the method form of Derive.
func (t Token) Derive(key string) Token {
	return Derive(t, key)
}

// Key returns the local key.
func (t Token) Key() string {
	return t.key
}

// Parent returns the parent token, if any.
func (t Token) Parent() (Token, bool) {
	if t.parent == nil {
		return Token{}, false
	}
	return *t.parent, true
}

func (t Token) IsZero() bool {
	return t.parent == nil && t.key == ""
}

// Depth is the number of tokens in the chain, the zero token has depth 0.
func (t Token) Depth() int {
	if t.IsZero() {
		return 0
	}
	depth := 1
	for p := t.parent; p != nil; p = p.parent {
		depth++
	}
	return depth
}

// Equal reports structural equality of the full parent chains and keys.
func (t Token) Equal(other Token) bool {
	a, b := &t, &other
	for a != nil && b != nil {
		if a.key != b.key {
			return false
		}
		a, b = a.parent, b.parent
	}
	return a == nil && b == nil
}

// IsAncestorOf reports whether t is descendant or one of descendant's parents.
// A token is its own ancestor.
func (t Token) IsAncestorOf(descendant Token) bool {
	return IsAncestorOf(t, descendant)
}

// IsAncestorOf reports whether a appears in b's parent chain, b included.
func IsAncestorOf(a, b Token) bool {
	if a.IsZero() || b.IsZero() {
		return a.IsZero() && b.IsZero()
	}
	depthA, depthB := a.Depth(), b.Depth()
	if depthA > depthB {
		return false
	}
	cur := b
	for i := 0; i < depthB-depthA; i++ {
		cur = *cur.parent
	}
	return a.Equal(cur)
}

// String renders the chain root first, with each key path-escaped,
// e.g. "detail/timer". Equal tokens render identically.
func (t Token) String() string {
	if t.IsZero() {
		return ""
	}
	keys := make([]string, t.Depth())
	i := len(keys) - 1
	for cur := &t; cur != nil; cur = cur.parent {
		keys[i] = url.PathEscape(cur.key)
		i--
	}
	return strings.Join(keys, separator)
}

// PartitionKey routes the token through partitioned worker queues.
func (t Token) PartitionKey() string {
	return t.String()
}

// Hash is the xxhash64 fingerprint of String.
func (t Token) Hash() uint64 {
	return xxhash.Sum64String(t.String())
}
