package engine

import (
	"fmt"

	memdb "github.com/hashicorp/go-memdb"

	"github.com/on-the-ground/lifecycle_ive_go/effects/token"
)

const (
	handlesTable = "handles"
	// primary index: one handle per exact token
	byToken = "id"
	byID    = "handle"
)

// entry is the registry row of a running handle. Key is the token string,
// or an anonymous key for effects started without a token.
type entry struct {
	Key    string
	ID     string
	handle *handle
}

var registrySchema = &memdb.DBSchema{
	Tables: map[string]*memdb.TableSchema{
		handlesTable: {
			Name: handlesTable,
			Indexes: map[string]*memdb.IndexSchema{
				byToken: {
					Name:    byToken,
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "Key"},
				},
				byID: {
					Name:    byID,
					Unique:  true,
					Indexer: &memdb.StringFieldIndex{Field: "ID"},
				},
			},
		},
	},
}

// registry indexes running handles by token string. Token strings sort
// parents before children, so everything under a token is one prefix scan.
type registry struct {
	db *memdb.MemDB
}

func newRegistry() *registry {
	db, err := memdb.NewMemDB(registrySchema)
	if err != nil {
		panic(fmt.Sprintf("engine: registry schema: %v", err))
	}
	return &registry{db: db}
}

// put registers h, returning the handle it replaced under the same token.
func (r *registry) put(h *handle) (replaced *handle) {
	txn := r.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(handlesTable, byToken, h.key)
	must(err)
	if raw != nil {
		replaced = raw.(*entry).handle
	}
	must(txn.Insert(handlesTable, &entry{Key: h.key, ID: h.id.String(), handle: h}))
	txn.Commit()
	return replaced
}

// current reports whether h is the handle registered under its token.
func (r *registry) current(h *handle) bool {
	txn := r.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(handlesTable, byID, h.id.String())
	must(err)
	return raw != nil
}

// remove unregisters h if it is still registered.
func (r *registry) remove(h *handle) bool {
	txn := r.db.Txn(true)
	defer txn.Abort()

	raw, err := txn.First(handlesTable, byID, h.id.String())
	must(err)
	if raw == nil {
		return false
	}
	must(txn.Delete(handlesTable, raw))
	txn.Commit()
	return true
}

// under lists the handles whose token descends from tok, tok included.
// Handles without a token are never under anything.
func (r *registry) under(tok token.Token) []*handle {
	if tok.IsZero() {
		return nil
	}
	txn := r.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(handlesTable, byToken+"_prefix", tok.String())
	must(err)
	var hs []*handle
	for raw := it.Next(); raw != nil; raw = it.Next() {
		h := raw.(*entry).handle
		// "a/b" also prefixes "a/bc"
		if tok.IsAncestorOf(h.token) {
			hs = append(hs, h)
		}
	}
	return hs
}

// removeUnder unregisters and returns every handle under tok.
func (r *registry) removeUnder(tok token.Token) []*handle {
	hs := r.under(tok)
	if len(hs) == 0 {
		return nil
	}
	txn := r.db.Txn(true)
	defer txn.Abort()
	for _, h := range hs {
		must(txn.Delete(handlesTable, &entry{Key: h.key, ID: h.id.String()}))
	}
	txn.Commit()
	return hs
}

// all lists every handle ordered by token string.
func (r *registry) all() []*handle {
	txn := r.db.Txn(false)
	defer txn.Abort()

	it, err := txn.Get(handlesTable, byToken)
	must(err)
	var hs []*handle
	for raw := it.Next(); raw != nil; raw = it.Next() {
		hs = append(hs, raw.(*entry).handle)
	}
	return hs
}

func (r *registry) removeAll() []*handle {
	hs := r.all()
	txn := r.db.Txn(true)
	defer txn.Abort()
	_, err := txn.DeleteAll(handlesTable, byToken)
	must(err)
	txn.Commit()
	return hs
}

func must(err error) {
	if err != nil {
		panic(fmt.Sprintf("engine: registry: %v", err))
	}
}
