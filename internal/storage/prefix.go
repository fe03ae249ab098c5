package storage

import (
	"bytes"
	"sort"
)

// walletNamespace is the key prefix under which named wallets live.
const walletNamespace = "wallet/"

// PrefixDB is a view of a DB in which every key carries a fixed prefix.
// Keys passed in and handed back are relative to the prefix.
type PrefixDB struct {
	inner  DB
	prefix []byte
}

// NewPrefixDB returns a view of inner under prefix.
func NewPrefixDB(inner DB, prefix []byte) *PrefixDB {
	return &PrefixDB{inner: inner, prefix: bytes.Clone(prefix)}
}

// ForWallet returns the namespace holding the blobs of the named wallet.
func ForWallet(inner DB, name string) *PrefixDB {
	return NewPrefixDB(inner, []byte(walletNamespace+name+"/"))
}

// WalletNames lists the wallets that have at least one blob in db, sorted.
func WalletNames(db DB) ([]string, error) {
	seen := make(map[string]struct{})
	err := db.ForEach([]byte(walletNamespace), func(key, _ []byte) error {
		rest := key[len(walletNamespace):]
		if i := bytes.IndexByte(rest, '/'); i > 0 {
			seen[string(rest[:i])] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (p *PrefixDB) prefixed(key []byte) []byte {
	out := make([]byte, 0, len(p.prefix)+len(key))
	out = append(out, p.prefix...)
	return append(out, key...)
}

func (p *PrefixDB) Get(key []byte) ([]byte, error) {
	return p.inner.Get(p.prefixed(key))
}

func (p *PrefixDB) Put(key, value []byte) error {
	return p.inner.Put(p.prefixed(key), value)
}

func (p *PrefixDB) Delete(key []byte) error {
	return p.inner.Delete(p.prefixed(key))
}

func (p *PrefixDB) Has(key []byte) (bool, error) {
	return p.inner.Has(p.prefixed(key))
}

// ForEach iterates over the keys under prefix inside this view. The
// callback receives keys with the view prefix stripped.
func (p *PrefixDB) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	return p.inner.ForEach(p.prefixed(prefix), func(key, value []byte) error {
		return fn(key[len(p.prefix):], value)
	})
}

// Close does nothing. The underlying DB is shared by every view and is
// closed by its owner.
func (p *PrefixDB) Close() error {
	return nil
}
