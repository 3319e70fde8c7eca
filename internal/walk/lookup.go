package walk

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/chromecache/internal/addr"
	"github.com/meigma/chromecache/internal/cachetype"
)

// Outcome is the result of looking up one key.
type Outcome uint8

const (
	// NotFound means the key's slot is empty or its chain holds no entry
	// with the key's hash.
	NotFound Outcome = iota
	// Found means an entry with the key's hash was found.
	Found
	// Failed means the chain could not be followed to a conclusion.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case NotFound:
		return "not found"
	case Found:
		return "found"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Match is the lookup result for one key.
type Match struct {
	Key  string
	Hash uint32
	Slot uint32

	Outcome Outcome

	// Entry is set when Outcome is Found.
	Entry *cachetype.Entry

	// Err is set when Outcome is Failed.
	Err error
}

// LookupResult holds one Match per distinct requested key, in request order.
type LookupResult struct {
	Matches []Match

	// Diagnostics describe problems met while following the chains,
	// including the failures behind Failed matches.
	Diagnostics []*Diagnostic
}

// Get returns the match for key.
func (r *LookupResult) Get(key string) (Match, bool) {
	for _, m := range r.Matches {
		if m.Key == key {
			return m, true
		}
	}
	return Match{}, false
}

// Found returns the entries of every Found match in request order.
func (r *LookupResult) Found() []*cachetype.Entry {
	var out []*cachetype.Entry
	for _, m := range r.Matches {
		if m.Outcome == Found {
			out = append(out, m.Entry)
		}
	}
	return out
}

// Lookup finds the entry for each key.
//
// The key is hashed and the chain in its slot is followed until an entry
// with the same hash turns up. The first such entry wins and its key bytes
// are not compared with the requested key, so two keys whose hashes
// collide resolve to the same entry. A missing key is a NotFound match,
// not an error; only context cancellation fails the call.
func (w *Walker) Lookup(ctx context.Context, keys ...string) (*LookupResult, error) {
	keys = distinct(keys)
	matches := make([]Match, len(keys))
	diags := make([][]*Diagnostic, len(keys))

	if w.workers > 1 && len(keys) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(w.workers)
		for i, key := range keys {
			g.Go(func() error {
				var err error
				matches[i], diags[i], err = w.lookupKey(gctx, key)
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i, key := range keys {
			var err error
			if matches[i], diags[i], err = w.lookupKey(ctx, key); err != nil {
				return nil, err
			}
		}
	}

	res := &LookupResult{Matches: matches}
	for i, m := range matches {
		res.Diagnostics = append(res.Diagnostics, diags[i]...)
		w.log().Debug("lookup", "key", m.Key, "slot", m.Slot, "outcome", m.Outcome.String())
	}
	return res, nil
}

func (w *Walker) lookupKey(ctx context.Context, key string) (Match, []*Diagnostic, error) {
	hash := w.hash(key)
	slot := w.idx.SlotForHash(hash)
	m := Match{Key: key, Hash: hash, Slot: slot, Outcome: NotFound}

	raw, err := w.idx.SlotAddress(slot)
	if err != nil {
		d := newDiagnostic(slot, addr.Address{}, err)
		d.Key = key
		m.Outcome, m.Err = Failed, d
		return m, []*Diagnostic{d}, nil
	}
	head := addr.Decode(raw)
	if !head.Initialized {
		return m, nil, nil
	}

	var diags []*Diagnostic
	end, err := w.walkChain(ctx, slot, head, nil, func(e *cachetype.Entry, soft *Diagnostic) bool {
		if soft != nil {
			diags = append(diags, soft)
		}
		if e.Hash == hash {
			m.Outcome, m.Entry = Found, e
			return true
		}
		return false
	})
	if err != nil {
		return m, nil, err
	}
	if end != nil {
		end.Key = key
		diags = append(diags, end)
		m.Outcome, m.Err = Failed, end
	}
	return m, diags, nil
}

// distinct drops repeated keys, keeping the first occurrence.
func distinct(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
