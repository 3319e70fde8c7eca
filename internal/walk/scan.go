package walk

import (
	"context"
	"errors"
	"iter"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/chromecache/internal/addr"
	"github.com/meigma/chromecache/internal/cachetype"
)

// ctxCheckInterval is how many empty slots are skipped between context checks.
const ctxCheckInterval = 256

// ScanResult is the outcome of a full-table scan.
type ScanResult struct {
	// Entries are in slot order, then chain order within a slot.
	Entries []*cachetype.Entry

	// Diagnostics describe skipped chains and partially decoded entries.
	Diagnostics []*Diagnostic

	// Truncated is set when the scan stopped at the entry ceiling.
	Truncated bool
}

// Entries returns a lazy iterator over every entry in slot order.
//
// Each entry is yielded with a nil error, or with a *Diagnostic when it
// decoded only partially. A chain that ends early yields (nil, *Diagnostic)
// and iteration continues with the next slot. An unreadable index table
// yields a final (nil, *Diagnostic) for the first slot it could not read.
// Context cancellation and the entry ceiling yield a final (nil, err). The
// sequence can be ranged over again to restart the scan.
func (w *Walker) Entries(ctx context.Context) iter.Seq2[*cachetype.Entry, error] {
	return func(yield func(*cachetype.Entry, error) bool) {
		budget := w.newBudget()
		for s, err := range w.idx.Slots() {
			slot := s.Index
			if err != nil {
				yield(nil, newDiagnostic(slot, addr.Address{}, err))
				return
			}
			if slot%ctxCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					yield(nil, err)
					return
				}
			}
			head := addr.Decode(s.Raw)
			if !head.Initialized {
				continue
			}

			stopped := false
			end, err := w.walkChain(ctx, slot, head, budget, func(e *cachetype.Entry, soft *Diagnostic) bool {
				if !yield(e, asError(soft)) {
					stopped = true
					return true
				}
				return false
			})
			if stopped {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if end != nil && !yield(nil, end) {
				return
			}
		}
	}
}

// Scan walks every slot and collects entries and diagnostics.
//
// With more than one worker, chains are walked concurrently and the
// results are reassembled in slot order, so the output matches a
// sequential scan unless the entry ceiling is reached.
func (w *Walker) Scan(ctx context.Context) (*ScanResult, error) {
	var (
		res *ScanResult
		err error
	)
	if w.workers > 1 {
		res, err = w.scanParallel(ctx)
	} else {
		res, err = w.scanSequential(ctx)
	}
	if err != nil {
		return nil, err
	}

	for _, d := range res.Diagnostics {
		w.log().Warn("skipped cache item", "slot", d.Slot, "address", d.Address.String(), "error", d.Err)
	}
	if res.Truncated {
		w.log().Warn("scan stopped at entry ceiling", "limit", w.maxEntries)
	}
	w.log().Debug("scan complete",
		"entries", len(res.Entries),
		"diagnostics", len(res.Diagnostics),
		"workers", max(w.workers, 1),
	)
	return res, nil
}

func (w *Walker) scanSequential(ctx context.Context) (*ScanResult, error) {
	res := &ScanResult{}
	for e, err := range w.Entries(ctx) {
		if err != nil {
			var d *Diagnostic
			switch {
			case errors.As(err, &d):
				res.Diagnostics = append(res.Diagnostics, d)
			case errors.Is(err, cachetype.ErrEntryLimit):
				res.Truncated = true
			default:
				return nil, err
			}
		}
		if e != nil {
			res.Entries = append(res.Entries, e)
		}
	}
	return res, nil
}

// chainResult holds what one slot's chain produced.
type chainResult struct {
	entries []*cachetype.Entry
	diags   []*Diagnostic
}

func (w *Walker) scanParallel(ctx context.Context) (*ScanResult, error) {
	var (
		slots    []uint32
		heads    []addr.Address
		tableErr *Diagnostic
	)
	for s, err := range w.idx.Slots() {
		if err != nil {
			tableErr = newDiagnostic(s.Index, addr.Address{}, err)
			break
		}
		if a := addr.Decode(s.Raw); a.Initialized {
			slots = append(slots, s.Index)
			heads = append(heads, a)
		}
	}

	results := make([]chainResult, len(heads))
	budget := w.newBudget()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.workers)
	for i := range heads {
		g.Go(func() error {
			r := &results[i]
			end, err := w.walkChain(gctx, slots[i], heads[i], budget, func(e *cachetype.Entry, soft *Diagnostic) bool {
				r.entries = append(r.entries, e)
				if soft != nil {
					r.diags = append(r.diags, soft)
				}
				return false
			})
			if end != nil {
				r.diags = append(r.diags, end)
			}
			return err
		})
	}

	res := &ScanResult{}
	if err := g.Wait(); err != nil {
		if !errors.Is(err, cachetype.ErrEntryLimit) {
			return nil, err
		}
		res.Truncated = true
	}
	for _, r := range results {
		res.Entries = append(res.Entries, r.entries...)
		res.Diagnostics = append(res.Diagnostics, r.diags...)
	}
	if tableErr != nil {
		res.Diagnostics = append(res.Diagnostics, tableErr)
	}
	return res, nil
}
