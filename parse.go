package chromecache

import (
	"context"
	"errors"
)

// Record is an entry together with its decoded streams.
type Record struct {
	Entry   *Entry
	Streams []Stream
}

// ParseResult is what Parse collected from a cache directory.
type ParseResult struct {
	// Records are in slot order for a scan and request order for a lookup.
	Records []Record

	// NotFound lists requested keys with no entry.
	NotFound []string

	// Diagnostics describe skipped chains, partially decoded entries and
	// unreadable streams.
	Diagnostics []*Diagnostic

	// Truncated is set when a scan stopped at the entry ceiling.
	Truncated bool
}

// Parse opens dir, collects entries and their streams, and closes the
// cache again. With no keys every entry is collected; otherwise only the
// entries found for keys.
func Parse(ctx context.Context, dir string, keys []string, opts ...Option) (res *ParseResult, err error) {
	c, err := Open(dir, opts...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := c.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return c.Collect(ctx, keys...)
}

// Collect gathers entries and their decoded streams from an open cache.
// With no keys the whole table is scanned; otherwise the keys are looked
// up. Only context cancellation fails the call.
func (c *Cache) Collect(ctx context.Context, keys ...string) (*ParseResult, error) {
	res := &ParseResult{}
	var entries []*Entry
	if len(keys) == 0 {
		scan, err := c.Scan(ctx)
		if err != nil {
			return nil, err
		}
		entries = scan.Entries
		res.Diagnostics = scan.Diagnostics
		res.Truncated = scan.Truncated
	} else {
		lookup, err := c.Lookup(ctx, keys...)
		if err != nil {
			return nil, err
		}
		for _, m := range lookup.Matches {
			switch m.Outcome {
			case Found:
				entries = append(entries, m.Entry)
			case NotFound:
				res.NotFound = append(res.NotFound, m.Key)
			case Failed:
				// reported through lookup.Diagnostics
			}
		}
		res.Diagnostics = lookup.Diagnostics
	}

	res.Records = make([]Record, 0, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		streams := c.ReadEntryData(e)
		for _, s := range streams {
			var d *Diagnostic
			if errors.As(s.Err, &d) {
				res.Diagnostics = append(res.Diagnostics, d)
			}
		}
		res.Records = append(res.Records, Record{Entry: e, Streams: streams})
	}
	return res, nil
}
