// Package chromecache reads the Chromium "blockfile" disk cache.
//
// A cache directory holds an index file with a hash table of entry
// addresses, block files (data_0 to data_3) holding fixed-size records, and
// standalone f_XXXXXX files for payloads too large for a block. Every piece
// of data is referenced through a packed 32-bit address, and entries whose
// keys hash to the same slot are linked through on-disk bucket chains.
//
// The package never writes to the cache. Open a directory, then scan it or
// look up keys:
//
//	c, err := chromecache.Open("/path/to/Cache")
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	res, err := c.Lookup(ctx, "https://example.com/")
//	if err != nil {
//	    return err
//	}
//	for _, e := range res.Found() {
//	    for _, s := range c.ReadEntryData(e) {
//	        // s.Data holds the decoded stream, or s.Err says why not.
//	    }
//	}
//
// # Damaged caches
//
// Structural problems with the index file fail Open. Problems confined to
// one chain, entry or stream (a missing block file, an address past the end
// of its file, a chain that loops) are reported as [Diagnostic] values and
// the walk moves on, so a single damaged record cannot stop a full scan.
//
// # Lookups
//
// Lookup hashes each key with SuperFastHash and follows the chain in the
// key's slot until an entry with the same hash is found. Key bytes are not
// compared, so colliding keys resolve to the first entry in the chain.
package chromecache
