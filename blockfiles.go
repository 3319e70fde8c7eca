package chromecache

import (
	"errors"
	"fmt"
)

// baseBlockFiles is the number of block files every cache starts with,
// data_0 through data_3.
const baseBlockFiles = 4

// BlockFileInfo summarizes the header of one data_N block file.
type BlockFileInfo struct {
	Name       string
	File       uint32
	EntrySize  int32
	NumEntries int32
	MaxEntries int32

	// UsedBlocks counts the blocks marked allocated in the file's bitmap.
	UsedBlocks int

	// NextFile is the file that continues this one's block kind, or 0.
	NextFile uint32
}

// BlockFiles reads the header of data_0 through data_3 and of every file
// chained from them through their next-file links, in that order. Missing
// files are skipped; any other failure stops the walk and is returned with
// the files read so far.
func (c *Cache) BlockFiles() ([]BlockFileInfo, error) {
	var out []BlockFileInfo
	seen := make(map[uint32]bool)
	for first := range uint32(baseBlockFiles) {
		for n := first; !seen[n]; {
			seen[n] = true
			h, err := c.store.Header(n)
			if errors.Is(err, ErrMissingFile) {
				break
			}
			if err != nil {
				return out, err
			}
			info := BlockFileInfo{
				Name:       fmt.Sprintf("data_%d", n),
				File:       n,
				EntrySize:  h.EntrySize,
				NumEntries: h.NumEntries,
				MaxEntries: h.MaxEntries,
				UsedBlocks: h.UsedBlocks(),
			}
			if h.NextFile > 0 {
				info.NextFile = uint32(h.NextFile)
			}
			out = append(out, info)
			if info.NextFile == 0 {
				break
			}
			n = info.NextFile
		}
	}
	return out, nil
}
