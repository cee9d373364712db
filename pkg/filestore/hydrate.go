package filestore

import (
	"bufio"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/flowtap/flowcore/pkg/flow"
	"github.com/flowtap/flowcore/pkg/indexdb"
)

// Hydrate reads the full Flow for id out of day's shard, resolving the
// exact (file, offset) via that day's DayIndex (spec.md §4.5's point-get
// read protocol: global index → per-day index → seek to offset).
func (s *Store) Hydrate(ctx context.Context, day, id string) (*flow.Flow, error) {
	dir := s.dayDir(day)
	idx, err := indexdb.OpenDayIndex(filepath.Join(dir, "index.sqlite"))
	if err != nil {
		return nil, err
	}
	defer idx.Close()

	row, found, err := idx.Get(ctx, id)
	if err != nil || !found {
		return nil, err
	}
	return readLineAt(dir, row.File, row.Offset)
}

// readLineAt opens file within dir (transparently decompressing if it
// carries a .gz suffix) and reads the single JSON line starting at
// offset.
func readLineAt(dir, file string, offset int64) (*flow.Flow, error) {
	path := filepath.Join(dir, file)
	gz := false
	if !fileExists(path) {
		gzPath := path + ".gz"
		if fileExists(gzPath) {
			path = gzPath
			gz = true
		}
	} else if strings.HasSuffix(path, ".gz") {
		gz = true
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("filestore: open shard %s: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if gz {
		// Gzipped shards cannot be seeked directly; decompress fully
		// and skip to offset, which is measured against the
		// uncompressed stream.
		gr, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer gr.Close()
		if _, err := io.CopyN(io.Discard, gr, offset); err != nil {
			return nil, err
		}
		r = gr
	} else {
		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return nil, err
		}
	}

	line, err := bufio.NewReader(r).ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return nil, fmt.Errorf("filestore: read line at offset %d in %s: %w", offset, path, err)
	}
	var out flow.Flow
	if err := json.Unmarshal(trimNewline(line), &out); err != nil {
		return nil, fmt.Errorf("filestore: decode flow: %w", err)
	}
	return &out, nil
}

func trimNewline(b []byte) []byte {
	if len(b) > 0 && b[len(b)-1] == '\n' {
		return b[:len(b)-1]
	}
	return b
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
