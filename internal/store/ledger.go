package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/vodsync/internal/shared"
)

// Ledger is the append-only list of VOD ids confirmed uploaded.
type Ledger struct {
	mu     sync.Mutex
	path   string
	ids    []string
	index  map[string]struct{}
	logger *log.Logger
}

// OpenLedger loads the ledger at path.
//
// A missing file is an empty ledger. A file that is not a JSON list is moved
// aside and also treated as empty. Numeric entries are stringified and duplicates
// are dropped, keeping first-seen order.
func OpenLedger(path string, logger *log.Logger) (*Ledger, error) {
	l := &Ledger{path: path, index: make(map[string]struct{}), logger: orDefault(logger)}

	data, err := readState(path)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return l, nil
	}

	var raw []any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	err = dec.Decode(&raw)
	if err == nil {
		if _, terr := dec.Token(); terr != io.EOF {
			err = errors.New("trailing data after ledger list")
		}
	}
	if err != nil {
		quarantine(path, time.Now(), fmt.Errorf("%w: %v", shared.ErrStateCorrupt, err), l.logger)
		return l, nil
	}

	for _, v := range raw {
		var id string
		switch val := v.(type) {
		case string:
			id = strings.TrimSpace(val)
		case json.Number:
			id = val.String()
		default:
			l.logger.Warn("ignoring non-scalar ledger entry", "file", path, "value", v)
			continue
		}
		if id == "" {
			continue
		}
		if _, dup := l.index[id]; dup {
			continue
		}
		l.index[id] = struct{}{}
		l.ids = append(l.ids, id)
	}
	return l, nil
}

// Contains reports whether id has been uploaded.
func (l *Ledger) Contains(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.index[id]
	return ok
}

// Record appends id and persists the ledger immediately.
//
// On write failure the append is rolled back. Recording a known id is a no-op.
func (l *Ledger) Record(id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.index[id]; ok {
		return nil
	}

	l.ids = append(l.ids, id)
	l.index[id] = struct{}{}
	if err := writeJSON(l.path, l.ids); err != nil {
		l.ids = l.ids[:len(l.ids)-1]
		delete(l.index, id)
		return err
	}
	return nil
}

// IDs returns a copy of the ledger in insertion order.
func (l *Ledger) IDs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ids...)
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ids)
}

func (l *Ledger) Path() string { return l.path }
