package audit

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

const genesisInput = "pipex-genesis"

// Logger is an append-only, hash-chained audit log writer.
type Logger struct {
	mu       sync.Mutex
	path     string
	seq      uint64
	prevHash string
}

// NewLogger opens or creates an audit log at the given path.
// It reads the last entry to resume the hash chain.
func NewLogger(path string) (*Logger, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}

	l := &Logger{
		path:     path,
		prevHash: genesisHash(),
	}

	// Resume after the last entry that parses.
	if f, err := os.Open(path); err == nil {
		defer f.Close()
		err := scanLines(f, func(_ int, data []byte) error {
			var e Entry
			if json.Unmarshal(data, &e) == nil {
				l.seq = e.Seq
				l.prevHash = e.Hash
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return l, nil
}

// Log appends an entry for one run and returns it.
func (l *Logger) Log(rec Record) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := Entry{
		Seq:      l.seq + 1,
		Time:     time.Now().UTC(),
		PrevHash: l.prevHash,
		RunID:    uuid.NewString(),
	}
	rec.fill(&entry)

	entry.Hash = computeHash(entry)

	data, err := json.Marshal(entry)
	if err != nil {
		return entry, fmt.Errorf("marshal audit entry: %w", err)
	}
	data = append(data, '\n')

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return entry, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		return entry, fmt.Errorf("write audit entry: %w", err)
	}
	// Only a written entry extends the chain.
	l.seq = entry.Seq
	l.prevHash = entry.Hash
	return entry, nil
}

// Path returns the audit log file path.
func (l *Logger) Path() string {
	return l.path
}

func genesisHash() string {
	h := sha256.Sum256([]byte(genesisInput))
	return fmt.Sprintf("%x", h)
}

func computeHash(e Entry) string {
	e.Hash = "" // hash is computed with this field empty
	data, _ := json.Marshal(e)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h)
}
