package audit

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// maxLine bounds one entry; chains with huge argv lists still fit.
const maxLine = 4 << 20

// VerifyError locates the first entry that breaks the chain.
type VerifyError struct {
	Line   int
	Reason string
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// Verify reads the audit log and checks the hash chain integrity.
// Returns nil if the chain is valid, or a *VerifyError describing the first
// violation.
func Verify(path string) error {
	_, err := VerifyCount(path)
	return err
}

// VerifyCount is Verify, also reporting how many entries were checked.
func VerifyCount(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("read audit log: %w", err)
	}
	defer f.Close()

	expectedPrev := genesisHash()
	var prevSeq uint64
	n := 0
	err = scanLines(f, func(line int, data []byte) error {
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			return &VerifyError{line, fmt.Sprintf("invalid JSON: %v", err)}
		}
		if entry.Seq != prevSeq+1 {
			return &VerifyError{line, fmt.Sprintf("sequence gap: expected %d, got %d", prevSeq+1, entry.Seq)}
		}
		if entry.PrevHash != expectedPrev {
			return &VerifyError{line, fmt.Sprintf("prev_hash mismatch: expected %s, got %s", short(expectedPrev), short(entry.PrevHash))}
		}
		if computed := computeHash(entry); entry.Hash != computed {
			return &VerifyError{line, fmt.Sprintf("hash mismatch: expected %s, got %s", short(computed), short(entry.Hash))}
		}
		expectedPrev = entry.Hash
		prevSeq = entry.Seq
		n++
		return nil
	})
	return n, err
}

// Tail returns the last n entries from the audit log. Lines that do not
// parse are skipped.
func Tail(path string, n int) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	defer f.Close()

	if n <= 0 {
		return nil, nil
	}
	ring := make([]Entry, 0, n)
	next := 0
	err = scanLines(f, func(_ int, data []byte) error {
		var entry Entry
		if json.Unmarshal(data, &entry) != nil {
			return nil
		}
		if len(ring) < n {
			ring = append(ring, entry)
			return nil
		}
		ring[next] = entry
		next = (next + 1) % n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return append(ring[next:], ring[:next]...), nil
}

// scanLines calls fn for every non-empty line, numbering lines from 1.
func scanLines(r io.Reader, fn func(line int, data []byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxLine)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		if err := fn(line, sc.Bytes()); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return &VerifyError{line + 1, "entry too long"}
		}
		return fmt.Errorf("read audit log: %w", err)
	}
	return nil
}

func short(hash string) string {
	if len(hash) > 16 {
		return hash[:16] + "..."
	}
	return hash
}
