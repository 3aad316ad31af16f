package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrAlreadyRunning is returned by Acquire when a live process owns the file.
var ErrAlreadyRunning = errors.New("server already running")

// Record describes the serving process.
type Record struct {
	PID       int       `json:"pid"`
	Port      int       `json:"port,omitempty"`
	Store     string    `json:"store,omitempty"`
	StartedAt time.Time `json:"started_at"`
}

// PIDFile manages a PID file for `ait serve`.
type PIDFile struct {
	Path string
}

// NewPIDFile creates a PIDFile manager for the given path.
func NewPIDFile(path string) *PIDFile {
	return &PIDFile{Path: path}
}

// Acquire writes rec for the current process unless a live process already
// owns the file. A file left behind by a dead process is replaced.
func (p *PIDFile) Acquire(rec Record) error {
	if pid, running := p.IsRunning(); running && pid != os.Getpid() {
		return fmt.Errorf("%w (pid %d, %s)", ErrAlreadyRunning, pid, p.Path)
	}
	if rec.PID == 0 {
		rec.PID = os.Getpid()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now().UTC()
	}
	return p.WriteRecord(rec)
}

// WriteRecord writes rec to the file, creating its directory if needed.
func (p *PIDFile) WriteRecord(rec Record) error {
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o755); err != nil {
		return fmt.Errorf("create PID file directory: %w", err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return os.WriteFile(p.Path, append(data, '\n'), 0o644)
}

// Read reads the record from the file. A bare PID, as written by older
// versions, is accepted.
func (p *PIDFile) Read() (Record, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return Record{}, err
	}
	text := strings.TrimSpace(string(data))

	var rec Record
	if strings.HasPrefix(text, "{") {
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return Record{}, fmt.Errorf("invalid PID file content: %w", err)
		}
	} else {
		pid, err := strconv.Atoi(text)
		if err != nil {
			return Record{}, fmt.Errorf("invalid PID file content: %w", err)
		}
		rec.PID = pid
	}
	if rec.PID <= 0 {
		return Record{}, fmt.Errorf("invalid PID file content: pid %d", rec.PID)
	}
	return rec, nil
}

// Release removes the file if it still belongs to the current process.
func (p *PIDFile) Release() error {
	rec, err := p.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if rec.PID != os.Getpid() {
		return nil
	}
	return p.Remove()
}

// Remove deletes the PID file.
func (p *PIDFile) Remove() error {
	return os.Remove(p.Path)
}
