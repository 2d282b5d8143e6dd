// Package buffer implements the per-device append-only staging queue
// sitting between message arrival and successful aggregation. Each
// device gets one JSONL file; lines survive until the pipeline
// checkpoints them, so a crash replays instead of losing samples.
package buffer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"siwatt-backend/internal/models"

	"github.com/rs/zerolog"
)

// Record is one enqueued message, as serialized into the buffer file.
type Record struct {
	Username   string        `json:"username"`
	DeviceCode string        `json:"device_code"`
	DeviceID   int64         `json:"device_id"`
	Payload    models.Sample `json:"payload"`
}

// ProcessDecision is the handler's verdict for one record. When
// Checkpoint is set, the safe index advances to the current line index
// plus CheckpointOffset: 0 truncates through this line, -1 truncates
// everything before it while the line itself stays buffered. The
// pipeline uses -1 on minute rollovers because the triggering sample
// opened the next, not yet persisted minute.
type ProcessDecision struct {
	Success          bool
	Checkpoint       bool
	CheckpointOffset int
}

// Handler consumes one decoded record and decides whether the buffer
// may move past it.
type Handler func(Record) ProcessDecision

// Result reports what one Process pass did.
type Result struct {
	Processed int
	Remaining int
}

// FileBuffer owns the buffer directory. A single process-wide mutex
// guards every file operation, so concurrent subscriber callbacks
// cannot interleave a rewrite with an append.
type FileBuffer struct {
	baseDir string
	badDir  string
	mu      sync.Mutex
	log     zerolog.Logger
}

func New(baseDir string, logger zerolog.Logger) (*FileBuffer, error) {
	badDir := filepath.Join(baseDir, "bad")
	if err := os.MkdirAll(badDir, 0o755); err != nil {
		return nil, fmt.Errorf("create buffer dir: %w", err)
	}
	return &FileBuffer{
		baseDir: baseDir,
		badDir:  badDir,
		log:     logger.With().Str("component", "buffer").Logger(),
	}, nil
}

func (b *FileBuffer) filePath(deviceCode string) string {
	return filepath.Join(b.baseDir, deviceCode+".jsonl")
}

func (b *FileBuffer) badPath(deviceCode string) string {
	return filepath.Join(b.badDir, deviceCode+".jsonl")
}

// Append serializes the record as one JSON line and appends it to the
// device's buffer file.
func (b *FileBuffer) Append(deviceCode string, record Record) error {
	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal buffer record: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	f, err := os.OpenFile(b.filePath(deviceCode), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open buffer file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append buffer line: %w", err)
	}
	return nil
}

// ListDevices returns every device code with a buffer file directly
// under the base directory. The bad subdirectory is excluded.
func (b *FileBuffer) ListDevices() ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries, err := os.ReadDir(b.baseDir)
	if err != nil {
		return nil, fmt.Errorf("list buffer dir: %w", err)
	}

	var codes []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		codes = append(codes, strings.TrimSuffix(name, ".jsonl"))
	}
	return codes, nil
}

// Process drains the device's buffer through the handler. Lines that
// fail to decode go to the bad file and are skipped. A failed handler
// stops the pass; everything from the last checkpoint onward is kept.
// Surviving lines are rewritten to a temp file and atomically renamed
// over the original, so a crash mid-rewrite never loses data. When no
// line ever checkpointed, the file is left untouched for the next pass.
func (b *FileBuffer) Process(deviceCode string, handler Handler) (Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	path := b.filePath(deviceCode)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Result{}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("read buffer file: %w", err)
	}

	lines := strings.Split(string(data), "\n")

	processed := 0
	safeIndex := -1

	for index, line := range lines {
		raw := strings.TrimSpace(line)
		if raw == "" {
			continue
		}

		var record Record
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			if badErr := b.appendBad(deviceCode, raw); badErr != nil {
				return Result{}, badErr
			}
			b.log.Error().Str("device_code", deviceCode).Msg("buffer line decode failed")
			continue
		}

		decision := b.safeHandle(deviceCode, handler, record)
		if !decision.Success {
			break
		}

		processed++
		if decision.Checkpoint {
			if ci := index + decision.CheckpointOffset; ci >= safeIndex {
				safeIndex = ci
			}
		}
	}

	var remaining []string
	start := safeIndex + 1
	if start < 0 {
		start = 0
	}
	for _, tail := range lines[start:] {
		if strings.TrimSpace(tail) == "" {
			continue
		}
		remaining = append(remaining, tail)
	}

	if safeIndex < 0 {
		return Result{Processed: processed, Remaining: len(remaining)}, nil
	}

	if len(remaining) == 0 {
		if err := os.Remove(path); err != nil {
			return Result{}, fmt.Errorf("remove drained buffer: %w", err)
		}
		return Result{Processed: processed, Remaining: 0}, nil
	}

	tmp := path + ".tmp"
	content := strings.Join(remaining, "\n") + "\n"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return Result{}, fmt.Errorf("write buffer temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return Result{}, fmt.Errorf("replace buffer file: %w", err)
	}

	return Result{Processed: processed, Remaining: len(remaining)}, nil
}

// safeHandle shields the drain loop from handler panics; a panicking
// handler counts as a failure, keeping the line in the buffer.
func (b *FileBuffer) safeHandle(deviceCode string, handler Handler, record Record) (decision ProcessDecision) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().Str("device_code", deviceCode).Interface("panic", r).Msg("buffer handler failed")
			decision = ProcessDecision{Success: false}
		}
	}()
	return handler(record)
}

func (b *FileBuffer) appendBad(deviceCode, raw string) error {
	f, err := os.OpenFile(b.badPath(deviceCode), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open bad file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(raw + "\n"); err != nil {
		return fmt.Errorf("append bad line: %w", err)
	}
	return nil
}
