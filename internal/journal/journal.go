// Package journal keeps an append-only JSONL audit trail of refresh cycles.
// The engine never reads it back; pnlctl replays it offline.
package journal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/pnl_agent/internal/ledger"
)

// Record is one completed cycle.
type Record struct {
	ID         string          `json:"id"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Price      decimal.Decimal `json:"price"`
	Events     []ledger.Event  `json:"events"`
	Summary    ledger.Summary  `json:"summary"`
	Outcome    string          `json:"outcome"`
}

// NewID returns a fresh cycle identifier.
func NewID() string {
	return uuid.NewString()
}

var ErrClosed = errors.New("journal is closed")

// Writer appends records asynchronously to <dir>/<date>/cycles.jsonl.
type Writer struct {
	baseDir     string
	maxSizeMB   int
	writeCh     chan Record
	done        chan struct{}
	closeOnce   sync.Once
	wg          sync.WaitGroup
	mu          sync.Mutex
	currentDate string
	out         *lumberjack.Logger
	logger      *slog.Logger
}

// NewWriter starts the write loop. A nil Writer (from an empty dir) accepts
// and discards records.
func NewWriter(baseDir string, bufferSize, maxSizeMB int, logger *slog.Logger) *Writer {
	if baseDir == "" {
		return nil
	}
	if bufferSize <= 0 {
		bufferSize = 64
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &Writer{
		baseDir:   baseDir,
		maxSizeMB: maxSizeMB,
		writeCh:   make(chan Record, bufferSize),
		done:      make(chan struct{}),
		logger:    logger,
	}
	w.wg.Add(1)
	go w.writeLoop()
	return w
}

// Record queues r without blocking.
func (w *Writer) Record(r Record) error {
	if w == nil {
		return nil
	}
	select {
	case <-w.done:
		return ErrClosed
	default:
	}
	select {
	case w.writeCh <- r:
		return nil
	default:
		w.logger.Warn("journal buffer full, dropping record", "id", r.ID)
		return fmt.Errorf("journal buffer full")
	}
}

// Close stops the loop and flushes queued records.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.closeOnce.Do(func() { close(w.done) })
	w.wg.Wait()

	for {
		select {
		case r := <-w.writeCh:
			w.write(r)
			continue
		default:
		}
		break
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.out != nil {
		return w.out.Close()
	}
	return nil
}

func (w *Writer) writeLoop() {
	defer w.wg.Done()
	for {
		select {
		case r := <-w.writeCh:
			w.write(r)
		case <-w.done:
			return
		}
	}
}

func (w *Writer) write(r Record) {
	data, err := json.Marshal(r)
	if err != nil {
		w.logger.Error("journal marshal failed", "id", r.ID, "error", err)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	date := time.Now().UTC().Format("2006-01-02")
	if w.out == nil || date != w.currentDate {
		if err := w.rotate(date); err != nil {
			w.logger.Error("journal rotate failed", "error", err)
			return
		}
	}
	if _, err := w.out.Write(append(data, '\n')); err != nil {
		w.logger.Error("journal write failed", "id", r.ID, "error", err)
	}
}

func (w *Writer) rotate(date string) error {
	if w.out != nil {
		_ = w.out.Close()
	}
	dir := filepath.Join(w.baseDir, date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create journal dir %s: %w", dir, err)
	}
	filename := filepath.Join(dir, "cycles.jsonl")
	w.out = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    w.maxSizeMB,
		MaxBackups: 30,
		MaxAge:     90,
	}
	w.currentDate = date
	w.logger.Info("journal opened", "file", filename)
	return nil
}

// Read decodes every record in a JSONL stream. Blank lines are skipped.
func Read(r io.Reader) ([]Record, error) {
	var out []Record
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("journal line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	return out, nil
}

// ReadFile is Read over a file path.
func ReadFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Read(f)
}

// Find returns the record with id, or the last record when id is empty.
func Find(records []Record, id string) (Record, bool) {
	if len(records) == 0 {
		return Record{}, false
	}
	if id == "" {
		return records[len(records)-1], true
	}
	for _, r := range records {
		if r.ID == id {
			return r, true
		}
	}
	return Record{}, false
}
