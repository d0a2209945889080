package r2s3

import (
	"context"
	"fmt"
	"io"
	"log"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Putter uploads one local file under an object key. *Client implements it.
type Putter interface {
	PutFile(ctx context.Context, objectKey, localPath string) error
}

type Stats struct {
	Queued   uint64
	Dropped  uint64
	Uploaded uint64
	Failed   uint64
}

// Mirror copies files from under dataDir to the bucket in the background.
// Object keys are prefix + the path relative to dataDir.
type Mirror struct {
	put     Putter
	dataDir string
	prefix  string
	logger  *log.Logger

	jobs    chan string
	wg      sync.WaitGroup
	backoff func(attempt int) time.Duration

	queued   atomic.Uint64
	dropped  atomic.Uint64
	uploaded atomic.Uint64
	failed   atomic.Uint64
}

const maxAttempts = 4

func NewMirror(put Putter, dataDir, prefix string, workers int, logger *log.Logger) *Mirror {
	if workers <= 0 {
		workers = 1
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	m := &Mirror{
		put:     put,
		dataDir: dataDir,
		prefix:  strings.Trim(strings.ReplaceAll(prefix, "\\", "/"), "/"),
		logger:  logger,
		jobs:    make(chan string, 256),
		backoff: func(attempt int) time.Duration {
			return time.Duration(attempt*attempt) * 200 * time.Millisecond
		},
	}
	for i := 0; i < workers; i++ {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			for p := range m.jobs {
				m.upload(p)
			}
		}()
	}
	return m
}

// Enqueue schedules files for upload. A full queue drops the file; the next
// snapshot or archive supersedes it.
func (m *Mirror) Enqueue(localPaths ...string) {
	if m == nil {
		return
	}
	for _, p := range localPaths {
		select {
		case m.jobs <- p:
			m.queued.Add(1)
		default:
			m.dropped.Add(1)
			m.logger.Printf("mirror drop %s: queue full", p)
		}
	}
}

// Close waits for queued uploads to finish.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	close(m.jobs)
	m.wg.Wait()
}

func (m *Mirror) Stats() Stats {
	if m == nil {
		return Stats{}
	}
	return Stats{
		Queued:   m.queued.Load(),
		Dropped:  m.dropped.Load(),
		Uploaded: m.uploaded.Load(),
		Failed:   m.failed.Load(),
	}
}

func (m *Mirror) upload(localPath string) {
	key, err := m.ObjectKey(localPath)
	if err != nil {
		m.failed.Add(1)
		m.logger.Printf("mirror skip %s: %v", localPath, err)
		return
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		lastErr = m.put.PutFile(ctx, key, localPath)
		cancel()
		if lastErr == nil {
			m.uploaded.Add(1)
			m.logger.Printf("mirror uploaded %s", key)
			return
		}
		if attempt < maxAttempts {
			time.Sleep(m.backoff(attempt))
		}
	}
	m.failed.Add(1)
	m.logger.Printf("mirror upload %s failed: %v", key, lastErr)
}

// ObjectKey maps a path under dataDir to its object key.
func (m *Mirror) ObjectKey(localPath string) (string, error) {
	base, err := filepath.Abs(m.dataDir)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(base, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s is outside data dir %s", abs, base)
	}
	if m.prefix == "" {
		return rel, nil
	}
	return path.Join(m.prefix, rel), nil
}
