// Package localfs serves pod resources mirrored into a local directory and
// watches them with fsnotify.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/penwyp/podscope/internal/feed"
	"github.com/penwyp/podscope/internal/util"
)

// ErrOutsideRoot is returned for paths that resolve outside the root directory.
var ErrOutsideRoot = errors.New("path is outside the root directory")

// Store resolves resources as paths below a root directory.
type Store struct {
	root string
}

// New creates a Store rooted at dir.
func New(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("open watch dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch dir %s is not a directory", abs)
	}
	return &Store{root: abs}, nil
}

// Root returns the absolute root directory.
func (s *Store) Root() string {
	return s.root
}

// Path maps a resource to its file, refusing paths that escape the root.
func (s *Store) Path(resource string) (string, error) {
	cleaned := filepath.Clean("/" + filepath.ToSlash(resource))
	path := filepath.Join(s.root, filepath.FromSlash(cleaned))
	if path != s.root && !strings.HasPrefix(path, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("resource %q escapes %s", resource, s.root)
	}
	return path, nil
}

// Contain resolves path, absolute or relative to the root, and rejects it
// unless it stays inside the root. Unlike Path, dot segments are not clamped.
func (s *Store) Contain(path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.root, path)
	}
	path = filepath.Clean(path)
	rel, err := filepath.Rel(s.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrOutsideRoot
	}
	return path, nil
}

// Fetch reads resource; a missing file is feed.ErrNotFound.
func (s *Store) Fetch(_ context.Context, resource string) (string, error) {
	path, err := s.Path(resource)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("%s: %w", resource, feed.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("read %s: %w", resource, err)
	}
	return string(data), nil
}

// Write replaces resource through a temp file and rename.
func (s *Store) Write(_ context.Context, resource, content string) error {
	path, err := s.Path(resource)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create parent of %s: %w", resource, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", resource, err)
	}
	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", resource, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", resource, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", resource, err)
	}
	return nil
}

// Provision returns the file path as the channel endpoint.
func (s *Store) Provision(_ context.Context, resource string) (string, error) {
	return s.Path(resource)
}

// Open watches the file at endpoint. Events fire when its content changes.
func (s *Store) Open(_ context.Context, endpoint string) (feed.EventSource, error) {
	return NewFileWatcher(endpoint)
}

// FileWatcher watches a single file by watching its directory, so atomic
// replacements are seen. Writes that leave the content unchanged are dropped.
type FileWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	events  chan struct{}

	mu          sync.Mutex
	fingerprint string
	closing     bool
	err         error
	once        sync.Once
}

// NewFileWatcher starts watching path.
func NewFileWatcher(path string) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	fw := &FileWatcher{
		watcher: watcher,
		path:    filepath.Clean(path),
		events:  make(chan struct{}, 1),
	}
	if data, err := os.ReadFile(fw.path); err == nil {
		fw.fingerprint = util.ContentFingerprint(data)
	}

	go fw.processEvents()
	return fw, nil
}

func (fw *FileWatcher) processEvents() {
	defer close(fw.events)
	for {
		select {
		case event, ok := <-fw.watcher.Events:
			if !ok {
				fw.finish(errors.New("file watcher stopped"))
				return
			}
			if filepath.Clean(event.Name) != fw.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if !fw.changed() {
				continue
			}
			util.LogDebug("Watched file changed", util.F("path", fw.path), util.F("op", event.Op.String()))
			select {
			case fw.events <- struct{}{}:
			default:
			}

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				fw.finish(errors.New("file watcher stopped"))
				return
			}
			util.LogErrorf("File monitoring error: %v", err)
		}
	}
}

// changed updates the stored fingerprint and reports whether it moved.
func (fw *FileWatcher) changed() bool {
	fingerprint := ""
	if data, err := os.ReadFile(fw.path); err == nil {
		fingerprint = util.ContentFingerprint(data)
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fingerprint == fw.fingerprint {
		return false
	}
	fw.fingerprint = fingerprint
	return true
}

func (fw *FileWatcher) finish(err error) {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if !fw.closing {
		fw.err = err
	}
}

// Events implements feed.EventSource.
func (fw *FileWatcher) Events() <-chan struct{} { return fw.events }

// Err implements feed.EventSource.
func (fw *FileWatcher) Err() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.err
}

// Close stops watching.
func (fw *FileWatcher) Close() error {
	var err error
	fw.once.Do(func() {
		fw.mu.Lock()
		fw.closing = true
		fw.mu.Unlock()
		err = fw.watcher.Close()
	})
	return err
}
