// Package cache persists parsed points per input file so unchanged files are
// not parsed again on the next run.
package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"

	"github.com/penwyp/podscope/internal/core/model"
	"github.com/penwyp/podscope/internal/util"
)

type CacheMissReason int

const (
	MissReasonNone CacheMissReason = iota
	MissReasonError
	MissReasonInode
	MissReasonSize
	MissReasonModTime
	MissReasonFingerprint
	MissReasonNoFingerprint
	MissReasonNotFound
)

func (r CacheMissReason) String() string {
	switch r {
	case MissReasonNone:
		return "none"
	case MissReasonError:
		return "error"
	case MissReasonInode:
		return "inode"
	case MissReasonSize:
		return "size"
	case MissReasonModTime:
		return "modtime"
	case MissReasonFingerprint:
		return "fingerprint"
	case MissReasonNoFingerprint:
		return "no_fingerprint"
	default:
		return "not_found"
	}
}

// fingerprintWindow: files untouched for longer are trusted on stat alone.
const fingerprintWindow = 48 * time.Hour

// Entry is the cached parse of one file under one parse mode.
type Entry struct {
	FilePath           string        `json:"file_path"`
	Mode               string        `json:"mode"`
	Inode              uint64        `json:"inode"`
	FileSize           int64         `json:"file_size"`
	LastModified       int64         `json:"last_modified"`
	ContentFingerprint string        `json:"content_fingerprint"`
	Points             []model.Point `json:"points"`
}

type CacheResult struct {
	Entry      *Entry
	Found      bool
	MissReason CacheMissReason
}

// Cache stores parsed points keyed by file path and parse mode.
type Cache interface {
	Get(filePath, mode string) CacheResult
	Set(filePath, mode string, points []model.Point) error
	Clear() error
	Preload() error
}

// FileCache keeps one JSON file per entry under baseDir, fronted by memory.
type FileCache struct {
	baseDir     string
	mu          sync.RWMutex
	memoryCache map[string]*Entry
}

func NewFileCache(baseDir string) (*FileCache, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, err
	}

	return &FileCache{
		baseDir:     baseDir,
		memoryCache: make(map[string]*Entry),
	}, nil
}

// entryKey names the entry for a file and mode; stable across runs.
func entryKey(filePath, mode string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(mode+"|"+filePath)).String()
}

func (c *FileCache) Get(filePath, mode string) CacheResult {
	key := entryKey(filePath, mode)

	c.mu.RLock()
	memEntry, exists := c.memoryCache[key]
	c.mu.RUnlock()

	if exists {
		if reason := validate(memEntry); reason == MissReasonNone {
			return CacheResult{Entry: memEntry, Found: true}
		}
		c.mu.Lock()
		delete(c.memoryCache, key)
		c.mu.Unlock()
	}

	return c.getFromFile(key)
}

func (c *FileCache) getFromFile(key string) CacheResult {
	entry, err := readEntry(filepath.Join(c.baseDir, key+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return CacheResult{MissReason: MissReasonNotFound}
		}
		return CacheResult{MissReason: MissReasonError}
	}

	if reason := validate(entry); reason != MissReasonNone {
		return CacheResult{MissReason: reason}
	}

	c.mu.Lock()
	c.memoryCache[key] = entry
	c.mu.Unlock()
	return CacheResult{Entry: entry, Found: true}
}

func readEntry(path string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entry Entry
	if err := sonic.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode cache entry %s: %w", path, err)
	}
	return &entry, nil
}

// validate compares the entry against the file on disk: inode, size and
// modtime first, then the content fingerprint for recently changed files.
func validate(entry *Entry) CacheMissReason {
	currentInfo, err := util.GetFileInfo(entry.FilePath)
	if err != nil {
		util.LogDebug("Cache validation failed", util.F("file", entry.FilePath), util.F("error", err))
		return MissReasonError
	}

	if currentInfo.Inode != entry.Inode {
		util.LogDebugf("Cache invalidated for %s: inode changed (cached: %d, current: %d)",
			entry.FilePath, entry.Inode, currentInfo.Inode)
		return MissReasonInode
	}
	if currentInfo.Size != entry.FileSize {
		util.LogDebugf("Cache invalidated for %s: size changed (cached: %d, current: %d)",
			entry.FilePath, entry.FileSize, currentInfo.Size)
		return MissReasonSize
	}
	if currentInfo.ModTime != entry.LastModified {
		util.LogDebugf("Cache invalidated for %s: modtime changed (cached: %d, current: %d)",
			entry.FilePath, entry.LastModified, currentInfo.ModTime)
		return MissReasonModTime
	}

	if time.Since(time.Unix(currentInfo.ModTime, 0)) > fingerprintWindow {
		return MissReasonNone
	}

	if entry.ContentFingerprint == "" {
		return MissReasonNoFingerprint
	}
	fingerprint, err := fileFingerprint(entry.FilePath)
	if err != nil {
		return MissReasonNoFingerprint
	}
	if fingerprint != entry.ContentFingerprint {
		util.LogDebugf("Cache invalidated for %s: fingerprint mismatch (cached: %s, current: %s)",
			entry.FilePath, entry.ContentFingerprint, fingerprint)
		return MissReasonFingerprint
	}
	return MissReasonNone
}

func fileFingerprint(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return util.ContentFingerprint(data), nil
}

func (c *FileCache) Set(filePath, mode string, points []model.Point) error {
	fileInfo, err := util.GetFileInfo(filePath)
	if err != nil {
		return err
	}
	entry := &Entry{
		FilePath:     filePath,
		Mode:         mode,
		Inode:        fileInfo.Inode,
		FileSize:     fileInfo.Size,
		LastModified: fileInfo.ModTime,
		Points:       points,
	}
	if fingerprint, err := fileFingerprint(filePath); err == nil {
		entry.ContentFingerprint = fingerprint
	}

	data, err := sonic.ConfigStd.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	key := entryKey(filePath, mode)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.WriteFile(filepath.Join(c.baseDir, key+".json"), data, 0644); err != nil {
		return err
	}
	c.memoryCache[key] = entry
	return nil
}

// Clear drops the memory cache and every entry file.
func (c *FileCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.memoryCache = make(map[string]*Entry)

	entries, err := os.ReadDir(c.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			if err := os.Remove(filepath.Join(c.baseDir, e.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}

type preloadResult struct {
	filePath string
	key      string
	entry    *Entry
	err      error
}

// Preload reads every entry file into memory using a worker pool; stale
// entries are skipped.
func (c *FileCache) Preload() error {
	entries, err := os.ReadDir(c.baseDir)
	if err != nil {
		return fmt.Errorf("failed to scan cache directory: %w", err)
	}
	var cacheFiles []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".json") {
			cacheFiles = append(cacheFiles, filepath.Join(c.baseDir, e.Name()))
		}
	}
	if len(cacheFiles) == 0 {
		util.LogDebug("Cache directory is empty, skipping preload")
		return nil
	}

	numWorkers := runtime.NumCPU()
	if numWorkers > len(cacheFiles) {
		numWorkers = len(cacheFiles)
	}

	filesChan := make(chan string, len(cacheFiles))
	resultsChan := make(chan preloadResult, len(cacheFiles))

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go c.preloadWorker(filesChan, resultsChan, &wg)
	}
	for _, file := range cacheFiles {
		filesChan <- file
	}
	close(filesChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	loaded, invalid, failed := 0, 0, 0
	for result := range resultsChan {
		switch {
		case result.err != nil:
			failed++
			util.LogWarn("Failed to preload cache file", util.F("file", result.filePath), util.F("error", result.err))
		case validate(result.entry) == MissReasonNone:
			c.mu.Lock()
			c.memoryCache[result.key] = result.entry
			c.mu.Unlock()
			loaded++
		default:
			invalid++
		}
	}

	util.LogDebug("Cache preload complete",
		util.F("loaded", loaded),
		util.F("invalid", invalid),
		util.F("errors", failed))
	return nil
}

func (c *FileCache) preloadWorker(filesChan <-chan string, resultsChan chan<- preloadResult, wg *sync.WaitGroup) {
	defer wg.Done()

	for filePath := range filesChan {
		result := preloadResult{
			filePath: filePath,
			key:      strings.TrimSuffix(filepath.Base(filePath), ".json"),
		}
		result.entry, result.err = readEntry(filePath)
		resultsChan <- result
	}
}

// GetCacheStats returns the number of entries in memory and on disk.
func (c *FileCache) GetCacheStats() (memoryCount, fileCount int) {
	c.mu.RLock()
	memoryCount = len(c.memoryCache)
	c.mu.RUnlock()

	entries, err := os.ReadDir(c.baseDir)
	if err != nil {
		return memoryCount, 0
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".json") {
			fileCount++
		}
	}
	return memoryCount, fileCount
}
