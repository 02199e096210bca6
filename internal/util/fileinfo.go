package util

import (
	"fmt"
	"os"
	"syscall"
)

// FileInfo identifies one version of a file on disk.
type FileInfo struct {
	ModTime int64  // Unix seconds
	Size    int64  // Bytes
	Inode   uint64 // Changes when the file is replaced rather than rewritten
}

// GetFileInfo stats path. Linux and macOS only, since it needs the inode.
func GetFileInfo(path string) (*FileInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if stat.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	sysStat, ok := stat.Sys().(*syscall.Stat_t)
	if !ok {
		return nil, fmt.Errorf("no inode information for %s", path)
	}
	return &FileInfo{
		ModTime: stat.ModTime().Unix(),
		Size:    stat.Size(),
		Inode:   sysStat.Ino,
	}, nil
}
