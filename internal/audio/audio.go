// Package audio loads local audio clips for archiving as audio logs.
package audio

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
	"github.com/dustin/go-humanize"

	"github.com/burnoutdv/santonian-archive/internal/store"
	"github.com/burnoutdv/santonian-archive/internal/util"
)

// MaxClipSize is the largest clip accepted (16 MiB)
const MaxClipSize = 16 << 20

// Clip is an audio file read into memory
type Clip struct {
	Path     string
	Data     []byte
	Hash     string
	Format   string // tag format, e.g. ID3v2.3; empty when unknown
	FileType string // container, e.g. MP3; empty when unknown
	Title    string
}

// Size returns the clip size in bytes
func (c *Clip) Size() int {
	return len(c.Data)
}

// HumanSize formats the clip size for display
func (c *Clip) HumanSize() string {
	return humanize.Bytes(uint64(len(c.Data)))
}

// Name derives a log name from the file name: VOICE1.MP3 for voice1.mp3
func (c *Clip) Name() string {
	return strings.ToUpper(filepath.Base(c.Path))
}

// Load reads an audio file and sniffs its tags.
// Unreadable tags are not an error: many clips carry none.
func Load(path string) (*Clip, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > MaxClipSize {
		return nil, fmt.Errorf("%s is %s, larger than the %s limit",
			path, humanize.Bytes(uint64(info.Size())), humanize.Bytes(MaxClipSize))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	clip := &Clip{
		Path: path,
		Data: data,
		Hash: util.FingerprintBytes(data),
	}

	if m, err := tag.ReadFrom(bytes.NewReader(data)); err == nil {
		clip.Format = string(m.Format())
		clip.FileType = string(m.FileType())
		clip.Title = m.Title()
	} else {
		util.DebugLog("No tags in %s: %v", path, err)
		if format, fileType, err := tag.Identify(bytes.NewReader(data)); err == nil {
			clip.Format = string(format)
			clip.FileType = string(fileType)
		}
	}

	return clip, nil
}

// Import loads a clip and ingests it as an audio log.
// An empty name falls back to the upper-cased file name.
func Import(db *store.Store, path, name string, folder store.FolderRef) (*Clip, *store.IngestResult, error) {
	clip, err := Load(path)
	if err != nil {
		return nil, nil, err
	}
	if name == "" {
		name = clip.Name()
	}

	res, err := db.IngestAudio(name, clip.Data, folder)
	if err != nil {
		return clip, nil, fmt.Errorf("failed to import %s: %w", path, err)
	}

	util.InfoLog("Audio %s (%s, %s): %s", name, clip.HumanSize(), describe(clip), res.Outcome)
	return clip, res, nil
}

func describe(c *Clip) string {
	switch {
	case c.FileType != "" && c.FileType != string(tag.UnknownFileType):
		return c.FileType
	case c.Format != "" && c.Format != string(tag.UnknownFormat):
		return c.Format
	}
	return "unknown format"
}
