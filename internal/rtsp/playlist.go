// Created by WINK Streaming (https://www.wink.co)
package rtsp

import (
	"os"
	"path/filepath"
	"sort"
)

// Playlist is an ordered, fixed list of media filenames enumerated
// once at startup, traversed with modulo cycling by NEXT/PREVIOUS.
type Playlist struct {
	dir   string
	files []string
}

// LoadPlaylist enumerates *.mjpeg files in dir, sorted by name for a
// deterministic NEXT/PREVIOUS order.
func LoadPlaylist(dir string) (*Playlist, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if filepath.Ext(e.Name()) == ".mjpeg" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	return &Playlist{dir: dir, files: files}, nil
}

// Len reports the number of entries.
func (p *Playlist) Len() int { return len(p.files) }

// IndexOf returns the index of name, or -1 if not present.
func (p *Playlist) IndexOf(name string) int {
	for i, f := range p.files {
		if f == name {
			return i
		}
	}
	return -1
}

// At returns the filename at index i, which must already be in
// [0, Len()).
func (p *Playlist) At(i int) string { return p.files[i] }

// Next returns the (index, filename) one position after i, wrapping
// modulo the list length.
func (p *Playlist) Next(i int) (int, string) {
	n := len(p.files)
	j := (i + 1) % n
	return j, p.files[j]
}

// Previous returns the (index, filename) one position before i,
// wrapping modulo the list length.
func (p *Playlist) Previous(i int) (int, string) {
	n := len(p.files)
	j := (i - 1 + n) % n
	return j, p.files[j]
}

// Path joins the playlist directory with name.
func (p *Playlist) Path(name string) string {
	return filepath.Join(p.dir, name)
}
