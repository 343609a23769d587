// Package archive builds the zip response for a processed batch. Entries
// are written in batch order straight to the output writer, so transmission
// can start before the archive is complete.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/flate"
)

const compressionLevel = 6

// Entry is one renamed file ready for archiving.
type Entry struct {
	Name    string
	Content []byte
}

// Assembler streams zip archives. Safe for concurrent use; each Write call
// is independent.
type Assembler struct{}

func NewAssembler() *Assembler {
	return &Assembler{}
}

// Write streams the entries into w as a zip archive, in order, and returns
// the number of archive bytes written. Entry names are deduplicated
// deterministically: a second "photo.jpg" becomes "photo_2.jpg", a third
// "photo_3.jpg". Nothing is ever silently dropped.
//
// Any error aborts mid-stream. The bytes already written stay written; the
// caller owns connection teardown.
func (a *Assembler) Write(w io.Writer, entries []Entry) (int64, error) {
	cw := &countingWriter{w: w}
	zw := zip.NewWriter(cw)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, compressionLevel)
	})

	seen := make(map[string]int, len(entries))
	for _, entry := range entries {
		name := dedupe(entry.Name, seen)
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:   name,
			Method: zip.Deflate,
		})
		if err != nil {
			return cw.n, fmt.Errorf("create archive entry %s: %w", name, err)
		}
		if _, err := fw.Write(entry.Content); err != nil {
			return cw.n, fmt.Errorf("write archive entry %s: %w", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return cw.n, fmt.Errorf("finalize archive: %w", err)
	}
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// dedupe returns name unchanged the first time it appears and appends a
// counter suffix before the extension on repeats.
func dedupe(name string, seen map[string]int) string {
	count := seen[name]
	seen[name] = count + 1
	if count == 0 {
		return name
	}

	base, ext := name, ""
	if i := strings.LastIndex(name, "."); i >= 0 {
		base, ext = name[:i], name[i:]
	}
	candidate := base + "_" + strconv.Itoa(count+1) + ext
	// The suffixed name could itself collide with a later entry; claim it.
	for seen[candidate] > 0 {
		count++
		seen[name] = count + 1
		candidate = base + "_" + strconv.Itoa(count+1) + ext
	}
	seen[candidate] = 1
	return candidate
}
