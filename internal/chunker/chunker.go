// Package chunker splits page text into overlapping, size-bounded chunks
// and assigns each one a content-addressed id.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidOverlap is returned when overlap is not in [0, size).
var ErrInvalidOverlap = errors.New("chunk overlap must satisfy 0 <= overlap < size")

// idPrefixRunes is how much of the content participates in the id.
const idPrefixRunes = 64

// Chunk is a contiguous slice of one page's text.
type Chunk struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	PageNumber int    `json:"page_number"`
	Source     string `json:"source"`
	ChunkIndex int    `json:"chunk_index"`
	Length     int    `json:"length"`
}

// Page is the cleaned text of one page or slide, numbered from 1.
type Page struct {
	Number int
	Text   string
}

// Split cuts text into windows of size runes advancing by size-overlap.
// Text no longer than size is returned unchanged as a single chunk.
func Split(text string, size, overlap int) ([]string, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidOverlap, size, overlap)
	}
	if text == "" {
		return nil, nil
	}

	runes := []rune(text)
	if len(runes) <= size {
		return []string{text}, nil
	}

	var chunks []string
	step := size - overlap
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		if c := strings.TrimSpace(string(runes[start:end])); c != "" {
			chunks = append(chunks, c)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks, nil
}

// ID returns the hex SHA-256 of source|page|index|content[:64 runes].
func ID(source string, page, index int, content string) string {
	prefix := content
	if r := []rune(content); len(r) > idPrefixRunes {
		prefix = string(r[:idPrefixRunes])
	}

	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.Itoa(page)))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.Itoa(index)))
	h.Write([]byte("|"))
	h.Write([]byte(prefix))
	return hex.EncodeToString(h.Sum(nil))
}

// Chunker applies Split to whole documents.
type Chunker struct {
	Size    int
	Overlap int
}

// New validates size and overlap.
func New(size, overlap int) (*Chunker, error) {
	if size <= 0 || overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: size=%d overlap=%d", ErrInvalidOverlap, size, overlap)
	}
	return &Chunker{Size: size, Overlap: overlap}, nil
}

// ChunkPages chunks every page in order and assigns ids.
func (c *Chunker) ChunkPages(source string, pages []Page) ([]Chunk, error) {
	var out []Chunk
	for _, p := range pages {
		parts, err := Split(p.Text, c.Size, c.Overlap)
		if err != nil {
			return nil, err
		}
		for i, content := range parts {
			out = append(out, Chunk{
				ID:         ID(source, p.Number, i, content),
				Content:    content,
				PageNumber: p.Number,
				Source:     source,
				ChunkIndex: i,
				Length:     len([]rune(content)),
			})
		}
	}
	return out, nil
}

// Limit keeps chunks in order while their total length stays within
// maxChars. The first chunk that would overflow and everything after it
// is dropped.
func Limit(chunks []Chunk, maxChars int) (kept []Chunk, dropped int) {
	total := 0
	for i, c := range chunks {
		if total+c.Length > maxChars {
			return chunks[:i], len(chunks) - i
		}
		total += c.Length
	}
	return chunks, 0
}

// Preview returns at most n runes of content.
func Preview(content string, n int) string {
	r := []rune(content)
	if len(r) <= n {
		return content
	}
	return string(r[:n])
}
