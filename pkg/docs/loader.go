package docs

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"retail-analytics-copilot/pkg/store"
)

// maxChunkChars bounds how much paragraph text is merged into one chunk.
const maxChunkChars = 600

// Loader reads markdown documents from a directory and splits them into
// retrieval chunks. The chunk sequence is ordered and rebuilt only on an
// explicit Load call.
type Loader struct {
	dir    string
	logger *log.Logger
}

// NewLoader creates a document loader rooted at dir.
func NewLoader(dir string, logger *log.Logger) *Loader {
	return &Loader{
		dir:    dir,
		logger: logger,
	}
}

// Load reads every .md file under the docs directory (sorted by name for a
// deterministic chunk order) and returns the chunked corpus. Chunk IDs are
// "<document_name>::chunk<index>" where index restarts per document.
func (l *Loader) Load() ([]store.Chunk, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("read docs dir %s: %w", l.dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var chunks []store.Chunk
	for _, name := range names {
		content, err := os.ReadFile(filepath.Join(l.dir, name))
		if err != nil {
			return nil, fmt.Errorf("read document %s: %w", name, err)
		}

		docName := strings.TrimSuffix(name, ".md")
		parts := splitDocument(string(content))
		for i, text := range parts {
			chunks = append(chunks, store.Chunk{
				ID:     fmt.Sprintf("%s::chunk%d", docName, i),
				Source: name,
				Text:   text,
			})
		}

		l.logger.Printf("[DOCS] Loaded %s: %d chunks", name, len(parts))
	}

	return chunks, nil
}

// splitDocument breaks markdown into paragraph blocks, merging consecutive
// blocks until a chunk reaches maxChunkChars. Headings start a new chunk so
// a section and its body stay together.
func splitDocument(content string) []string {
	blocks := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n\n")

	var parts []string
	var current strings.Builder

	flush := func() {
		text := strings.TrimSpace(current.String())
		if text != "" {
			parts = append(parts, text)
		}
		current.Reset()
	}

	for _, block := range blocks {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		startsSection := strings.HasPrefix(block, "#")
		if startsSection || current.Len()+len(block) > maxChunkChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(block)
	}
	flush()

	return parts
}
