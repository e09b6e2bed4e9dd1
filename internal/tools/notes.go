package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dusk-indust/ordercopilot/internal/llm"
)

// ErrBadNoteName is returned for note names that escape the notes directory.
var ErrBadNoteName = errors.New("tools: note name must be a local relative path")

// maxNoteBytes caps how much of a note is returned to the model.
const maxNoteBytes = 64 << 10

// Notes reads support notes from a directory. With an empty Dir it answers
// with a placeholder instead of touching the filesystem.
type Notes struct {
	Dir string
}

// Fetch returns the content of filename.
func (n Notes) Fetch(filename string) (string, error) {
	name := strings.TrimSpace(filename)
	if n.Dir == "" {
		return fmt.Sprintf("MCP(filesystem) read request for: %s (demo stub)", name), nil
	}
	if name == "" || !filepath.IsLocal(name) {
		return "", fmt.Errorf("%w: %q", ErrBadNoteName, filename)
	}

	f, err := os.Open(filepath.Join(n.Dir, name))
	if err != nil {
		return "", fmt.Errorf("tools: open note: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxNoteBytes))
	if err != nil {
		return "", fmt.Errorf("tools: read note: %w", err)
	}
	return string(data), nil
}

// NewFetchNoteTool returns mcp_fetch_file_note backed by n.
func NewFetchNoteTool(n Notes) Tool {
	return Tool{
		Name:        "mcp_fetch_file_note",
		Description: "Fetch a local support note by file name. Output: {ok, content}.",
		Params:      []llm.Param{{Name: "filename", Description: "Note file name.", Required: true}},
		Call: func(_ context.Context, args Args) (any, error) {
			content, err := n.Fetch(args.String("filename"))
			if err != nil {
				return map[string]any{"ok": false, "content": err.Error()}, nil
			}
			return map[string]any{"ok": true, "content": content}, nil
		},
	}
}
