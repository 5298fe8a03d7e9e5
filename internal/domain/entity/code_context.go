package entity

import (
	"path"
	"strings"
	"time"
)

// FileEntry is a file the agent has loaded fully into its working memory.
type FileEntry struct {
	path         string
	content      string
	language     string
	isEditing    bool
	lastAccessed time.Time
}

// NewFileEntry normalizes path relative to the workspace root and rejects
// paths that escape it (path_escape, §7).
func NewFileEntry(relPath, content, language string) (*FileEntry, error) {
	norm, err := NormalizeWorkspacePath(relPath)
	if err != nil {
		return nil, err
	}
	return &FileEntry{
		path:         norm,
		content:      content,
		language:     language,
		lastAccessed: time.Now(),
	}, nil
}

func (f *FileEntry) Path() string          { return f.path }
func (f *FileEntry) Content() string       { return f.content }
func (f *FileEntry) Language() string      { return f.language }
func (f *FileEntry) IsEditing() bool       { return f.isEditing }
func (f *FileEntry) LastAccessed() time.Time { return f.lastAccessed }
func (f *FileEntry) Chars() int            { return len(f.content) }

func (f *FileEntry) Touch()              { f.lastAccessed = time.Now() }
func (f *FileEntry) SetEditing(v bool)   { f.isEditing = v }
func (f *FileEntry) UpdateContent(c string) {
	f.content = c
	f.lastAccessed = time.Now()
}

// NormalizeWorkspacePath cleans relPath and rejects anything that would
// resolve outside the workspace root (leading "..", absolute paths).
func NormalizeWorkspacePath(relPath string) (string, error) {
	if relPath == "" {
		return "", ErrInvalidFilePath
	}
	clean := path.Clean(strings.ReplaceAll(relPath, "\\", "/"))
	clean = strings.TrimPrefix(clean, "/")
	if clean == ".." || strings.HasPrefix(clean, "../") || path.IsAbs(clean) {
		return "", ErrInvalidFilePath
	}
	return clean, nil
}

// SymbolKind is the kind of a source-code symbol.
type SymbolKind string

const (
	SymbolClass    SymbolKind = "class"
	SymbolFunction SymbolKind = "function"
	SymbolMethod   SymbolKind = "method"
	SymbolVariable SymbolKind = "variable"
)

// SymbolInfo describes one indexed symbol.
type SymbolInfo struct {
	Name       string     `json:"name"`
	Kind       SymbolKind `json:"kind"`
	Signature  string     `json:"signature"`
	LineStart  int        `json:"line_start"`
	LineEnd    int        `json:"line_end"`
	Docstring  string     `json:"docstring,omitempty"`
}

// SymbolIndex is the project-wide symbol table code context is projected
// from, grounded on infrastructure/codeintel's Indexer/RepoMap shape.
type SymbolIndex struct {
	symbolsByFile map[string][]SymbolInfo
	dependencies  map[string][]string
}

// NewSymbolIndex creates an empty index.
func NewSymbolIndex() *SymbolIndex {
	return &SymbolIndex{
		symbolsByFile: make(map[string][]SymbolInfo),
		dependencies:  make(map[string][]string),
	}
}

// SetFile replaces the indexed symbols and import edges for one file,
// the unit of the incremental rebuild triggered by file_change (§5).
func (idx *SymbolIndex) SetFile(file string, symbols []SymbolInfo, imports []string) {
	idx.symbolsByFile[file] = symbols
	idx.dependencies[file] = imports
}

// RemoveFile drops a file's symbols and edges (on delete_file/move_file).
func (idx *SymbolIndex) RemoveFile(file string) {
	delete(idx.symbolsByFile, file)
	delete(idx.dependencies, file)
}

func (idx *SymbolIndex) SymbolsForFile(file string) []SymbolInfo { return idx.symbolsByFile[file] }
func (idx *SymbolIndex) Dependencies(file string) []string       { return idx.dependencies[file] }

func (idx *SymbolIndex) Files() []string {
	files := make([]string, 0, len(idx.symbolsByFile))
	for f := range idx.symbolsByFile {
		files = append(files, f)
	}
	return files
}

// CodeContext is the bounded working set of focused files plus the
// project's symbol index.
type CodeContext struct {
	focusedFiles map[string]*FileEntry
	order        []string // insertion/access order, oldest first, for LRU eviction
	maxChars     int
	symbolIndex  *SymbolIndex
}

// NewCodeContext creates an empty code context with a total-characters cap
// across all focused (non-editing-protected) files.
func NewCodeContext(maxChars int) *CodeContext {
	return &CodeContext{
		focusedFiles: make(map[string]*FileEntry),
		symbolIndex:  NewSymbolIndex(),
		maxChars:     maxChars,
	}
}

func (c *CodeContext) SymbolIndex() *SymbolIndex { return c.symbolIndex }

// FocusedFiles returns the current focused-file set.
func (c *CodeContext) FocusedFiles() map[string]*FileEntry { return c.focusedFiles }

// TotalChars sums the content length of every focused file.
func (c *CodeContext) TotalChars() int {
	total := 0
	for _, f := range c.focusedFiles {
		total += f.Chars()
	}
	return total
}

// Put places a FileEntry into the focused set in full, per the
// content-duplication policy (§4.3.6), evicting LRU non-editing entries
// until the total-characters cap is respected.
func (c *CodeContext) Put(f *FileEntry) {
	if existing, ok := c.focusedFiles[f.Path()]; ok {
		existing.UpdateContent(f.Content())
		c.touchOrder(f.Path())
	} else {
		c.focusedFiles[f.Path()] = f
		c.order = append(c.order, f.Path())
	}
	c.evictIfNeeded()
}

func (c *CodeContext) touchOrder(p string) {
	for i, o := range c.order {
		if o == p {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append(c.order, p)
}

// evictIfNeeded drops the least-recently-used non-editing entry until
// TotalChars is within maxChars, or no evictable entry remains.
func (c *CodeContext) evictIfNeeded() {
	if c.maxChars <= 0 {
		return
	}
	for c.TotalChars() > c.maxChars {
		evicted := false
		for i, p := range c.order {
			f := c.focusedFiles[p]
			if f == nil || f.IsEditing() {
				continue
			}
			delete(c.focusedFiles, p)
			c.order = append(c.order[:i], c.order[i+1:]...)
			evicted = true
			break
		}
		if !evicted {
			return
		}
	}
}

// Get returns a focused file by path and marks it accessed.
func (c *CodeContext) Get(p string) (*FileEntry, bool) {
	f, ok := c.focusedFiles[p]
	if ok {
		f.Touch()
		c.touchOrder(p)
	}
	return f, ok
}

// Remove drops a focused file explicitly (delete_file/move_file).
func (c *CodeContext) Remove(p string) {
	delete(c.focusedFiles, p)
	for i, o := range c.order {
		if o == p {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
