package runtime

import (
	"path/filepath"
	"slices"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/rust"
)

// sourceLanguage ties a Compiler Explorer language id to the file
// extensions it covers and the grammar its outline script parses with.
type sourceLanguage struct {
	id      string
	exts    []string
	grammar func() *sitter.Language
}

var sourceLanguages = []sourceLanguage{
	{id: "c", exts: []string{".c", ".h"}, grammar: c.GetLanguage},
	{id: "c++", exts: []string{".cc", ".cpp", ".cxx", ".hpp"}, grammar: cpp.GetLanguage},
	{id: "rust", exts: []string{".rs"}, grammar: rust.GetLanguage},
}

var (
	grammars     map[string]*sitter.Language
	grammarsOnce sync.Once
)

// LanguageForFile infers a language id from path's extension.
func LanguageForFile(path string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	for _, l := range sourceLanguages {
		if slices.Contains(l.exts, ext) {
			return l.id, true
		}
	}
	return "", false
}

// ParserForLanguage returns the tree-sitter grammar for a language id.
// Grammars are built on first use.
func ParserForLanguage(lang string) (*sitter.Language, bool) {
	grammarsOnce.Do(func() {
		grammars = make(map[string]*sitter.Language, len(sourceLanguages))
		for _, l := range sourceLanguages {
			grammars[l.id] = l.grammar()
		}
	})
	g, ok := grammars[lang]
	return g, ok
}
