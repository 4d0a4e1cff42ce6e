package indexer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/cris160/exploit-prover/analysis/parser"
)

// SymbolKind classifies an indexed top-level definition.
type SymbolKind string

const (
	SymbolFunction SymbolKind = "Function"
	SymbolClass    SymbolKind = "Class"
	SymbolVariable SymbolKind = "Variable"
)

// Symbol is an indexed definition somewhere in the workspace.
type Symbol struct {
	Name     string
	Kind     SymbolKind
	FilePath string
	Line     int // 1-indexed

	// ModulePath is the dotted Python module path derived from the file's
	// location relative to the workspace root (utils/db.py → "utils.db").
	ModulePath string
}

// ImportedName is one name pulled in by an import statement, with its
// optional local alias.
type ImportedName struct {
	Name  string
	Alias string // empty when not aliased
}

// EffectiveName returns the local name the import binds.
func (in ImportedName) EffectiveName() string {
	if in.Alias != "" {
		return in.Alias
	}
	return in.Name
}

// ImportStatement is one import or from-import in a file.
type ImportStatement struct {
	Module       string // "utils.db" or "flask"
	Names        []ImportedName
	IsFromImport bool
}

// ProjectIndexer discovers Python files under a workspace root and builds a
// global symbol table plus a per-file import cache.
//
// The indexer is owned by a single cross-file analysis and is not re-entrant.
type ProjectIndexer struct {
	symbols       map[string][]Symbol
	imports       map[string][]ImportStatement
	workspaceRoot string
	parser        *parser.Parser
}

// skipDir reports whether a directory should be excluded from indexing.
// Hidden directories, dependency trees, and bytecode caches never hold
// first-party source.
func skipDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	switch name {
	case "node_modules", "__pycache__", "venv", ".venv":
		return true
	}
	return false
}

// New creates an indexer rooted at workspaceRoot.
func New(workspaceRoot string) *ProjectIndexer {
	return &ProjectIndexer{
		symbols:       make(map[string][]Symbol),
		imports:       make(map[string][]ImportStatement),
		workspaceRoot: workspaceRoot,
		parser:        parser.New(),
	}
}

// IndexWorkspace discovers and indexes every Python file under the root.
// Files that fail to read or parse are skipped; the count of successfully
// indexed files is returned.
func (pi *ProjectIndexer) IndexWorkspace() (int, error) {
	files, err := pi.findPythonFiles(pi.workspaceRoot)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, filePath := range files {
		if err := pi.IndexFile(filePath); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to index %s: %v\n", filePath, err)
			continue
		}
		count++
	}

	return count, nil
}

// findPythonFiles recursively enumerates .py files under dir.
func (pi *ProjectIndexer) findPythonFiles(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, nil
	}

	var files []string
	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != dir && skipDir(info.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(path, ".py") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk workspace %s: %w", dir, err)
	}

	return files, nil
}

// IndexFile parses one file and records its symbols and imports.
func (pi *ProjectIndexer) IndexFile(filePath string) error {
	source, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filePath, err)
	}

	tree, err := pi.parser.Parse(source)
	if err != nil {
		return err
	}
	defer tree.Close()

	modulePath := pi.pathToModule(filePath)
	pi.extractSymbols(tree.RootNode(), source, filePath, modulePath)
	pi.imports[filePath] = collectImports(tree.RootNode(), source)

	return nil
}

// pathToModule converts a file path to a dotted Python module path.
// "/workspace/utils/db.py" with root "/workspace" becomes "utils.db".
func (pi *ProjectIndexer) pathToModule(filePath string) string {
	relative, err := filepath.Rel(pi.workspaceRoot, filePath)
	if err != nil {
		relative = filePath
	}
	relative = strings.TrimSuffix(relative, ".py")
	return strings.ReplaceAll(filepath.ToSlash(relative), "/", ".")
}

// extractSymbols records function and class definitions.
func (pi *ProjectIndexer) extractSymbols(node *sitter.Node, source []byte, filePath, modulePath string) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "function_definition":
		if nameNode := node.ChildByFieldName("name"); nameNode != nil {
			name := nameNode.Content(source)
			pi.symbols[name] = append(pi.symbols[name], Symbol{
				Name:       name,
				Kind:       SymbolFunction,
				FilePath:   filePath,
				Line:       int(node.StartPoint().Row) + 1,
				ModulePath: modulePath,
			})
		}
	case "class_definition":
		if nameNode := node.ChildByFieldName("name"); nameNode != nil {
			name := nameNode.Content(source)
			pi.symbols[name] = append(pi.symbols[name], Symbol{
				Name:       name,
				Kind:       SymbolClass,
				FilePath:   filePath,
				Line:       int(node.StartPoint().Row) + 1,
				ModulePath: modulePath,
			})
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		pi.extractSymbols(node.Child(i), source, filePath, modulePath)
	}
}

// collectImports records import and from-import statements anywhere in the file.
func collectImports(node *sitter.Node, source []byte) []ImportStatement {
	var imports []ImportStatement
	walkImports(node, source, &imports)
	return imports
}

func walkImports(node *sitter.Node, source []byte, imports *[]ImportStatement) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "import_statement":
		// import foo, bar as baz
		var names []ImportedName
		for i := 0; i < int(node.ChildCount()); i++ {
			child := node.Child(i)
			switch child.Type() {
			case "dotted_name":
				names = append(names, ImportedName{Name: child.Content(source)})
			case "aliased_import":
				if imported, ok := parseAliasedImport(child, source); ok {
					names = append(names, imported)
				}
			}
		}
		if len(names) > 0 {
			*imports = append(*imports, ImportStatement{
				Module: names[0].Name,
				Names:  names,
			})
		}
	case "import_from_statement":
		// from foo import bar, baz as qux
		var module string
		var names []ImportedName
		for i := 0; i < int(node.ChildCount()); i++ {
			child := node.Child(i)
			switch child.Type() {
			case "dotted_name", "identifier":
				name := child.Content(source)
				if name == "from" || name == "import" {
					continue
				}
				if module == "" && child.Type() == "dotted_name" {
					module = name
				} else {
					names = append(names, ImportedName{Name: name})
				}
			case "aliased_import":
				if imported, ok := parseAliasedImport(child, source); ok {
					names = append(names, imported)
				}
			}
		}
		if module != "" {
			*imports = append(*imports, ImportStatement{
				Module:       module,
				Names:        names,
				IsFromImport: true,
			})
		}
	}

	for i := 0; i < int(node.ChildCount()); i++ {
		walkImports(node.Child(i), source, imports)
	}
}

func parseAliasedImport(node *sitter.Node, source []byte) (ImportedName, bool) {
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return ImportedName{}, false
	}
	imported := ImportedName{Name: nameNode.Content(source)}
	if aliasNode := node.ChildByFieldName("alias"); aliasNode != nil {
		imported.Alias = aliasNode.Content(source)
	}
	return imported, true
}

// ResolveSymbol finds the definition of a name used from a given file.
//
// Resolution order:
//  1. A definition in the same file wins.
//  2. The file's imports are consulted; among candidates for an imported
//     name, one whose module path matches the imported module is preferred.
//  3. The first global definition, if any.
func (pi *ProjectIndexer) ResolveSymbol(fromFile, symbolName string) *Symbol {
	if symbols, ok := pi.symbols[symbolName]; ok {
		for i := range symbols {
			if symbols[i].FilePath == fromFile {
				return &symbols[i]
			}
		}
	}

	for _, imp := range pi.imports[fromFile] {
		for _, imported := range imp.Names {
			if imported.EffectiveName() != symbolName {
				continue
			}
			if symbols, ok := pi.symbols[imported.Name]; ok {
				for i := range symbols {
					if strings.HasSuffix(symbols[i].ModulePath, imp.Module) ||
						strings.HasSuffix(imp.Module, symbols[i].ModulePath) {
						return &symbols[i]
					}
				}
				return &symbols[0]
			}
		}
	}

	if symbols, ok := pi.symbols[symbolName]; ok && len(symbols) > 0 {
		return &symbols[0]
	}
	return nil
}

// AllSymbols returns the complete symbol table.
func (pi *ProjectIndexer) AllSymbols() map[string][]Symbol {
	return pi.symbols
}

// SymbolCount returns the total number of indexed symbols.
func (pi *ProjectIndexer) SymbolCount() int {
	count := 0
	for _, symbols := range pi.symbols {
		count += len(symbols)
	}
	return count
}

// FileImports returns the imports recorded for a file.
func (pi *ProjectIndexer) FileImports(filePath string) []ImportStatement {
	return pi.imports[filePath]
}
