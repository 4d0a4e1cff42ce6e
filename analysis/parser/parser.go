package parser

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Parser wraps a tree-sitter parser configured for Python.
// A Parser is reusable across files but must not be shared across goroutines.
type Parser struct {
	parser *sitter.Parser
}

// New creates a Python parser.
func New() *Parser {
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())
	return &Parser{parser: p}
}

// Parse parses Python source and returns the syntax tree.
// The caller owns the returned tree and should Close it when done.
func (p *Parser) Parse(source []byte) (*sitter.Tree, error) {
	tree, err := p.parser.ParseCtx(context.Background(), nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Python source: %w", err)
	}
	if tree == nil {
		return nil, fmt.Errorf("failed to parse Python source")
	}
	return tree, nil
}

// Close releases the underlying tree-sitter parser.
func (p *Parser) Close() {
	p.parser.Close()
}

// nodeText returns the UTF-8 content of a node.
func nodeText(node *sitter.Node, source []byte) string {
	if node == nil {
		return ""
	}
	return node.Content(source)
}
