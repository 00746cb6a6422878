package config

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/participle/v2"
)

// Parser represents a configuration source parser
type Parser struct {
	parser *participle.Parser[SourceFile]
}

// NewParser creates a new configuration source parser instance
func NewParser() (*Parser, error) {
	parser, err := participle.Build[SourceFile](
		participle.Lexer(SourceLexer),
		participle.Elide("Comment", "Whitespace"),
		participle.UseLookahead(2),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build parser: %w", err)
	}

	return &Parser{parser: parser}, nil
}

// Parse parses a configuration source from a reader
func (p *Parser) Parse(r io.Reader) (*SourceFile, error) {
	src, err := p.parser.Parse("", r)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return src, nil
}

// ParseFile parses a configuration source from a file path
func (p *Parser) ParseFile(filename string) (*SourceFile, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	src, err := p.parser.Parse(filename, file)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	return src, nil
}
