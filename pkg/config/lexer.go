package config

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// SourceLexer tokenizes shell-style assignment files such as
// /etc/rpitalk/gadget.conf. Only the assignment subset of shell syntax is
// recognised; nothing is expanded or executed.
//
// An assignment operator switches to the Value state, where the right-hand
// side is read as a single word up to the next blank. Inside that word '#'
// and '=' are literal, as they are in shell.
var SourceLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		// Comments start a word and run to end of line
		{Name: "Comment", Pattern: `#[^\n]*`},
		{Name: "Newline", Pattern: `\r?\n`},
		{Name: "Whitespace", Pattern: `[ \t]+`},
		{Name: "Assign", Pattern: `=`, Action: lexer.Push("Value")},

		// Keys and the export keyword
		{Name: "Word", Pattern: `[^\s"'#=]+`},
	},
	"Value": {
		// Double quotes allow backslash escapes, single quotes are literal.
		{Name: "DQString", Pattern: `"(\\(.|\n)|[^"\\])*"`},
		{Name: "SQString", Pattern: `'[^']*'`},
		{Name: "Bare", Pattern: `[^\s"']+`},

		// A blank ends the value
		{Name: "Newline", Pattern: `\r?\n`, Action: lexer.Pop()},
		{Name: "Whitespace", Pattern: `[ \t]+`, Action: lexer.Pop()},
	},
})
