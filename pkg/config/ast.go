package config

import (
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

// SourceFile represents a parsed configuration source.
type SourceFile struct {
	Lines []*Assignment `( @@ | Newline )*`
}

// Assignment represents a single KEY=value line.
// Example: export VENDOR_ID=0x1d6b
type Assignment struct {
	Pos lexer.Position

	Export bool   `@"export"?`
	Key    string `@Word Assign`
	Value  *Value `@@?`
}

// Value is the right-hand side of an assignment.
type Value struct {
	Bare   *string `  @Bare`
	Double *string `| @DQString`
	Single *string `| @SQString`
}

// String returns the value with shell quoting removed. A nil Value (KEY=)
// yields the empty string.
func (v *Value) String() string {
	switch {
	case v == nil:
		return ""
	case v.Bare != nil:
		return *v.Bare
	case v.Double != nil:
		return unescapeDouble(strings.TrimSuffix(strings.TrimPrefix(*v.Double, `"`), `"`))
	case v.Single != nil:
		return strings.TrimSuffix(strings.TrimPrefix(*v.Single, "'"), "'")
	}
	return ""
}

// unescapeDouble applies the escapes shell honours inside double quotes:
// \", \\, \$ and \` stand for the second character and a backslash-newline
// is removed. Any other backslash is kept as written.
func unescapeDouble(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '"', '\\', '$', '`':
				b.WriteByte(s[i+1])
				i++
				continue
			case '\n':
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// Lookup returns the last value assigned to key, matching shell semantics
// where a later assignment overrides an earlier one.
func (f *SourceFile) Lookup(key string) (string, bool) {
	var (
		value string
		found bool
	)
	for _, line := range f.Lines {
		if line.Key == key {
			value = line.Value.String()
			found = true
		}
	}
	return value, found
}

// Keys returns assigned keys in first-seen order without duplicates.
func (f *SourceFile) Keys() []string {
	seen := make(map[string]bool)
	var keys []string
	for _, line := range f.Lines {
		if seen[line.Key] {
			continue
		}
		seen[line.Key] = true
		keys = append(keys, line.Key)
	}
	return keys
}
