// Package rename implements the deterministic batch filename generator.
// Given a file's original name, its position in the batch, and a set of
// per-request options, it produces the new name. The transformation is pure:
// the same inputs always yield the same output and it never fails.
package rename

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Case conversion modes accepted in Options.CaseType.
const (
	CaseLower    = "lowercase"
	CaseUpper    = "UPPERCASE"
	CaseTitle    = "Title Case"
	CaseSentence = "Sentence case"
)

// Options configures one batch rename. Each toggle enables its step
// independently; the steps always run in the same fixed order. Zero values
// fall back to the documented defaults, so a partially filled Options is
// always usable. Unknown JSON fields are ignored on decode.
type Options struct {
	BaseName string `json:"baseName"` // default "file"

	AddPrefix  bool   `json:"addPrefix"`
	PrefixText string `json:"prefixText"`
	AddSuffix  bool   `json:"addSuffix"`
	SuffixText string `json:"suffixText"`

	AddNumbering    bool   `json:"addNumbering"`
	StartNumber     int    `json:"startNumber"`     // default 1
	NumberDigits    int    `json:"numberDigits"`    // default 2
	NumberSeparator string `json:"numberSeparator"` // default "_"

	FindReplace bool   `json:"findReplace"`
	FindText    string `json:"findText"`
	ReplaceText string `json:"replaceText"`
	MatchCase   bool   `json:"matchCase"`

	ConvertCase bool   `json:"convertCase"`
	CaseType    string `json:"caseType"`

	ChangeExtension bool   `json:"changeExtension"`
	NewExtension    string `json:"newExtension"`
}

// Apply produces the new filename for the file at the given 0-based batch
// index. Numbering starts at StartNumber for index 0.
//
// A name without a "." keeps an empty extension, which yields a trailing
// lone "." in the output unless ChangeExtension overrides it. Intentional:
// callers rely on the historical behavior.
func Apply(originalName string, index int, opts Options) string {
	baseName := opts.BaseName
	if baseName == "" {
		baseName = "file"
	}

	extension := ""
	if i := strings.LastIndex(originalName, "."); i >= 0 {
		extension = originalName[i+1:]
	}

	var b strings.Builder
	if opts.AddPrefix && opts.PrefixText != "" {
		b.WriteString(opts.PrefixText)
	}
	b.WriteString(baseName)

	if opts.AddNumbering {
		start := opts.StartNumber
		if start == 0 {
			start = 1
		}
		digits := opts.NumberDigits
		if digits == 0 {
			digits = 2
		}
		separator := opts.NumberSeparator
		if separator == "" {
			separator = "_"
		}
		b.WriteString(separator)
		b.WriteString(padNumber(start+index, digits))
	}

	if opts.AddSuffix && opts.SuffixText != "" {
		b.WriteString(opts.SuffixText)
	}

	name := b.String()

	if opts.FindReplace && opts.FindText != "" {
		name = replaceAll(name, opts.FindText, opts.ReplaceText, opts.MatchCase)
	}

	if opts.ConvertCase {
		name = convertCase(name, opts.CaseType)
	}

	if opts.ChangeExtension && opts.NewExtension != "" {
		extension = opts.NewExtension
	}

	return name + "." + extension
}

func padNumber(n, digits int) string {
	s := strconv.Itoa(n)
	for len(s) < digits {
		s = "0" + s
	}
	return s
}

// replaceAll replaces every literal occurrence of find with replace. The
// needle is quoted so pattern metacharacters in user input stay literal.
func replaceAll(s, find, replace string, matchCase bool) string {
	pattern := regexp.QuoteMeta(find)
	if !matchCase {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return s
	}
	return re.ReplaceAllLiteralString(s, replace)
}

func convertCase(s, caseType string) string {
	switch caseType {
	case CaseLower:
		return strings.ToLower(s)
	case CaseUpper:
		return strings.ToUpper(s)
	case CaseTitle:
		return titleCase(s)
	case CaseSentence:
		return sentenceCase(s)
	}
	return s
}

// titleCase uppercases the first letter of each whitespace-delimited word
// and lowercases the remainder, preserving the original whitespace.
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	startWord := true
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			startWord = true
			b.WriteRune(r)
		case startWord:
			startWord = false
			b.WriteRune(unicode.ToUpper(r))
		default:
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func sentenceCase(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	return string(unicode.ToUpper(runes[0])) + strings.ToLower(string(runes[1:]))
}
