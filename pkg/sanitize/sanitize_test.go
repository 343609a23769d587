package sanitize

import (
	"strings"
	"testing"
)

func TestEntryName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "normal filename",
			input:    "document.pdf",
			expected: "document.pdf",
		},
		{
			name:     "path traversal stripped to last segment",
			input:    "../../../etc/passwd",
			expected: "passwd",
		},
		{
			name:     "windows path stripped to last segment",
			input:    `C:\Users\victim\notes.txt`,
			expected: "notes.txt",
		},
		{
			name:     "null byte removed",
			input:    "file\x00.txt",
			expected: "file.txt",
		},
		{
			name:     "null byte cannot hide a separator",
			input:    "safe\x00/..\x00/evil.txt",
			expected: "evil.txt",
		},
		{
			name:     "disallowed characters replaced",
			input:    "re:port|v2?.csv",
			expected: "re_port_v2_.csv",
		},
		{
			name:     "spaces and parens preserved",
			input:    "my report (final).pdf",
			expected: "my report (final).pdf",
		},
		{
			name:     "leading and trailing dots trimmed",
			input:    "..hidden..",
			expected: "hidden",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "file",
		},
		{
			name:     "only dots",
			input:    "...",
			expected: "file",
		},
		{
			name:     "unicode replaced",
			input:    "日本語.txt",
			expected: "___.txt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := EntryName(tt.input)
			if result != tt.expected {
				t.Errorf("EntryName(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestEntryName_LengthLimit(t *testing.T) {
	longName := strings.Repeat("a", 300)

	result := EntryName(longName)
	if len(result) > 200 {
		t.Errorf("Expected entry name length <= 200, got %d", len(result))
	}
}

func TestForHeader(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "normal filename",
			input:    "hello-world.zip",
			expected: "hello-world.zip",
		},
		{
			name:     "filename with quotes",
			input:    `file" name.zip`,
			expected: "file name.zip",
		},
		{
			name:     "filename with newlines",
			input:    "file\nname.zip",
			expected: "filename.zip",
		},
		{
			name:     "filename with mixed special chars",
			input:    "file\r\n\"name\".zip",
			expected: "filename.zip",
		},
		{
			name:     "separators removed",
			input:    `path/to\file.zip`,
			expected: "pathtofile.zip",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "download",
		},
		{
			name:     "unicode characters replaced",
			input:    "日本語.zip",
			expected: "___.zip",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ForHeader(tt.input)
			if result != tt.expected {
				t.Errorf("ForHeader(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
