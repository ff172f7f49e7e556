package domain

import "strings"

// File mirrors the rebuildable file metadata cache owned by the filesystem
// subsystem. The digest pipeline treats it as read-only input.
type File struct {
	Path       string `json:"path"`
	Name       string `json:"name"`
	IsFolder   bool   `json:"is_folder"`
	Size       int64  `json:"size"`
	MimeType   string `json:"mime_type"`
	Hash       string `json:"hash"`
	ModifiedAt int64  `json:"modified_at"`
	CreatedAt  int64  `json:"created_at"`

	// TextPreview is the cached head of the file's text content, when the
	// filesystem subsystem extracted one.
	TextPreview *string `json:"text_preview,omitempty"`
}

// PreviewText returns the cached text preview, or the empty string.
func (f *File) PreviewText() string {
	if f.TextPreview == nil {
		return ""
	}
	return *f.TextPreview
}

// Extension returns the lower-cased filename extension including the dot,
// or the empty string when there is none.
func (f *File) Extension() string {
	idx := strings.LastIndex(f.Name, ".")
	if idx < 0 || idx == len(f.Name)-1 {
		return ""
	}
	return strings.ToLower(f.Name[idx:])
}

// HasMimePrefix reports whether the file's MIME type starts with the given
// prefix, e.g. "image/" or "audio/".
func (f *File) HasMimePrefix(prefix string) bool {
	return strings.HasPrefix(f.MimeType, prefix)
}
