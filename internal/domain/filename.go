package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// RecordExt is the extension of every catalog record file
const RecordExt = ".md"

const maxSlugLen = 50

// IsRecordName reports whether name looks like a catalog record file
func IsRecordName(name string) bool {
	return !strings.HasPrefix(name, ".") && strings.EqualFold(filepath.Ext(name), RecordExt)
}

// IDFromFilename derives the stable item ID from its file name
func IDFromFilename(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// RecordFilename returns the file name for a new record created at t
func RecordFilename(title string, t time.Time) string {
	return fmt.Sprintf("%s-%d%s", Slugify(title), t.UnixMilli(), RecordExt)
}

// SuffixedName inserts a millisecond timestamp before the extension of name
func SuffixedName(name string, t time.Time) string {
	ext := filepath.Ext(name)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), t.UnixMilli(), ext)
}

// Slugify converts a title into a lowercase ASCII filename stem
func Slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
		if b.Len() >= maxSlugLen {
			break
		}
	}

	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		return "untitled"
	}
	return slug
}
