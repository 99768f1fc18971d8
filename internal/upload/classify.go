package upload

import (
	"fmt"
	"mime"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/lhdbsbz/hookrelay/internal/apperr"
	"github.com/lhdbsbz/hookrelay/internal/config"
)

// Category is the allow-list family of an accepted file. It is also the storage
// subdirectory and the retrieval path segment.
type Category string

const (
	CategoryImage    Category = "image"
	CategoryAudio    Category = "audio"
	CategoryDocument Category = "document"
)

type family struct {
	category Category
	label    string
	exts     map[string]bool
	mimes    map[string]bool
}

var families = []family{
	{
		category: CategoryImage,
		label:    "images",
		exts:     set(".jpg", ".jpeg", ".png", ".gif", ".webp"),
		mimes:    set("image/jpeg", "image/pjpeg", "image/png", "image/gif", "image/webp"),
	},
	{
		category: CategoryAudio,
		label:    "audio",
		exts:     set(".mp3", ".wav", ".ogg", ".oga", ".m4a", ".aac", ".webm", ".opus"),
		mimes: set("audio/mpeg", "audio/mp3", "audio/wav", "audio/x-wav", "audio/wave", "audio/ogg",
			"audio/opus", "audio/mp4", "audio/x-m4a", "audio/m4a", "audio/aac", "audio/webm"),
	},
	{
		category: CategoryDocument,
		label:    "documents",
		exts: set(".pdf", ".txt", ".csv", ".md", ".rtf", ".doc", ".docx", ".xls", ".xlsx",
			".ppt", ".pptx", ".odt", ".ods", ".odp"),
		mimes: set("application/pdf", "text/plain", "text/csv", "text/markdown", "application/rtf", "text/rtf",
			"application/msword",
			"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
			"application/vnd.ms-excel",
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			"application/vnd.ms-powerpoint",
			"application/vnd.openxmlformats-officedocument.presentationml.presentation",
			"application/vnd.oasis.opendocument.text",
			"application/vnd.oasis.opendocument.spreadsheet",
			"application/vnd.oasis.opendocument.presentation"),
	},
}

// Executables, scripts and archives. Checked before anything else.
var (
	deniedExts = set(
		".exe", ".com", ".bat", ".cmd", ".msi", ".msp", ".scr", ".pif", ".cpl", ".dll", ".sys",
		".sh", ".bash", ".zsh", ".csh", ".ps1", ".psm1", ".vbs", ".vbe", ".js", ".mjs", ".jse",
		".wsf", ".wsh", ".hta", ".lnk", ".reg", ".jar", ".apk", ".app", ".dmg", ".deb", ".rpm",
		".bin", ".elf", ".so", ".dylib", ".php", ".phtml", ".py", ".pyc", ".rb", ".pl", ".cgi",
		".zip", ".rar", ".7z", ".tar", ".gz", ".tgz", ".bz2", ".xz", ".iso", ".cab",
	)
	deniedMIMEs = set(
		"application/x-msdownload", "application/x-msdos-program", "application/x-dosexec",
		"application/vnd.microsoft.portable-executable", "application/x-executable",
		"application/x-elf", "application/x-sharedlib", "application/x-mach-binary",
		"application/x-msi", "application/x-ms-installer", "application/x-ms-shortcut",
		"application/x-sh", "application/x-csh", "application/x-bat", "text/x-shellscript",
		"application/javascript", "text/javascript", "application/x-javascript", "application/ecmascript",
		"application/x-php", "text/x-php", "text/x-python", "application/x-python-code", "text/x-perl",
		"application/x-perl", "application/x-ruby", "text/x-ruby", "application/hta",
		"application/java-archive", "application/jar", "application/vnd.android.package-archive",
		"application/zip", "application/x-zip-compressed", "application/x-rar-compressed",
		"application/vnd.rar", "application/x-7z-compressed", "application/x-tar", "application/gzip",
		"application/x-gzip", "application/x-bzip2", "application/x-xz", "application/x-iso9660-image",
		"application/vnd.ms-cab-compressed",
	)
)

// Classifier decides whether an upload is accepted and which category it belongs to.
// It has no side effects.
type Classifier struct {
	maxMediaBytes    int64
	maxDocumentBytes int64
}

func NewClassifier(cfg config.UploadsConfig) *Classifier {
	return &Classifier{
		maxMediaBytes:    cfg.MaxMediaBytes,
		maxDocumentBytes: cfg.MaxDocumentBytes,
	}
}

// Ceiling returns the size limit for a category; an unknown category gets the largest limit.
func (c *Classifier) Ceiling(cat Category) int64 {
	switch cat {
	case CategoryImage, CategoryAudio:
		return c.maxMediaBytes
	case CategoryDocument:
		return c.maxDocumentBytes
	}
	return max(c.maxMediaBytes, c.maxDocumentBytes)
}

// Classify checks, in order: the deny-list (extension or MIME), the size ceiling, and the
// allow-list (extension and MIME must both belong to the same family).
func (c *Classifier) Classify(name, declaredMIME string, size int64) (Category, error) {
	ext := Ext(name)
	mt := NormalizeMIME(declaredMIME)

	if deniedExts[ext] {
		return "", apperr.New(apperr.UnsafeFileType, fmt.Sprintf("files with extension %s are not allowed", ext))
	}
	if IsUnsafeMIME(mt) {
		return "", apperr.New(apperr.UnsafeFileType, fmt.Sprintf("files of type %s are not allowed", mt))
	}

	guessed := categoryForExt(ext)
	if limit := c.Ceiling(guessed); size > limit {
		return "", apperr.New(apperr.PayloadTooLarge, fmt.Sprintf("file is %s, the limit is %s",
			humanize.IBytes(uint64(size)), humanize.IBytes(uint64(limit))))
	}

	for _, f := range families {
		if f.exts[ext] && f.mimes[mt] {
			return f.category, nil
		}
	}
	return "", apperr.New(apperr.UnsupportedFileType, "unsupported file type; accepted: "+acceptedSummary())
}

// IsUnsafeMIME reports whether a normalized media type is on the deny-list.
func IsUnsafeMIME(mt string) bool {
	if deniedMIMEs[mt] {
		return true
	}
	return strings.Contains(mt, "executable") || strings.HasSuffix(mt, "shellscript")
}

// Ext returns the lower-cased final extension of a client-supplied file name.
func Ext(name string) string {
	return strings.ToLower(filepath.Ext(baseName(name)))
}

// NormalizeMIME strips parameters and lower-cases a declared content type.
func NormalizeMIME(declared string) string {
	mt, _, err := mime.ParseMediaType(declared)
	if err != nil {
		mt, _, _ = strings.Cut(declared, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

func categoryForExt(ext string) Category {
	for _, f := range families {
		if f.exts[ext] {
			return f.category
		}
	}
	return ""
}

func acceptedSummary() string {
	parts := make([]string, 0, len(families))
	for _, f := range families {
		exts := make([]string, 0, len(f.exts))
		for e := range f.exts {
			exts = append(exts, strings.TrimPrefix(e, "."))
		}
		sort.Strings(exts)
		parts = append(parts, fmt.Sprintf("%s (%s)", f.label, strings.Join(exts, ", ")))
	}
	return strings.Join(parts, "; ")
}

// baseName drops any directory part, including Windows separators some browsers send.
func baseName(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	return name
}

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, it := range items {
		m[it] = true
	}
	return m
}
