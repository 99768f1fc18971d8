package upload

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lhdbsbz/hookrelay/internal/apperr"
)

// File describes an accepted and stored upload. It is the upload endpoint's response
// body and the attachment reference clients send back in chat events.
type File struct {
	Filename      string   `json:"filename"`
	OriginalName  string   `json:"originalName"`
	MIMEType      string   `json:"mimeType"`
	SizeBytes     int64    `json:"sizeBytes"`
	Category      Category `json:"category"`
	RetrievalPath string   `json:"retrievalPath"`
}

// Incoming is what the store needs to know about a classified upload.
type Incoming struct {
	OriginalName string
	MIMEType     string
	Category     Category
}

// Store writes uploads to root/<category>/ and hands out retrieval paths under prefix.
type Store struct {
	root   string
	prefix string
	now    func() time.Time
	token  func() string
}

func NewStore(root, publicPrefix string) *Store {
	return &Store{
		root:   root,
		prefix: "/" + strings.Trim(publicPrefix, "/"),
		now:    time.Now,
		token:  randomToken,
	}
}

// Root returns the directory uploads are written under.
func (s *Store) Root() string { return s.root }

// Prefix returns the public URL path retrieval paths start with.
func (s *Store) Prefix() string { return s.prefix }

// Save copies r into a new file with a unique generated name. The category directory is
// created on first use. A failed write removes the partial file.
func (s *Store) Save(ctx context.Context, in Incoming, r io.Reader) (*File, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperr.Wrap(apperr.StorageFailure, "upload cancelled", err)
	}

	dir := filepath.Join(s.root, string(in.Category))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, apperr.Wrap(apperr.StorageFailure, "create upload directory", err)
	}

	name := s.storedName(in.OriginalName)
	full := filepath.Join(dir, name)
	f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, apperr.Wrap(apperr.StorageFailure, "create upload file", err)
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(full)
		return nil, apperr.Wrap(apperr.StorageFailure, "write upload file", err)
	}

	return &File{
		Filename:      name,
		OriginalName:  baseName(in.OriginalName),
		MIMEType:      in.MIMEType,
		SizeBytes:     n,
		Category:      in.Category,
		RetrievalPath: path.Join(s.prefix, string(in.Category), name),
	}, nil
}

// storedName builds {unixMillis}-{token}-{sanitizedBase}{ext}.
func (s *Store) storedName(original string) string {
	base := baseName(original)
	ext := sanitizeExt(filepath.Ext(base))
	stem := SanitizeBaseName(strings.TrimSuffix(base, filepath.Ext(base)))
	return fmt.Sprintf("%d-%s-%s%s", s.now().UnixMilli(), s.token(), stem, ext)
}

const maxBaseNameRunes = 50

var (
	unsafeNameChars = regexp.MustCompile(`[^\p{L}\p{N}_\-.]`)
	repeatedSeps    = regexp.MustCompile(`[_\-.]{2,}`)
	unsafeExtChars  = regexp.MustCompile(`[^a-z0-9]`)
)

// SanitizeBaseName keeps letters, digits, '_', '-' and '.', collapses separator runs
// and caps the length. An empty result becomes "file".
func SanitizeBaseName(name string) string {
	name = strings.ReplaceAll(name, " ", "_")
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = repeatedSeps.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_-.")

	if r := []rune(name); len(r) > maxBaseNameRunes {
		name = strings.TrimRight(string(r[:maxBaseNameRunes]), "_-.")
	}
	if name == "" {
		return "file"
	}
	return name
}

func sanitizeExt(ext string) string {
	ext = unsafeExtChars.ReplaceAllString(strings.ToLower(strings.TrimPrefix(ext, ".")), "")
	if ext == "" {
		return ""
	}
	return "." + ext
}

func randomToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
