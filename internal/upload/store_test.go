package upload

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lhdbsbz/hookrelay/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreSave(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root, "uploads/")
	s.now = func() time.Time { return time.UnixMilli(1700000000123) }
	s.token = func() string { return "abc123def456" }

	f, err := s.Save(context.Background(), Incoming{
		OriginalName: "My Holiday Photo!.JPG",
		MIMEType:     "image/jpeg",
		Category:     CategoryImage,
	}, strings.NewReader("jpeg-bytes"))
	require.NoError(t, err)

	assert.Equal(t, "1700000000123-abc123def456-My_Holiday_Photo.jpg", f.Filename)
	assert.Equal(t, "My Holiday Photo!.JPG", f.OriginalName)
	assert.Equal(t, int64(len("jpeg-bytes")), f.SizeBytes)
	assert.Equal(t, CategoryImage, f.Category)
	assert.Equal(t, "/uploads/image/"+f.Filename, f.RetrievalPath)

	data, err := os.ReadFile(filepath.Join(root, "image", f.Filename))
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))
}

func TestStoreConcurrentSameNameNeverCollides(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root, "/uploads")

	const n = 32
	var wg sync.WaitGroup
	names := make(chan string, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, err := s.Save(context.Background(), Incoming{
				OriginalName: "voice.webm",
				MIMEType:     "audio/webm",
				Category:     CategoryAudio,
			}, strings.NewReader("ogg"))
			if err != nil {
				errs <- err
				return
			}
			names <- f.Filename
		}()
	}
	wg.Wait()
	close(names)
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent save failed: %v", err)
	}
	seen := map[string]bool{}
	for name := range names {
		assert.False(t, seen[name], "duplicate stored name %s", name)
		seen[name] = true
	}
	assert.Len(t, seen, n)

	entries, err := os.ReadDir(filepath.Join(root, "audio"))
	require.NoError(t, err)
	assert.Len(t, entries, n)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestStoreSaveFailureIsStorageFailure(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root, "/uploads")

	_, err := s.Save(context.Background(), Incoming{OriginalName: "a.pdf", Category: CategoryDocument}, failingReader{})
	require.Error(t, err)
	assert.Equal(t, apperr.StorageFailure, apperr.KindOf(err))

	entries, err := os.ReadDir(filepath.Join(root, "document"))
	require.NoError(t, err)
	assert.Empty(t, entries, "partial file should be removed")
}

func TestStoreSaveUnwritableRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(root, []byte("not a dir"), 0644))

	_, err := NewStore(root, "/uploads").Save(context.Background(),
		Incoming{OriginalName: "a.png", Category: CategoryImage}, strings.NewReader("x"))
	assert.Equal(t, apperr.StorageFailure, apperr.KindOf(err))
}

func TestSanitizeBaseName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"report", "report"},
		{"my report (final)", "my_report_final"},
		{"../../etc/passwd", "etc_passwd"},
		{"niño año", "niño_año"},
		{"...", "file"},
		{"", "file"},
		{strings.Repeat("a", 80), strings.Repeat("a", 50)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeBaseName(tt.in))
		})
	}
}
