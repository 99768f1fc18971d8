package upload

import (
	"bytes"
	"strings"
	"testing"

	"github.com/lhdbsbz/hookrelay/internal/apperr"
	"github.com/lhdbsbz/hookrelay/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClassifier() *Classifier {
	return NewClassifier(config.UploadsConfig{MaxMediaBytes: 10 << 20, MaxDocumentBytes: 25 << 20})
}

func TestClassifyAccepts(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		mime     string
		wantCat  Category
	}{
		{"jpeg photo", "photo.JPG", "image/jpeg", CategoryImage},
		{"png with path", `C:\Users\me\shot.png`, "image/png", CategoryImage},
		{"mp3", "song.mp3", "audio/mpeg", CategoryAudio},
		{"voice note with codec param", "audio-1712345678901.webm", "audio/webm;codecs=opus", CategoryAudio},
		{"wav alias", "memo.wav", "audio/x-wav", CategoryAudio},
		{"pdf", "invoice.pdf", "application/pdf", CategoryDocument},
		{"docx", "contract.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", CategoryDocument},
		{"text upper-case mime", "notes.txt", "Text/Plain; charset=utf-8", CategoryDocument},
	}
	c := testClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat, err := c.Classify(tt.file, tt.mime, 1024)
			require.NoError(t, err)
			assert.Equal(t, tt.wantCat, cat)
		})
	}
}

func TestClassifyDenyListWins(t *testing.T) {
	tests := []struct {
		name string
		file string
		mime string
	}{
		{"spoofed pdf mime", "invoice.pdf.exe", "application/pdf"},
		{"spoofed image mime", "cat.png.bat", "image/png"},
		{"script extension", "run.sh", "text/plain"},
		{"archive extension", "photos.zip", "image/jpeg"},
		{"executable mime with allowed ext", "report.pdf", "application/x-msdownload"},
		{"javascript mime", "notes.txt", "text/javascript"},
		{"shellscript suffix", "song.mp3", "application/x-shellscript"},
		{"upper-case ext", "SETUP.EXE", "application/octet-stream"},
	}
	c := testClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Classify(tt.file, tt.mime, 10)
			require.Error(t, err)
			assert.Equal(t, apperr.UnsafeFileType, apperr.KindOf(err))
		})
	}
}

func TestClassifyDenyListBeatsSize(t *testing.T) {
	_, err := testClassifier().Classify("huge.exe", "application/pdf", 1<<40)
	assert.Equal(t, apperr.UnsafeFileType, apperr.KindOf(err))
}

func TestClassifyUnsupported(t *testing.T) {
	tests := []struct {
		name string
		file string
		mime string
	}{
		{"unknown ext", "model.stl", "model/stl"},
		{"family mismatch", "photo.png", "audio/mpeg"},
		{"ext ok mime missing", "photo.png", ""},
		{"mime ok ext missing", "photo", "image/png"},
		{"video", "clip.mp4", "video/mp4"},
	}
	c := testClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Classify(tt.file, tt.mime, 10)
			require.Error(t, err)
			assert.Equal(t, apperr.UnsupportedFileType, apperr.KindOf(err))
			assert.Contains(t, err.Error(), "images")
			assert.Contains(t, err.Error(), "audio")
			assert.Contains(t, err.Error(), "documents")
		})
	}
}

func TestClassifySizeCeilings(t *testing.T) {
	c := testClassifier()

	_, err := c.Classify("photo.png", "image/png", 10<<20+1)
	assert.Equal(t, apperr.PayloadTooLarge, apperr.KindOf(err))

	_, err = c.Classify("photo.png", "image/png", 10<<20)
	assert.NoError(t, err)

	cat, err := c.Classify("scan.pdf", "application/pdf", 20<<20)
	require.NoError(t, err)
	assert.Equal(t, CategoryDocument, cat)

	_, err = c.Classify("scan.pdf", "application/pdf", 25<<20+1)
	assert.Equal(t, apperr.PayloadTooLarge, apperr.KindOf(err))

	// unknown type over the largest ceiling fails on size before the allow-list
	_, err = c.Classify("blob.xyz", "application/x-thing", 30<<20)
	assert.Equal(t, apperr.PayloadTooLarge, apperr.KindOf(err))
}

func TestNormalizeMIME(t *testing.T) {
	assert.Equal(t, "audio/webm", NormalizeMIME("audio/webm;codecs=opus"))
	assert.Equal(t, "image/png", NormalizeMIME(" IMAGE/PNG "))
	assert.Equal(t, "", NormalizeMIME(""))
	assert.Equal(t, "text/plain", NormalizeMIME("text/plain; charset"))
}

func TestSniff(t *testing.T) {
	t.Run("png passes", func(t *testing.T) {
		png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
		mt, err := Sniff(bytes.NewReader(png))
		require.NoError(t, err)
		assert.Equal(t, "image/png", mt)
	})
	t.Run("elf rejected", func(t *testing.T) {
		elf := append([]byte("\x7fELF\x02\x01\x01"), make([]byte, 64)...)
		_, err := Sniff(bytes.NewReader(elf))
		assert.Equal(t, apperr.UnsafeFileType, apperr.KindOf(err))
	})
	t.Run("shell script rejected", func(t *testing.T) {
		_, err := Sniff(strings.NewReader("#!/bin/sh\nrm -rf /tmp/x\n"))
		assert.Equal(t, apperr.UnsafeFileType, apperr.KindOf(err))
	})
}
