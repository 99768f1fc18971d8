package upload

import (
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"
	"github.com/lhdbsbz/hookrelay/internal/apperr"
)

// Content signatures that are never accepted, whatever the name and declared type say.
// Archives are left out: office documents are zip containers.
var deniedSignatures = set(
	"application/vnd.microsoft.portable-executable",
	"application/x-elf",
	"application/x-executable",
	"application/x-sharedlib",
	"application/x-mach-binary",
	"application/x-ms-installer",
	"application/x-ms-shortcut",
	"application/jar",
	"text/x-shellscript",
	"text/x-php",
	"text/x-python",
	"text/x-perl",
	"text/x-lua",
	"text/x-tcl",
)

// Sniff inspects the leading bytes of r and rejects executable or script content.
// It returns the detected media type. r is consumed; callers re-open or seek afterwards.
func Sniff(r io.Reader) (string, error) {
	mt, err := mimetype.DetectReader(r)
	if err != nil {
		return "", fmt.Errorf("detect content type: %w", err)
	}
	for m := mt; m != nil; m = m.Parent() {
		if deniedSignatures[NormalizeMIME(m.String())] {
			return mt.String(), apperr.New(apperr.UnsafeFileType,
				fmt.Sprintf("file content looks like %s, which is not allowed", m.String()))
		}
	}
	return mt.String(), nil
}
