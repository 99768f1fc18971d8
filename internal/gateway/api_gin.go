package gateway

import (
	"errors"
	"io"
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/lhdbsbz/hookrelay/internal/apperr"
	"github.com/lhdbsbz/hookrelay/internal/upload"
)

const (
	uploadField = "file"
	// room for multipart boundaries and part headers on top of the file itself
	multipartOverhead = 64 * 1024
)

func (s *Server) registerAPIRoutes(engine *gin.Engine) {
	engine.POST("/upload", s.ginUpload)
}

func (s *Server) ginUpload(c *gin.Context) {
	cfg := s.cfg.Load()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, cfg.Uploads.MaxBytes()+multipartOverhead)

	fh, err := c.FormFile(uploadField)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.uploadFailed(c, apperr.New(apperr.PayloadTooLarge,
				"file exceeds the "+humanize.IBytes(uint64(cfg.Uploads.MaxBytes()))+" upload limit"))
			return
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": `no file uploaded; send it in the "file" form field`})
		return
	}

	declared := fh.Header.Get("Content-Type")
	category, err := s.classifier.Load().Classify(fh.Filename, declared, fh.Size)
	if err != nil {
		s.uploadFailed(c, err)
		return
	}

	f, err := fh.Open()
	if err != nil {
		s.uploadFailed(c, apperr.Wrap(apperr.StorageFailure, "could not read upload", err))
		return
	}
	defer f.Close()

	detected, err := upload.Sniff(f)
	if err != nil {
		if apperr.Is(err, apperr.UnsafeFileType) {
			s.uploadFailed(c, err)
			return
		}
		s.log.Warn("content sniffing failed", "file", fh.Filename, "error", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		s.uploadFailed(c, apperr.Wrap(apperr.StorageFailure, "could not read upload", err))
		return
	}

	stored, err := s.store.Save(c.Request.Context(), upload.Incoming{
		OriginalName: fh.Filename,
		MIMEType:     upload.NormalizeMIME(declared),
		Category:     category,
	}, f)
	if err != nil {
		s.uploadFailed(c, err)
		return
	}

	s.log.Info("upload stored",
		"file", stored.Filename,
		"category", stored.Category,
		"size", humanize.IBytes(uint64(stored.SizeBytes)),
		"detected", detected)
	c.JSON(http.StatusOK, stored)
}

func (s *Server) uploadFailed(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	if kind == "" {
		kind = apperr.StorageFailure
	}
	msg := err.Error()
	var e *apperr.Error
	if errors.As(err, &e) {
		msg = e.Message
	}
	if kind == apperr.StorageFailure {
		s.log.Error("upload failed", "kind", kind, "error", err)
	} else {
		s.log.Info("upload rejected", "kind", kind, "reason", msg)
	}
	c.AbortWithStatusJSON(kind.HTTPStatus(), gin.H{"error": msg, "kind": kind})
}
