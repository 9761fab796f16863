package http_handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"sync"

	"github.com/anthanhphan/go-blob-store/internal/storage/domain"
	sdklogger "github.com/anthanhphan/gosdk/logger"
	"github.com/gofiber/fiber/v2"
)

const (
	fileField  = "file"
	userField  = "userId"
	tagsField  = "tags"
	uploadedBy = "uploadedBy"
	anonymous  = "anonymous"

	maxFieldSize = 64 * 1024
)

var errFieldTooLarge = errors.New("form field too large")

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleList(c *fiber.Ctx) error {
	files, err := s.store.ListFiles(c.UserContext())
	if err != nil {
		return s.sendStoreError(c, "List files", err)
	}
	return c.JSON(files)
}

func (s *Server) handleMetadata(c *fiber.Ctx) error {
	fileID := c.Params("id")
	meta, err := s.store.Stat(c.UserContext(), fileID)
	if err != nil {
		return s.sendStoreError(c, "Metadata lookup", err, "file_id", fileID)
	}
	return c.JSON(meta)
}

// handleUpload streams the "file" part straight into the store. Form fields
// are honored only when they precede the file part.
func (s *Server) handleUpload(c *fiber.Ctx) error {
	mediaType, params, err := mime.ParseMediaType(c.Get(fiber.HeaderContentType))
	if err != nil || mediaType != fiber.MIMEMultipartForm {
		return s.sendJSONError(c, fiber.StatusBadRequest, "Content-Type must be multipart/form-data")
	}
	boundary, ok := params["boundary"]
	if !ok || boundary == "" {
		return s.sendJSONError(c, fiber.StatusBadRequest, "Missing boundary in Content-Type")
	}

	bodyStream := c.Context().RequestBodyStream()
	if bodyStream == nil {
		bodyStream = bytes.NewReader(c.Body())
	}
	mr := multipart.NewReader(bodyStream, boundary)

	var (
		userID string
		tags   = make(map[string]string)
	)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return s.sendJSONError(c, fiber.StatusBadRequest, "No file provided")
		}
		if err != nil {
			return s.sendJSONError(c, fiber.StatusBadRequest, "Malformed multipart body")
		}

		switch part.FormName() {
		case fileField:
			if userID == "" {
				userID = anonymous
			}
			tags[uploadedBy] = userID
			req := domain.UploadRequest{
				Name:        part.FileName(),
				ContentType: part.Header.Get(fiber.HeaderContentType),
				Tags:        tags,
			}
			return s.upload(c, part, req)
		case userField:
			value, err := readField(part)
			if err != nil {
				return s.sendJSONError(c, fiber.StatusBadRequest, "Invalid userId field")
			}
			userID = value
		case tagsField:
			value, err := readField(part)
			if err != nil {
				return s.sendJSONError(c, fiber.StatusBadRequest, "Invalid tags field")
			}
			if err := json.Unmarshal([]byte(value), &tags); err != nil {
				return s.sendJSONError(c, fiber.StatusBadRequest, "tags must be a JSON object of strings")
			}
			if tags == nil {
				tags = make(map[string]string)
			}
		default:
			_ = part.Close()
		}
	}
}

func (s *Server) upload(c *fiber.Ctx, part *multipart.Part, req domain.UploadRequest) error {
	if req.Name == "" {
		return s.sendJSONError(c, fiber.StatusBadRequest, "No file provided")
	}

	meta, err := s.store.Upload(c.UserContext(), part, req)
	if err != nil {
		return s.sendStoreError(c, "Upload", err, "file_name", req.Name)
	}

	sdklogger.Infow("File uploaded", "file_id", meta.ID, "file_name", meta.Name, "size_bytes", meta.SizeBytes)
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "File uploaded successfully",
		"file":    meta,
	})
}

func readField(part *multipart.Part) (string, error) {
	defer func() { _ = part.Close() }()
	raw, err := io.ReadAll(io.LimitReader(part, maxFieldSize+1))
	if err != nil {
		return "", err
	}
	if len(raw) > maxFieldSize {
		return "", errFieldTooLarge
	}
	return string(raw), nil
}

func (s *Server) handleDownload(c *fiber.Ctx) error {
	fileID := c.Params("id")
	meta, body, err := s.store.Download(c.UserContext(), fileID)
	if err != nil {
		return s.sendStoreError(c, "Download", err, "file_id", fileID)
	}

	c.Set(fiber.HeaderContentType, meta.ContentType)
	c.Set(fiber.HeaderContentDisposition, contentDisposition(meta.Name))
	stream := &loggedStream{ReadCloser: body, fileID: fileID, remaining: meta.SizeBytes}
	return c.Status(fiber.StatusOK).SendStream(stream, int(meta.SizeBytes))
}

func contentDisposition(name string) string {
	if name == "" {
		return "attachment"
	}
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "attachment"
}

// loggedStream reports failures that happen after the headers were sent.
// The sized response copy stops after exactly the recorded length, so the
// read that delivers the last byte also pulls the end of the stream; size
// and digest checks then fail that copy instead of passing unnoticed.
type loggedStream struct {
	io.ReadCloser
	fileID    string
	remaining int64
	once      sync.Once
}

func (l *loggedStream) Read(p []byte) (int, error) {
	n, err := l.ReadCloser.Read(p)
	l.remaining -= int64(n)
	if err == nil && n > 0 && l.remaining <= 0 {
		var extra [1]byte
		var m int
		m, err = l.ReadCloser.Read(extra[:])
		if m > 0 {
			err = domain.Corruptedf("file %s: content beyond recorded size", l.fileID)
		}
	}
	if err != nil && err != io.EOF {
		l.once.Do(func() {
			sdklogger.Errorw("Download stream failed", "file_id", l.fileID, "error", err.Error())
		})
	}
	return n, err
}

func (s *Server) handleDelete(c *fiber.Ctx) error {
	fileID := c.Params("id")
	if err := s.store.Delete(c.UserContext(), fileID); err != nil {
		return s.sendStoreError(c, "Delete", err, "file_id", fileID)
	}
	sdklogger.Infow("File deleted", "file_id", fileID)
	return c.JSON(fiber.Map{"message": "File deleted successfully"})
}
