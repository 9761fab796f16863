package http_handler

import (
	"context"

	"github.com/anthanhphan/go-blob-store/internal/storage/config"
	"github.com/anthanhphan/go-blob-store/internal/storage/port"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// multipartSlack covers boundaries and form fields around the file part.
const multipartSlack = 1 << 20

type Server struct {
	app   *fiber.App
	cfg   *config.Config
	store port.BlobStore
}

func NewServer(cfg *config.Config, store port.BlobStore) *Server {
	app := fiber.New(fiber.Config{
		// Bodies above the limit are streamed; the upload pipeline enforces the ceiling.
		BodyLimit:             int(cfg.Store.MaxUploadSize) + multipartSlack,
		StreamRequestBody:     true,
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())

	s := &Server{
		app:   app,
		cfg:   cfg,
		store: store,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.app.Get("/healthz", s.handleHealth)

	files := s.app.Group("/api/files")
	files.Get("/", s.handleList)
	files.Post("/upload", s.handleUpload)
	files.Get("/:id/metadata", s.handleMetadata)
	files.Get("/:id", s.handleDownload)
	files.Delete("/:id", s.handleDelete)
}

// App exposes the fiber app for in-process testing.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Start() error {
	return s.app.Listen(s.cfg.Server.Addr)
}

func (s *Server) Stop(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
