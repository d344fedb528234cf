package handlers

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"blackhole/internal/agents"
	"blackhole/internal/logging"
	"blackhole/internal/models"
)

// ProcessHandler exposes the agent manager over HTTP
type ProcessHandler struct {
	manager        *agents.Manager
	maxUploadBytes int64
	log            *logrus.Entry
}

// NewProcessHandler creates a new process handler
func NewProcessHandler(manager *agents.Manager, maxUploadBytes int64) *ProcessHandler {
	return &ProcessHandler{
		manager:        manager,
		maxUploadBytes: maxUploadBytes,
		log:            logging.Component("http"),
	}
}

// ProcessResponse wraps an agent result. Result is set on failures too when
// the agent produced one.
type ProcessResponse struct {
	Result    *models.AgentResult `json:"result,omitempty"`
	Error     string              `json:"error,omitempty"`
	ErrorKind string              `json:"error_kind,omitempty"`
}

// Process handles POST /api/process. JSON bodies are {type, payload}
// requests; multipart bodies carry the upload in the "file" field.
func (h *ProcessHandler) Process(c *fiber.Ctx) error {
	var req agents.Request
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		r, status, err := h.multipartRequest(c)
		if err != nil {
			return c.Status(status).JSON(ProcessResponse{Error: err.Error(), ErrorKind: agents.ErrorKindValidation.String()})
		}
		req = r
	} else if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ProcessResponse{
			Error:     fmt.Sprintf("invalid request body: %v", err),
			ErrorKind: agents.ErrorKindValidation.String(),
		})
	}

	result, err := h.manager.Dispatch(c.UserContext(), req)
	if err != nil {
		status := agents.HTTPStatus(err)
		if status >= fiber.StatusInternalServerError {
			h.log.WithError(err).WithField("type", req.Type).Error("dispatch failed")
		}
		return c.Status(status).JSON(ProcessResponse{
			Result:    result,
			Error:     err.Error(),
			ErrorKind: agents.Classify(err).String(),
		})
	}
	return c.JSON(ProcessResponse{Result: result})
}

func (h *ProcessHandler) multipartRequest(c *fiber.Ctx) (agents.Request, int, error) {
	req := agents.Request{Type: c.FormValue("type", string(agents.KindAuto))}

	fh, err := c.FormFile("file")
	if err != nil {
		return req, fiber.StatusBadRequest, errors.New("multipart requests need a file field")
	}
	if h.maxUploadBytes > 0 && fh.Size > h.maxUploadBytes {
		return req, fiber.StatusRequestEntityTooLarge, fmt.Errorf("file is %d bytes, limit is %d", fh.Size, h.maxUploadBytes)
	}
	f, err := fh.Open()
	if err != nil {
		return req, fiber.StatusBadRequest, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return req, fiber.StatusBadRequest, fmt.Errorf("failed to read upload: %w", err)
	}

	req.Payload = agents.Input{
		File: &agents.File{
			Name: fh.Filename,
			Type: fh.Header.Get(fiber.HeaderContentType),
			Data: data,
		},
		Query:  c.FormValue("query"),
		Source: c.FormValue("source"),
		Options: agents.Options{
			Title:     c.FormValue("title"),
			Languages: splitList(c.FormValue("languages")),
		},
	}
	return req, fiber.StatusOK, nil
}

// Stats handles GET /api/stats
func (h *ProcessHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.manager.Statistics(c.UserContext())
	if errors.Is(err, agents.ErrNoStore) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		h.log.WithError(err).Warn("statistics failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to compute statistics"})
	}
	return c.JSON(stats)
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
