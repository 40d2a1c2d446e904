package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/enhancely/api/internal/model"
	"github.com/enhancely/api/internal/service"
	ws "github.com/enhancely/api/internal/websocket"
	"github.com/enhancely/api/pkg/response"
)

const (
	defaultMaxUploadSize = 20 * 1024 * 1024 // 20MB
	retryAfterSeconds    = 5
	sniffLen             = 512
)

type EnhancementHandler struct {
	service       *service.EnhancementService
	hub           *ws.Hub
	validator     *validator.Validate
	maxUploadSize int64
}

func NewEnhancementHandler(svc *service.EnhancementService, hub *ws.Hub, v *validator.Validate, maxUploadSize int64) *EnhancementHandler {
	if maxUploadSize <= 0 {
		maxUploadSize = defaultMaxUploadSize
	}
	return &EnhancementHandler{
		service:       svc,
		hub:           hub,
		validator:     v,
		maxUploadSize: maxUploadSize,
	}
}

// Upload handles POST /upload/
// @Summary      Upload image for enhancement
// @Description  Store an image and queue an asynchronous enhancement job
// @Tags         Enhancement
// @Accept       multipart/form-data
// @Produce      json
// @Param        file formData file true "Image file (JPEG, PNG, WebP, GIF, BMP, TIFF)"
// @Success      202 {object} model.SubmitResponse
// @Failure      400 {object} response.ErrorResponse
// @Failure      429 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Failure      503 {object} response.ErrorResponse "Job recorded but not queued; details carry enhancementId"
// @Failure      504 {object} response.ErrorResponse
// @Router       /upload/ [post]
func (h *EnhancementHandler) Upload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return response.ValidationError(c, "File is required", nil)
	}

	if fileHeader.Size > h.maxUploadSize {
		return response.ValidationError(c, "File size exceeds limit", map[string]interface{}{
			"maxSize":  h.maxUploadSize,
			"fileSize": fileHeader.Size,
		})
	}

	f, err := fileHeader.Open()
	if err != nil {
		return response.ServiceError(c, "Failed to open file")
	}
	defer f.Close()

	contentType, err := detectContentType(fileHeader, f)
	if err != nil {
		return response.ServiceError(c, "Failed to read file")
	}
	if _, ok := model.ImageContentTypes[contentType]; !ok {
		return response.ValidationError(c, "Invalid file type. Supported: JPEG, PNG, WebP, GIF, BMP, TIFF", map[string]interface{}{
			"contentType": contentType,
		})
	}

	req := model.SubmitRequest{
		Body:        f,
		Size:        fileHeader.Size,
		ContentType: contentType,
		Filename:    fileHeader.Filename,
	}
	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.Submit(c.UserContext(), &req)
	if err != nil {
		jobID := ""
		if result != nil {
			jobID = result.JobID
		}
		return writeServiceError(c, err, jobID)
	}

	return response.Accepted(c, result)
}

// Status handles GET /status/:enhancementId
// @Summary      Get enhancement job status
// @Description  Get the ledger record of an enhancement job. Poll with backoff; Retry-After is set while the job is running.
// @Tags         Enhancement
// @Produce      json
// @Param        enhancementId path string true "Enhancement ID"
// @Success      200 {object} model.Job
// @Failure      404 {object} response.ErrorResponse
// @Failure      502 {object} response.ErrorResponse
// @Failure      504 {object} response.ErrorResponse
// @Router       /status/{enhancementId} [get]
func (h *EnhancementHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("enhancementId")
	if !h.validJobID(jobID) {
		return response.NotFound(c, "Job not found")
	}

	job, err := h.service.GetStatus(c.UserContext(), jobID)
	if err != nil {
		return writeServiceError(c, err, jobID)
	}

	if !job.Status.IsTerminal() {
		setRetryAfter(c)
	}
	return response.OK(c, job)
}

// Result handles GET /result/:enhancementId
// @Summary      Get enhancement result
// @Description  Get the enhanced image URL of a completed job, or a not-ready view carrying the current status
// @Tags         Enhancement
// @Produce      json
// @Param        enhancementId path string true "Enhancement ID"
// @Success      200 {object} model.ResultView
// @Failure      404 {object} response.ErrorResponse
// @Failure      500 {object} response.ErrorResponse "Completed job without result locator"
// @Failure      502 {object} response.ErrorResponse
// @Failure      504 {object} response.ErrorResponse
// @Router       /result/{enhancementId} [get]
func (h *EnhancementHandler) Result(c *fiber.Ctx) error {
	jobID := c.Params("enhancementId")
	if !h.validJobID(jobID) {
		return response.NotFound(c, "Job not found")
	}

	result, err := h.service.GetResult(c.UserContext(), jobID)
	if err != nil {
		return writeServiceError(c, err, jobID)
	}

	if !result.Ready && !result.Status.IsTerminal() {
		setRetryAfter(c)
	}
	return response.OK(c, result)
}

// Redrive handles POST /redrive/:enhancementId
// @Summary      Redrive a pending job
// @Description  Republish the queue notification of a job whose original publish failed
// @Tags         Enhancement
// @Produce      json
// @Param        enhancementId path string true "Enhancement ID"
// @Success      202 {object} model.RedriveResponse
// @Failure      404 {object} response.ErrorResponse
// @Failure      409 {object} response.ErrorResponse
// @Failure      503 {object} response.ErrorResponse
// @Router       /redrive/{enhancementId} [post]
func (h *EnhancementHandler) Redrive(c *fiber.Ctx) error {
	jobID := c.Params("enhancementId")
	if !h.validJobID(jobID) {
		return response.NotFound(c, "Job not found")
	}

	result, err := h.service.Redrive(c.UserContext(), jobID)
	if err != nil {
		return writeServiceError(c, err, jobID)
	}

	return response.Accepted(c, result)
}

// Watch streams status updates of one job over a WebSocket.
// The current state is sent first; finished jobs are closed right after it.
func (h *EnhancementHandler) Watch(c *websocket.Conn) {
	jobID := c.Params("enhancementId")
	ctx := context.Background()

	initial, terminal := h.snapshot(ctx, jobID)
	if terminal {
		_ = c.WriteMessage(websocket.TextMessage, initial)
		_ = c.WriteMessage(websocket.CloseMessage, []byte{})
		return
	}

	h.hub.HandleConnection(c, jobID, initial)
}

// snapshot renders the current job state as a WebSocket message
func (h *EnhancementHandler) snapshot(ctx context.Context, jobID string) ([]byte, bool) {
	var (
		msg      interface{}
		terminal bool
	)

	var (
		job *model.Job
		err = service.ErrJobNotFound
	)
	if h.validJobID(jobID) {
		job, err = h.service.GetStatus(ctx, jobID)
	}

	switch {
	case errors.Is(err, service.ErrJobNotFound):
		msg = model.WSErrorMessage{
			Type:  model.WSMessageTypeError,
			JobID: jobID,
			Error: model.WSError{Code: response.CodeNotFound, Message: "Job not found"},
		}
		terminal = true
	case err != nil:
		msg = model.WSErrorMessage{
			Type:  model.WSMessageTypeError,
			JobID: jobID,
			Error: model.WSError{Code: response.CodeServiceError, Message: "Failed to load job"},
		}
		terminal = true
	case job.Status == model.JobStatusCompleted:
		result, err := h.service.GetResult(ctx, jobID)
		if err != nil {
			msg = model.WSErrorMessage{
				Type:  model.WSMessageTypeError,
				JobID: jobID,
				Error: model.WSError{Code: response.CodeIntegrityError, Message: "Result unavailable"},
			}
		} else {
			msg = model.WSCompleteMessage{Type: model.WSMessageTypeComplete, JobID: jobID, ImageURL: result.ImageURL}
		}
		terminal = true
	default:
		msg = model.WSStatusMessage{Type: model.WSMessageTypeStatus, JobID: jobID, Status: job.Status}
		terminal = job.Status.IsTerminal()
	}

	data, _ := json.Marshal(msg)
	return data, terminal
}

func (h *EnhancementHandler) validJobID(jobID string) bool {
	return h.validator.Var(jobID, "required,uuid") == nil
}

// writeServiceError maps service error kinds to HTTP responses
func writeServiceError(c *fiber.Ctx, err error, jobID string) error {
	switch {
	case errors.Is(err, service.ErrJobNotFound):
		return response.NotFound(c, "Job not found")
	case errors.Is(err, service.ErrNotPending):
		return response.Conflict(c, "Job is not pending", map[string]interface{}{
			"enhancementId": jobID,
		})
	case errors.Is(err, service.ErrQueuePublish):
		return response.QueuePublishFailed(c, "Job created but could not be queued, retry with redrive", map[string]interface{}{
			"enhancementId": jobID,
		})
	case errors.Is(err, service.ErrResultLocatorMissing):
		return response.IntegrityError(c, "Completed job has no result")
	case errors.Is(err, service.ErrTimeout):
		return response.Timeout(c, "Backing service timed out, retry later")
	case errors.Is(err, service.ErrStoreWrite), errors.Is(err, service.ErrStoreResolve):
		return response.StorageError(c, "Object storage unavailable")
	case errors.Is(err, service.ErrLedgerWrite), errors.Is(err, service.ErrLedgerRead):
		return response.LedgerError(c, "Job ledger unavailable")
	default:
		return response.ServiceError(c, "Internal Server Error")
	}
}

func setRetryAfter(c *fiber.Ctx) {
	c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfterSeconds))
}

// detectContentType trusts the declared image type and sniffs the content
// otherwise. f is rewound before returning.
func detectContentType(fh *multipart.FileHeader, f multipart.File) (string, error) {
	declared := fh.Header.Get(fiber.HeaderContentType)
	if mediaType, _, err := mime.ParseMediaType(declared); err == nil {
		mediaType = strings.ToLower(mediaType)
		if _, ok := model.ImageContentTypes[mediaType]; ok {
			return mediaType, nil
		}
	}

	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return http.DetectContentType(buf[:n]), nil
}
