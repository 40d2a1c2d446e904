package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/enhancely/api/internal/client"
	"github.com/enhancely/api/internal/handler"
	"github.com/enhancely/api/internal/ledger"
	"github.com/enhancely/api/internal/queue"
	"github.com/enhancely/api/internal/server"
	"github.com/enhancely/api/internal/service"
	"github.com/enhancely/api/internal/worker"
	ws "github.com/enhancely/api/internal/websocket"
)

const publicBaseURL = "https://images.test"

// pngHeader is enough of a PNG for content sniffing
var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

// testApp holds all components needed for testing
type testApp struct {
	app    *fiber.App
	store  *client.MemoryStore
	ledger *ledger.Memory
	queue  *queue.Memory
}

type setupOptions struct {
	queue         service.WorkQueue // overrides the memory queue for publishing
	maxUploadSize int64
	worker        bool
}

// setupApp creates the same Fiber app as main.go on in-memory backends.
func setupApp(t *testing.T) *testApp {
	return setupAppWith(t, setupOptions{})
}

func setupAppWith(t *testing.T, opts setupOptions) *testApp {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	log := zerolog.Nop()
	ta := &testApp{
		store:  client.NewMemoryStore(publicBaseURL),
		ledger: ledger.NewMemory(),
		queue:  queue.NewMemory(256),
	}

	var workQueue service.WorkQueue = ta.queue
	if opts.queue != nil {
		workQueue = opts.queue
	}

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	if opts.worker {
		w := worker.NewEnhanceWorker(ta.store, ta.ledger, worker.PassthroughEnhancer{}, hub, log)
		go func() { _ = ta.queue.Run(ctx, w.Process) }()
	}

	svc := service.NewEnhancementService(ta.store, ta.ledger, workQueue, service.Options{}, log)

	ta.app = server.New(server.Options{
		Enhancement: handler.NewEnhancementHandler(svc, hub, validator.New(), opts.maxUploadSize),
		Health: handler.NewHealthHandler(handler.Backends{
			Storage: "memory",
			Ledger:  "memory",
			Queue:   "memory",
			Worker:  opts.worker,
		}),
		Log: log,
	})

	return ta
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequest(method, path, body)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return app.Test(req, -1)
}

// doUpload posts data as the multipart "file" field.
func doUpload(app *fiber.App, filename, contentType string, data []byte) (*http.Response, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	return doRequest(app, http.MethodPost, "/upload/", &buf, map[string]string{
		"Content-Type": mw.FormDataContentType(),
	})
}

// uploadPhoto submits a valid image and returns its enhancement id.
func uploadPhoto(t *testing.T, app *fiber.App) string {
	t.Helper()
	resp, err := doUpload(app, "photo.png", "image/png", []byte("0123456789"))
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d: %s", resp.StatusCode, readBody(t, resp))
	}
	result := parseJSON(t, resp)
	id, _ := result["enhancementId"].(string)
	if id == "" {
		t.Fatal("expected 'enhancementId' in response")
	}
	return id
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// errorCode extracts error.code from an error response.
func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	body := parseJSON(t, resp)
	errObj, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected 'error' object in response, got %v", body)
	}
	code, _ := errObj["code"].(string)
	return code
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// failingQueue rejects every publish.
type failingQueue struct{}

func (failingQueue) Publish(ctx context.Context, body []byte, groupKey, dedupToken string) error {
	return fmt.Errorf("queue unavailable")
}
