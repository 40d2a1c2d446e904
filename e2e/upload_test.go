package e2e

import (
	"bytes"
	"context"
	"net/http"
	"regexp"
	"strings"
	"testing"

	"github.com/enhancely/api/internal/queue"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func TestUpload_Success(t *testing.T) {
	ta := setupApp(t)

	resp, err := doUpload(ta.app, "photo.png", "image/png", []byte("0123456789"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusAccepted)

	result := parseJSON(t, resp)
	id, _ := result["enhancementId"].(string)
	if !uuidPattern.MatchString(id) {
		t.Errorf("expected UUID enhancementId, got %q", id)
	}
	if result["message"] != "File uploaded and job created" {
		t.Errorf("unexpected message %v", result["message"])
	}

	// stored under uploads/{id}.png
	data, _, err := ta.store.Get(context.Background(), "uploads/"+id+".png")
	if err != nil {
		t.Fatalf("expected uploaded blob: %v", err)
	}
	if string(data) != "0123456789" {
		t.Errorf("unexpected blob contents %q", data)
	}

	// one structured notification
	published := ta.queue.Published()
	if len(published) != 1 {
		t.Fatalf("expected 1 published message, got %d", len(published))
	}
	msg, err := queue.DecodeMessage(published[0].Body)
	if err != nil {
		t.Fatalf("message is not valid JSON: %v", err)
	}
	if msg.JobID != id || msg.SourceLocator != publicBaseURL+"/uploads/"+id+".png" {
		t.Errorf("unexpected message %+v", msg)
	}
	if published[0].GroupKey != "default-group" {
		t.Errorf("expected group key default-group, got %s", published[0].GroupKey)
	}
}

func TestUpload_MissingFile(t *testing.T) {
	ta := setupApp(t)

	resp, err := doRequest(ta.app, http.MethodPost, "/upload/", strings.NewReader(""), map[string]string{
		"Content-Type": "multipart/form-data; boundary=xyz",
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)
}

func TestUpload_InvalidType(t *testing.T) {
	ta := setupApp(t)

	resp, err := doUpload(ta.app, "notes.txt", "text/plain", []byte("just some text"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)
	if code := errorCode(t, resp); code != "VALIDATION_ERROR" {
		t.Errorf("expected VALIDATION_ERROR, got %s", code)
	}
	if ta.ledger.Len() != 0 {
		t.Error("expected no job to be recorded")
	}
}

func TestUpload_SniffsUndeclaredType(t *testing.T) {
	ta := setupApp(t)

	resp, err := doUpload(ta.app, "scan", "application/octet-stream", pngHeader)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusAccepted)
	id, _ := parseJSON(t, resp)["enhancementId"].(string)

	job, err := ta.ledger.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("expected job: %v", err)
	}
	if job.ContentType != "image/png" {
		t.Errorf("expected sniffed image/png, got %s", job.ContentType)
	}
	if !strings.HasSuffix(job.SourceLocator, "/uploads/"+id+".png") {
		t.Errorf("expected png key, got %s", job.SourceLocator)
	}
}

func TestUpload_TooLarge(t *testing.T) {
	ta := setupAppWith(t, setupOptions{maxUploadSize: 16})

	resp, err := doUpload(ta.app, "big.png", "image/png", bytes.Repeat([]byte("x"), 64))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusBadRequest)
}

func TestUpload_QueuePublishFailure(t *testing.T) {
	ta := setupAppWith(t, setupOptions{queue: failingQueue{}})

	resp, err := doUpload(ta.app, "photo.png", "image/png", []byte("0123456789"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	assertStatus(t, resp, http.StatusServiceUnavailable)

	body := parseJSON(t, resp)
	errObj := body["error"].(map[string]interface{})
	if errObj["code"] != "QUEUE_PUBLISH_FAILED" {
		t.Errorf("expected QUEUE_PUBLISH_FAILED, got %v", errObj["code"])
	}
	details, _ := errObj["details"].(map[string]interface{})
	id, _ := details["enhancementId"].(string)
	if id == "" {
		t.Fatal("expected enhancementId in error details")
	}

	// the job is visible and pending
	resp, err = doRequest(ta.app, http.MethodGet, "/status/"+id, nil, nil)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	assertStatus(t, resp, http.StatusOK)
	if status := parseJSON(t, resp)["status"]; status != "pending" {
		t.Errorf("expected status pending, got %v", status)
	}
}
