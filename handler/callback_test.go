package handler

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/config"
	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/model"
	"github.com/ruchikakengal/AI-Powered-Regulatory-Compilance-Checker/service"
)

const callbackSeed = "test-seed"

func newCallbackSetup(t *testing.T) (*CallbackHandler, *service.Store) {
	t.Helper()
	store := newHandlerStore(t)
	extract := service.NewExtractService(&config.ExtractConfig{Seed: callbackSeed})
	contracts := NewContractHandler(store, nil, nil, service.NewNormalizer(), nil, nil, &config.ExtractConfig{})
	return NewCallbackHandler(extract, store, contracts), store
}

func saveExtractingContract(t *testing.T, store *service.Store, id string) {
	t.Helper()
	err := store.SaveContract(context.Background(), &model.Contract{
		ID:            id,
		Tenant:        "tenant1",
		Name:          "Uploaded PDF",
		Filename:      "contract.pdf",
		Jurisdictions: []string{"GDPR"},
		Version:       1,
		Status:        model.ContractDraft,
		IngestState:   model.IngestExtracting,
	})
	if err != nil {
		t.Fatalf("Failed to save contract: %v", err)
	}
}

// callbackChecksum mirrors the extractor's signature: SHA256(uid + seed + content)
func callbackChecksum(dataID, content string) string {
	hash := sha256.Sum256([]byte(dataID + callbackSeed + content))
	return hex.EncodeToString(hash[:])
}

func postCallback(handler *CallbackHandler, checksum, content string) *httptest.ResponseRecorder {
	router := gin.New()
	router.POST("/callback/extract", handler.HandleExtract)

	body, _ := json.Marshal(map[string]string{
		"checksum": checksum,
		"content":  content,
	})
	req := httptest.NewRequest("POST", "/callback/extract", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func markdownZipServer(t *testing.T, markdown string) *httptest.Server {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	entry, err := zw.Create("full.md")
	if err != nil {
		t.Fatalf("Failed to build ZIP: %v", err)
	}
	entry.Write([]byte(markdown))
	zw.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(buf.Bytes())
	}))
	t.Cleanup(server.Close)
	return server
}

func TestCallbackHandlerDone(t *testing.T) {
	handler, store := newCallbackSetup(t)
	saveExtractingContract(t, store, "cb-done")
	server := markdownZipServer(t, sampleContractText)

	content, _ := json.Marshal(map[string]string{
		"task_id":      "task-1",
		"data_id":      "cb-done",
		"state":        "done",
		"full_zip_url": server.URL + "/result.zip",
	})
	w := postCallback(handler, callbackChecksum("cb-done", string(content)), string(content))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	contract, _ := store.GetContract(context.Background(), "cb-done")
	if contract.IngestState != model.IngestReady {
		t.Errorf("Expected ready ingest state, got %s", contract.IngestState)
	}
	if len(contract.Clauses) != 3 {
		t.Errorf("Expected 3 clauses from extracted markdown, got %d", len(contract.Clauses))
	}
}

func TestCallbackHandlerFailed(t *testing.T) {
	handler, store := newCallbackSetup(t)
	saveExtractingContract(t, store, "cb-failed")

	content, _ := json.Marshal(map[string]string{
		"task_id": "task-1",
		"data_id": "cb-failed",
		"state":   "failed",
		"err_msg": "extraction failed",
	})
	w := postCallback(handler, callbackChecksum("cb-failed", string(content)), string(content))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	contract, _ := store.GetContract(context.Background(), "cb-failed")
	if contract.IngestState != model.IngestFailed {
		t.Errorf("Expected failed ingest state, got %s", contract.IngestState)
	}
	if contract.ErrorMsg != "extraction failed" {
		t.Errorf("Expected error message recorded, got %q", contract.ErrorMsg)
	}
}

func TestCallbackHandlerBadChecksum(t *testing.T) {
	handler, store := newCallbackSetup(t)
	saveExtractingContract(t, store, "cb-forged")

	content, _ := json.Marshal(map[string]string{
		"task_id": "task-1",
		"data_id": "cb-forged",
		"state":   "failed",
		"err_msg": "forged",
	})
	w := postCallback(handler, "not-the-right-checksum", string(content))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected status 401, got %d", w.Code)
	}

	// A rejected callback must not touch the contract
	contract, _ := store.GetContract(context.Background(), "cb-forged")
	if contract.IngestState != model.IngestExtracting {
		t.Errorf("Expected ingest state untouched, got %s", contract.IngestState)
	}
}

func TestCallbackHandlerValidation(t *testing.T) {
	handler, store := newCallbackSetup(t)
	saveExtractingContract(t, store, "cb-valid")

	tests := []struct {
		name           string
		checksum       string
		content        string
		expectedStatus int
	}{
		{
			name:           "content is not json",
			checksum:       callbackChecksum("cb-valid", "not json"),
			content:        "not json",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unknown contract",
			checksum:       callbackChecksum("no-such-contract", `{"task_id":"t","data_id":"no-such-contract","state":"done"}`),
			content:        `{"task_id":"t","data_id":"no-such-contract","state":"done"}`,
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "progress state is acknowledged",
			checksum:       callbackChecksum("cb-valid", `{"task_id":"t","data_id":"cb-valid","state":"running"}`),
			content:        `{"task_id":"t","data_id":"cb-valid","state":"running"}`,
			expectedStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postCallback(handler, tt.checksum, tt.content)
			if w.Code != tt.expectedStatus {
				t.Errorf("Expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
		})
	}
}

func TestCallbackHandlerInvalidRequestBody(t *testing.T) {
	handler, _ := newCallbackSetup(t)

	router := gin.New()
	router.POST("/callback/extract", handler.HandleExtract)

	req := httptest.NewRequest("POST", "/callback/extract", bytes.NewBufferString("invalid json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}
