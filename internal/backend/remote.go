package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"flowsync/internal/domain"
)

// RemoteBackend talks to the coordination server's workflow routes.
type RemoteBackend struct {
	baseURL    string
	httpClient *http.Client
}

func NewRemoteBackend(serverURL string, httpClient *http.Client) *RemoteBackend {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &RemoteBackend{
		baseURL:    strings.TrimRight(serverURL, "/") + "/api/v1",
		httpClient: httpClient,
	}
}

func (b *RemoteBackend) List() ([]*domain.Workflow, error) {
	var workflows []*domain.Workflow
	if err := b.do(http.MethodGet, "/workflows", nil, &workflows); err != nil {
		return nil, err
	}
	return workflows, nil
}

func (b *RemoteBackend) Get(id string) (*domain.Workflow, error) {
	var workflow domain.Workflow
	if err := b.do(http.MethodGet, "/workflows/"+url.PathEscape(id), nil, &workflow); err != nil {
		return nil, err
	}
	return &workflow, nil
}

func (b *RemoteBackend) Create(req *domain.CreateWorkflowRequest) (*domain.Workflow, error) {
	var workflow domain.Workflow
	if err := b.do(http.MethodPost, "/workflows", req, &workflow); err != nil {
		return nil, err
	}
	return &workflow, nil
}

func (b *RemoteBackend) Update(id string, req *domain.UpdateWorkflowRequest) (*domain.Workflow, error) {
	var workflow domain.Workflow
	if err := b.do(http.MethodPut, "/workflows/"+url.PathEscape(id), req, &workflow); err != nil {
		return nil, err
	}
	return &workflow, nil
}

func (b *RemoteBackend) Delete(id string) error {
	return b.do(http.MethodDelete, "/workflows/"+url.PathEscape(id), nil, nil)
}

func (b *RemoteBackend) Execute(id string, req *domain.ExecuteWorkflowRequest) (*domain.ExecutionResult, error) {
	var result domain.ExecutionResult
	if err := b.do(http.MethodPost, "/workflows/"+url.PathEscape(id)+"/execute", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (b *RemoteBackend) do(method, path string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, b.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var env struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data,omitempty"`
		Error   string          `json:"error,omitempty"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("malformed server response: %w", err)
	}
	if !env.Success {
		if env.Error != "" {
			return fmt.Errorf("server error: %s", env.Error)
		}
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	if out != nil && env.Data != nil {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}
