package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"docflow/pkg/api"
)

// FlowClient handles API calls to the docflow controller.
type FlowClient struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewFlowClient creates a new client with the given base URL and token.
func NewFlowClient(baseURL, token string) *FlowClient {
	return &FlowClient{
		BaseURL: baseURL,
		Token:   token,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// do runs one request and decodes the JSON response into out (when out is
// non-nil). Any status outside 2xx becomes an APIError.
func (c *FlowClient) do(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(bodyBytes)
	}

	httpReq, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Add("Authorization", fmt.Sprintf("Bearer %s", c.Token))
	httpReq.Header.Add("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}

// CreateOrganization sends POST /organizations.
func (c *FlowClient) CreateOrganization(req api.CreateOrganizationRequest) (*api.CreateOrganizationResponse, error) {
	var result api.CreateOrganizationResponse
	if err := c.do(http.MethodPost, "/organizations", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CreateWorkflow sends POST /workflows.
func (c *FlowClient) CreateWorkflow(req api.CreateWorkflowRequest) (*api.CreateWorkflowResponse, error) {
	var result api.CreateWorkflowResponse
	if err := c.do(http.MethodPost, "/workflows", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ExecuteWorkflow sends POST /workflows/{id}/execute.
func (c *FlowClient) ExecuteWorkflow(workflowID string, req api.ExecuteWorkflowRequest) (*api.ExecuteWorkflowResponse, error) {
	var result api.ExecuteWorkflowResponse
	if err := c.do(http.MethodPost, fmt.Sprintf("/workflows/%s/execute", workflowID), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetExecution sends GET /executions/{id}.
func (c *FlowClient) GetExecution(executionID string) (*api.ExecutionStatusResponse, error) {
	var result api.ExecutionStatusResponse
	if err := c.do(http.MethodGet, fmt.Sprintf("/executions/%s", executionID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListExecutionFiles sends GET /executions/{id}/files.
func (c *FlowClient) ListExecutionFiles(executionID string) ([]api.FileExecutionResponse, error) {
	var result api.ListFileExecutionsResponse
	if err := c.do(http.MethodGet, fmt.Sprintf("/executions/%s/files", executionID), nil, &result); err != nil {
		return nil, err
	}
	return result.Files, nil
}

// StopExecution sends POST /executions/{id}/stop.
func (c *FlowClient) StopExecution(executionID string) (*api.StopExecutionResponse, error) {
	var result api.StopExecutionResponse
	if err := c.do(http.MethodPost, fmt.Sprintf("/executions/%s/stop", executionID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListFileHistory sends GET /workflows/{id}/history.
func (c *FlowClient) ListFileHistory(workflowID string) ([]api.FileHistoryEntry, error) {
	var result api.ListFileHistoryResponse
	if err := c.do(http.MethodGet, fmt.Sprintf("/workflows/%s/history", workflowID), nil, &result); err != nil {
		return nil, err
	}
	return result.Entries, nil
}

// ClearFileHistory sends DELETE /workflows/{id}/history.
func (c *FlowClient) ClearFileHistory(workflowID string) (*api.ClearFileHistoryResponse, error) {
	var result api.ClearFileHistoryResponse
	if err := c.do(http.MethodDelete, fmt.Sprintf("/workflows/%s/history", workflowID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
