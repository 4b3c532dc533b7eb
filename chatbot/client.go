package chatbot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
)

// ChatRequest is the request body for the chat completions API
type ChatRequest struct {
	Model    string        `json:"model,omitempty"`
	Messages []ChatMessage `json:"messages"`
	Stream   bool          `json:"stream,omitempty"`
}

// errorBody is the JSON error body returned by the relay
type errorBody struct {
	Error string `json:"error"`
}

// StreamBody is an open response stream
type StreamBody struct {
	Body io.ReadCloser
	// Charset is the text encoding declared by the response, or "" if none was
	Charset string
}

// StreamOpener opens a response stream for a message history
type StreamOpener interface {
	OpenStream(ctx context.Context, messages []ChatMessage) (*StreamBody, error)
}

// AIClient is a client for an OpenAI-compatible chat completions endpoint
type AIClient struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	httpClient   *http.Client
}

// NewAIClient creates a new AI client. model and apiKey may be empty.
func NewAIClient(endpoint, model, apiKey string) *AIClient {
	return &AIClient{
		endpoint:   endpoint,
		model:      model,
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

// WithSystemPrompt returns a copy of c that starts every OpenStream history with prompt
func (c *AIClient) WithSystemPrompt(prompt string) *AIClient {
	cp := *c
	cp.systemPrompt = prompt
	return &cp
}

// Open posts a chat request and returns the successful response.
// The caller must close the response body.
func (c *AIClient) Open(ctx context.Context, req ChatRequest) (*http.Response, error) {
	if req.Model == "" {
		req.Model = c.model
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, &StreamError{Kind: ErrorKindOpen, Description: "Could not marshal request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &StreamError{Kind: ErrorKindOpen, Description: "Could not create request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if req.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &StreamError{Kind: ErrorKindOpen, Description: "Could not make request", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &StreamError{
			Kind:        ErrorKindOpen,
			Status:      resp.StatusCode,
			Description: fmt.Sprintf("API error (status %d): %s", resp.StatusCode, string(respBody)),
			Err:         statusError(resp.StatusCode, respBody),
		}
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, &StreamError{Kind: ErrorKindOpen, Status: resp.StatusCode, Description: "Empty response", Err: errors.New("No response body")}
	}

	return resp, nil
}

// statusError returns the error carried in body, or a generic one for the status
func statusError(status int, body []byte) error {
	var e errorBody
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return errors.New(e.Error)
	}
	return fmt.Errorf("Request failed with status %d", status)
}

// OpenStream makes a streaming chat request for messages
func (c *AIClient) OpenStream(ctx context.Context, messages []ChatMessage) (*StreamBody, error) {
	if c.systemPrompt != "" {
		messages = append([]ChatMessage{{Role: RoleSystem, Content: c.systemPrompt}}, messages...)
	}
	resp, err := c.Open(ctx, ChatRequest{Messages: messages, Stream: true})
	if err != nil {
		return nil, err
	}
	return &StreamBody{Body: resp.Body, Charset: responseCharset(resp)}, nil
}

func responseCharset(resp *http.Response) string {
	_, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return ""
	}
	return params["charset"]
}
