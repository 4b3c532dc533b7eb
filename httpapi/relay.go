package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/korylprince/sureassist/chatbot"
	"go.uber.org/zap"
)

//relay messages shown to chat users
const (
	rateLimitedMessage = "Rate limits exceeded. Please try again in a moment."
	noCreditsMessage   = "Usage credits exhausted. Please add more credits to continue."
)

const relayChunkSize = 4096

//POST /chat/completions
func handleRelay(upstream *chatbot.AIClient, log *zap.Logger) returnHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlerResponse {
		req := new(RelayRequest)
		if err := json.NewDecoder(r.Body).Decode(req); err != nil {
			return handleError(http.StatusBadRequest, fmt.Errorf("Could not decode JSON: %v", err))
		}
		if len(req.Messages) == 0 {
			return handleErrorMessage(http.StatusBadRequest, "messages must not be empty", errors.New("empty messages"))
		}

		log.Debug("relaying chat request", zap.Int("messages", len(req.Messages)))

		messages := make([]chatbot.ChatMessage, 0, len(req.Messages)+1)
		messages = append(messages, chatbot.ChatMessage{Role: chatbot.RoleSystem, Content: chatbot.SystemPrompt()})
		messages = append(messages, req.Messages...)

		resp, err := upstream.Open(r.Context(), chatbot.ChatRequest{Messages: messages, Stream: true})
		if err != nil {
			return relayError(err)
		}
		defer resp.Body.Close()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)

		n, err := copyFlush(w, resp.Body)
		if err != nil {
			log.Warn("relay stream interrupted", zap.Int64("bytes", n), zap.Error(err))
		}

		return &handlerResponse{Code: http.StatusOK, Err: err, Written: true}
	}
}

//relayError maps an upstream failure to the response sent to the chat client
func relayError(err error) *handlerResponse {
	var se *chatbot.StreamError
	if !errors.As(err, &se) || se.Status == 0 {
		return handleErrorMessage(http.StatusInternalServerError, err.Error(), err)
	}

	switch se.Status {
	case http.StatusTooManyRequests:
		return handleErrorMessage(http.StatusTooManyRequests, rateLimitedMessage, err)
	case http.StatusPaymentRequired:
		return handleErrorMessage(http.StatusPaymentRequired, noCreditsMessage, err)
	}
	return handleErrorMessage(http.StatusInternalServerError, fmt.Sprintf("AI Gateway error: %d", se.Status), err)
}

//copyFlush copies src to w, flushing after every read so events reach the client as they arrive
func copyFlush(w http.ResponseWriter, src io.Reader) (int64, error) {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, relayChunkSize)

	var written int64
	for {
		n, err := src.Read(buf)
		if n > 0 {
			m, wErr := w.Write(buf[:n])
			written += int64(m)
			if wErr != nil {
				return written, fmt.Errorf("Could not write stream: %w", wErr)
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err == io.EOF {
			return written, nil
		}
		if err != nil {
			return written, fmt.Errorf("Could not read stream: %w", err)
		}
	}
}

//GET /choices/
func handleReadChoices(d *chatbot.Disambiguator) returnHandler {
	return func(w http.ResponseWriter, r *http.Request) *handlerResponse {
		if d == nil {
			return &handlerResponse{Code: http.StatusOK, Body: &ReadChoicesResponse{Choices: []chatbot.Choice{}}}
		}
		return &handlerResponse{Code: http.StatusOK, Body: &ReadChoicesResponse{Prompt: d.Prompt, Choices: d.Choices}}
	}
}
