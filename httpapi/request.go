package httpapi

import "github.com/korylprince/sureassist/chatbot"

//RelayRequest is a chat completions request from a chat client
type RelayRequest struct {
	Messages []chatbot.ChatMessage `json:"messages"`
}
