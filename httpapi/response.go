package httpapi

import "github.com/korylprince/sureassist/chatbot"

//ReadChoicesResponse contains the clarification prompt and the systems it offers
type ReadChoicesResponse struct {
	Prompt  string           `json:"prompt"`
	Choices []chatbot.Choice `json:"choices"`
}
