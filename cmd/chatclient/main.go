package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/korylprince/sureassist/chatbot"
)

//printer prints the assistant's answer as snapshots grow it
type printer struct {
	id      string
	printed int
}

func (p *printer) update(snap *chatbot.Snapshot) {
	if snap == nil || len(snap.Messages) == 0 {
		return
	}
	last := snap.Messages[len(snap.Messages)-1]
	if last.Role != chatbot.RoleAssistant {
		return
	}
	if last.ID != p.id {
		p.id = last.ID
		p.printed = 0
	}
	if len(last.Content) > p.printed {
		fmt.Print(last.Content[p.printed:])
		p.printed = len(last.Content)
	}
}

func main() {
	server := flag.String("server", "http://localhost:8080", "Server URL (http/https)")
	key := flag.String("key", "", "Access key (optional)")
	name := flag.String("name", "", "Display name sent as context (optional)")
	conversationID := flag.String("conversation", "", "Conversation ID to continue (optional)")
	flag.Parse()

	// Convert HTTP URL to WebSocket URL
	wsURL := strings.Replace(*server, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)
	wsURL += "/api/1.0/chat"

	query := url.Values{}
	if *conversationID != "" {
		query.Set("conversation_id", *conversationID)
	}
	if *name != "" {
		query.Set("display_name", *name)
	}
	if len(query) > 0 {
		wsURL += "?" + query.Encode()
	}

	header := http.Header{}
	if *key != "" {
		header.Set("Authorization", "Bearer "+*key)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		fmt.Printf("WebSocket connection failed: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	// initial snapshot
	var hello chatbot.ServerMessage
	if err := conn.ReadJSON(&hello); err != nil {
		fmt.Printf("Error reading response: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Connected (Conversation ID: %s). Type /clear to start over, exit to quit.\n", hello.ConversationID)

	reader := bufio.NewReader(os.Stdin)
	p := new(printer)
	if hello.Snapshot != nil && len(hello.Snapshot.Messages) > 0 {
		last := hello.Snapshot.Messages[len(hello.Snapshot.Messages)-1]
		p.id, p.printed = last.ID, len(last.Content)
	}

	for {
		fmt.Print("\nYou: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				fmt.Println("\nGoodbye!")
				return
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if strings.ToLower(input) == "exit" || strings.ToLower(input) == "quit" {
			fmt.Println("Goodbye!")
			return
		}

		msg := chatbot.ClientMessage{Type: chatbot.ClientTypeSend, Message: input}
		if input == "/clear" {
			msg = chatbot.ClientMessage{Type: chatbot.ClientTypeClear}
		}

		for {
			if err := conn.WriteJSON(msg); err != nil {
				fmt.Printf("Failed to send message: %v\n", err)
				return
			}

			reply, ok := readTurn(conn, p)
			if !ok {
				return
			}
			if reply.Type != chatbot.MessageTypeClarify {
				break
			}

			choice, ok := promptChoice(reader, reply.Snapshot)
			if !ok {
				break
			}
			msg = chatbot.ClientMessage{Type: chatbot.ClientTypeSelect, System: choice}
		}
	}
}

//readTurn prints frames until the turn ends and returns the final frame
func readTurn(conn *websocket.Conn, p *printer) (chatbot.ServerMessage, bool) {
	started := false
	for {
		var msg chatbot.ServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return msg, false
			}
			fmt.Printf("\nError reading response: %v\n", err)
			return msg, false
		}

		switch msg.Type {
		case chatbot.MessageTypeSnapshot:
			if !started && msg.Snapshot != nil && msg.Snapshot.Loading {
				fmt.Print("Assistant: ")
				started = true
			}
			p.update(msg.Snapshot)
		case chatbot.MessageTypeDone:
			p.update(msg.Snapshot)
			fmt.Println()
			return msg, true
		case chatbot.MessageTypeClarify:
			return msg, true
		case chatbot.MessageTypeCleared:
			p.id, p.printed = "", 0
			fmt.Println("(Conversation cleared)")
			return msg, true
		case chatbot.MessageTypeError:
			fmt.Printf("\nError: %s\n", msg.Error)
			return msg, true
		}
	}
}

//promptChoice asks which system the question is about and returns the chosen id
func promptChoice(reader *bufio.Reader, snap *chatbot.Snapshot) (string, bool) {
	if snap == nil || len(snap.Choices) == 0 {
		return "", false
	}

	fmt.Printf("Assistant: %s\n", snap.Prompt)
	for i, c := range snap.Choices {
		fmt.Printf("  %d) %s - %s\n", i+1, c.Name, c.Description)
	}

	for {
		fmt.Print("Choice: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			return "", false
		}
		n, err := strconv.Atoi(strings.TrimSpace(input))
		if err != nil || n < 1 || n > len(snap.Choices) {
			fmt.Printf("Enter a number from 1 to %d\n", len(snap.Choices))
			continue
		}
		return snap.Choices[n-1].ID, true
	}
}
