// Huddle CLI - Command line client for the Huddle chat relay
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/eldtechnologies/huddle/clients/go/huddle"
)

const defaultAvatar = "🙂"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("HUDDLE_URL")
	client := huddle.NewClient(baseURL)
	cmd := os.Args[1]

	switch cmd {
	case "health":
		resp, err := client.Health()
		exitOnError(err)
		printJSON(resp)

	case "stats":
		resp, err := client.Stats()
		exitOnError(err)
		printJSON(resp)

	case "create":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: huddle create <username> [passcode]")
			os.Exit(1)
		}
		passcode := ""
		if len(os.Args) > 3 {
			passcode = os.Args[3]
		}
		resp, err := client.CreateRoom(os.Args[2], defaultAvatar, passcode)
		exitOnError(err)
		fmt.Printf("Room created: %s\n", resp.RoomID)

	case "verify":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "Usage: huddle verify <room-id> [passcode]")
			os.Exit(1)
		}
		passcode := ""
		if len(os.Args) > 3 {
			passcode = os.Args[3]
		}
		exists, err := client.VerifyRoom(os.Args[2], passcode)
		exitOnError(err)
		if exists {
			fmt.Println("Room exists")
		} else {
			fmt.Println("Room not found")
			os.Exit(1)
		}

	case "chat":
		if len(os.Args) < 4 {
			fmt.Fprintln(os.Stderr, "Usage: huddle chat <room-id> <username>")
			os.Exit(1)
		}
		exitOnError(chat(client, os.Args[2], os.Args[3]))

	default:
		usage()
		os.Exit(1)
	}
}

// chat joins a room and relays between stdin and the socket until EOF.
func chat(client *huddle.Client, roomID, username string) error {
	session, err := client.Connect(context.Background())
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.Join(roomID, username, defaultAvatar); err != nil {
		return err
	}

	go func() {
		for {
			ev, err := session.Next()
			if err != nil {
				fmt.Fprintf(os.Stderr, "connection closed: %v\n", err)
				os.Exit(1)
			}
			printEvent(ev)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := session.Send(line); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func printEvent(ev *huddle.Event) {
	switch ev.Event {
	case huddle.EventNewMessage:
		var msg huddle.ChatMessage
		if json.Unmarshal(ev.Data, &msg) == nil {
			fmt.Printf("[%s] %s %s: %s\n", msg.Timestamp, msg.Avatar, msg.Username, msg.Message)
		}

	case huddle.EventMessageHistory:
		var history huddle.MessageHistory
		if json.Unmarshal(ev.Data, &history) == nil {
			for _, msg := range history.Messages {
				fmt.Printf("[%s] %s %s: %s\n", msg.Timestamp, msg.Avatar, msg.Username, msg.Message)
			}
		}

	case huddle.EventUserJoined:
		var user huddle.UserEvent
		if json.Unmarshal(ev.Data, &user) == nil {
			fmt.Printf("* %s joined at %s\n", user.Username, user.Timestamp)
		}

	case huddle.EventUserLeft:
		var user huddle.UserEvent
		if json.Unmarshal(ev.Data, &user) == nil {
			fmt.Printf("* %s left at %s\n", user.Username, user.Timestamp)
		}

	case huddle.EventUserListUpdate:
		var roster huddle.UserListUpdate
		if json.Unmarshal(ev.Data, &roster) == nil {
			names := make([]string, len(roster.Users))
			for i, u := range roster.Users {
				names[i] = u.Username
			}
			fmt.Printf("* online (%d): %s\n", roster.Count, strings.Join(names, ", "))
		}

	case huddle.EventUserTyping:
		var typing huddle.UserTyping
		if json.Unmarshal(ev.Data, &typing) == nil && typing.IsTyping {
			fmt.Printf("* %s is typing...\n", typing.Username)
		}

	case huddle.EventError:
		var serverErr huddle.ErrorEvent
		if json.Unmarshal(ev.Data, &serverErr) == nil {
			fmt.Fprintf(os.Stderr, "server error: %s\n", serverErr.Message)
		}

	case huddle.EventJoinedSuccessfully:
		fmt.Println("* joined")
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: huddle <command> [args]

Commands:
  health                         Check server health
  stats                          Show server stats
  create <username> [passcode]   Create a room
  verify <room-id> [passcode]    Verify a room exists
  chat <room-id> <username>      Join a room and chat

Environment:
  HUDDLE_URL   Base URL of the Huddle server`)
}

func exitOnError(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printJSON(v interface{}) {
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
