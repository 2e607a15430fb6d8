package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"chat-relay/pkg/logger"
	"chat-relay/pkg/relayclient"

	"github.com/google/uuid"
)

// A terminal client for the relay. Lines typed on stdin are sent to the
// joined room; "/to <room> <text>" targets another room and "/who" asks
// for presence.
func main() {
	url := flag.String("url", "ws://localhost:8080/api/v1/ws", "relay WebSocket URL")
	name := flag.String("name", "", "identity to join as")
	room := flag.String("room", "", "room to join (group id or a_b direct token)")
	debug := flag.Bool("debug", false, "verbose logging")
	flag.Parse()

	if *name == "" {
		fmt.Fprintln(os.Stderr, "-name is required")
		os.Exit(2)
	}

	level := "warn"
	if *debug {
		level = "debug"
	}
	appLogger, err := logger.New(level, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	client := relayclient.New(relayclient.Config{
		URL:     *url,
		Name:    *name,
		Room:    *room,
		Logger:  appLogger,
		OnFrame: printFrame,
		OnConnect: func() {
			fmt.Printf("* connected as %s\n", *name)
		},
		OnReconnect: func(attempt int, delay time.Duration) {
			fmt.Printf("* connection lost, retry #%d in %v\n", attempt, delay)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go readInput(client)
	go func() {
		<-ctx.Done()
		client.Close()
	}()

	if err := client.Run(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, "relay:", err)
		os.Exit(1)
	}
}

func readInput(client *relayclient.Client) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var err error
		switch {
		case line == "/who":
			err = client.Send(relayclient.Frame{Type: "get_active_users"})
		case line == "/quit":
			client.Close()
			return
		case strings.HasPrefix(line, "/to "):
			parts := strings.SplitN(strings.TrimPrefix(line, "/to "), " ", 2)
			if len(parts) != 2 {
				fmt.Println("* usage: /to <room> <text>")
				continue
			}
			err = client.SendMessage(parts[0], parts[1], uuid.New().String())
		default:
			err = client.SendMessage("", line, uuid.New().String())
		}
		if err != nil {
			fmt.Println("* not sent:", err)
		}
	}
}

func printFrame(f relayclient.Frame) {
	switch f.Type {
	case "message", "history":
		ts := ""
		if f.InsertedAt != nil {
			ts = f.InsertedAt.Local().Format("15:04")
		}
		fmt.Printf("[%s] %s <%s> %s\n", ts, f.Room, f.Username, f.Text)
	case "status":
		state := "offline"
		if f.Online != nil && *f.Online {
			state = "online"
		}
		fmt.Printf("* %s is %s\n", f.User, state)
	case "typing":
		fmt.Printf("* %s is typing in %s\n", f.Username, f.Room)
	case "active_users":
		for _, u := range f.Users {
			state := "offline"
			if u.Online {
				state = "online"
			}
			fmt.Printf("* %s: %s\n", u.ID, state)
		}
	case "error":
		fmt.Printf("! %s: %s\n", f.Code, f.Message)
	case "ack":
		// delivered
	}
}
