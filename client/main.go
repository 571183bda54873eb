package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v2"

	"github.com/Kanata-Kikuchi/mahjong-lite-server/network"
)

func main() {
	app := &cli.App{
		Name:  "mahjong-client",
		Usage: "interactive websocket client; type `<type> <json payload>` per line",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Value: "localhost:3000", Usage: "server host:port"},
			&cli.StringFlag{Name: "create", Usage: "create a room as this name on connect"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// parseLine turns `join_room {"roomId":"abc123","name":"Bob"}` into a frame.
func parseLine(line string) ([]byte, error) {
	msgType, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	if msgType == "" {
		return nil, fmt.Errorf("empty command")
	}
	var payload any
	if rest = strings.TrimSpace(rest); rest != "" {
		if err := json.Unmarshal([]byte(rest), &payload); err != nil {
			return nil, fmt.Errorf("payload: %w", err)
		}
	}
	return network.Encode(msgType, payload)
}

func run(c *cli.Context) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: c.String("host"), Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			var env network.Envelope
			if err := json.Unmarshal(message, &env); err != nil {
				log.Printf("<- RECV (raw): %s", message)
				continue
			}
			log.Printf("<- RECV %s: %s", env.Type, env.Payload)
		}
	}()

	if name := c.String("create"); name != "" {
		frame, _ := network.Encode(network.MsgCreateRoom, map[string]any{"name": name, "rule": map[string]any{}})
		if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return err
		}
	}

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	log.Println("Client started. Example: ping")
	for {
		select {
		case <-done:
			return nil
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(line) == "" {
				continue
			}
			frame, err := parseLine(line)
			if err != nil {
				log.Println("Invalid input:", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return fmt.Errorf("write: %w", err)
			}
			log.Printf("-> SENT %s", frame)
		}
	}
}
