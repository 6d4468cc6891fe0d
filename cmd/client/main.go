package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/shravanasati/term-tac-toe/internal/event"
)

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9]{6}$`)

type joinedRoomResponse struct {
	RoomID            string `json:"room_id"`
	Player            string `json:"player"`
	Token             string `json:"token"`
	Status            string `json:"status"`
	WebsocketRedirect string `json:"websocket_redirect"`
	Error             string `json:"error"`
}

type client struct {
	stdin  *bufio.Scanner
	server string

	httpPort   string
	socketPort string

	player   string
	roomID   string
	token    string
	redirect string

	boardSize int
	board     []int
}

func main() {
	server := flag.String("server", "localhost", "hostname or IP of the game server")
	httpPort := flag.String("http-port", "8000", "REST port of the game server")
	socketPort := flag.String("socket-port", "8001", "WebSocket port of the game server")
	flag.Parse()

	c := &client{
		stdin:      bufio.NewScanner(os.Stdin),
		server:     *server,
		httpPort:   *httpPort,
		socketPort: *socketPort,
	}

	if err := c.run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func (that *client) run() error {
	fmt.Println("Welcome to term-tac-toe!")

	choice := that.prompt("What do you want to do?\n1. Create a room\n2. Join a room\n> ")
	that.player = that.prompt("Enter a nickname: ")

	var err error
	switch choice {
	case "1":
		err = that.createRoom()
	default:
		err = that.joinRoom()
	}
	if err != nil {
		return err
	}

	return that.play()
}

func (that *client) createRoom() error {
	resp, err := that.postJSON("/rooms/create", map[string]string{"player_name": that.player})
	if err != nil {
		return err
	}

	that.roomID = resp.RoomID
	that.token = resp.Token
	that.redirect = resp.WebsocketRedirect

	fmt.Printf("Room created, share this id with your opponent: %s\n", that.roomID)

	return nil
}

func (that *client) joinRoom() error {
	var roomID string
	for {
		roomID = that.prompt("Enter the six-character room id: ")
		if roomIDPattern.MatchString(roomID) {
			break
		}
		fmt.Println("Invalid room id, try again.")
	}

	resp, err := that.postJSON("/rooms/join", map[string]string{
		"room_id":     roomID,
		"player_name": that.player,
	})
	if err != nil {
		return err
	}

	that.roomID = resp.RoomID
	that.token = resp.Token
	that.redirect = resp.WebsocketRedirect

	fmt.Println("Joined the room, waiting for the game to start.")

	return nil
}

// play drives the whole websocket session: render what the server sends,
// prompt when it is our turn, vote when a game ends.
func (that *client) play() error {
	if that.redirect == "" {
		that.redirect = "/ws/" + that.roomID
	}
	url := fmt.Sprintf("ws://%s:%s%s?token=%s", that.server, that.socketPort, that.redirect, that.token)

	ws, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to the game server: %w", err)
	}
	if resp != nil {
		resp.Body.Close()
	}
	defer ws.Close()

	for {
		_, raw, readErr := ws.ReadMessage()
		if readErr != nil {
			fmt.Println("Connection closed, bye!")
			return nil
		}

		ev, decodeErr := event.Decode(raw)
		if decodeErr != nil {
			continue
		}

		if err = that.handle(ws, ev); err != nil {
			return err
		}
	}
}

func (that *client) handle(ws *websocket.Conn, ev *event.Event) error {
	switch ev.Kind {
	case event.KindMessage:
		payload, err := ev.Message()
		if err != nil {
			return err
		}
		fmt.Printf("server> %s\n", payload.Message)

	case event.KindRoomStatus:
		payload, err := ev.RoomStatus()
		if err != nil {
			return err
		}
		fmt.Printf("room %s: %s, players: %s\n", that.roomID, payload.Status, strings.Join(payload.Players, ", "))

	case event.KindBoard:
		payload, err := ev.Board()
		if err != nil {
			return err
		}
		that.setBoard(payload.Board)
		that.renderBoard()

	case event.KindAskMove:
		payload, err := ev.AskMove()
		if err != nil {
			return err
		}
		if payload.Player != that.player {
			fmt.Printf("Waiting for %s to move...\n", payload.Player)
			return nil
		}
		return that.sendMove(ws)

	case event.KindResult:
		payload, err := ev.Result()
		if err != nil {
			return err
		}
		that.setBoard(payload.Board)
		that.renderBoard()
		fmt.Println(payload.Message)
		return that.sendRematchVote(ws)

	case event.KindRematchVote:
		payload, err := ev.RematchVote()
		if err != nil {
			return err
		}
		fmt.Printf("rematch votes so far: %d of 2\n", len(payload.Votes))

	case event.KindMove, event.KindQuit:
		// server never sends these
	}

	return nil
}

func (that *client) sendMove(ws *websocket.Conn) error {
	for {
		answer := that.prompt(fmt.Sprintf("Your turn! Pick a position (1-%d), or q to quit: ", that.boardSize*that.boardSize))
		if answer == "q" {
			return that.writeEvent(ws, event.NewQuit())
		}

		position, err := strconv.Atoi(answer)
		if err != nil || position < 1 || position > that.boardSize*that.boardSize {
			fmt.Println("Not a valid position, try again.")
			continue
		}

		return that.writeEvent(ws, event.NewMove(position, that.player))
	}
}

func (that *client) sendRematchVote(ws *websocket.Conn) error {
	for {
		answer := strings.ToLower(that.prompt("Play again? (y/n): "))
		switch answer {
		case "y", "yes":
			return that.writeEvent(ws, event.NewRematchBallot(true))
		case "n", "no":
			return that.writeEvent(ws, event.NewRematchBallot(false))
		}
		fmt.Println("Please answer y or n.")
	}
}

func (that *client) writeEvent(ws *websocket.Conn, ev *event.Event) error {
	raw, err := ev.Encode()
	if err != nil {
		return err
	}

	if err = ws.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("failed to send event: %w", err)
	}

	return nil
}

func (that *client) setBoard(cells []int) {
	that.board = cells

	size := 0
	for size*size < len(cells) {
		size++
	}
	that.boardSize = size
}

// renderBoard prints the grid with position hints in the empty cells.
func (that *client) renderBoard() {
	n := that.boardSize

	for row := 0; row < n; row++ {
		if row > 0 {
			fmt.Println(strings.Repeat("---+", n-1) + "---")
		}

		parts := make([]string, 0, n)
		for col := 0; col < n; col++ {
			position := row*n + col + 1
			switch that.board[position-1] {
			case 1:
				parts = append(parts, " X ")
			case 2:
				parts = append(parts, " O ")
			default:
				parts = append(parts, fmt.Sprintf("%2d ", position))
			}
		}
		fmt.Println(strings.Join(parts, "|"))
	}
}

func (that *client) prompt(text string) string {
	fmt.Print(text)
	if !that.stdin.Scan() {
		return ""
	}

	return strings.TrimSpace(that.stdin.Text())
}

func (that *client) postJSON(path string, body map[string]string) (*joinedRoomResponse, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("http://%s:%s%s", that.server, that.httpPort, path)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to reach the game server: %w", err)
	}
	defer resp.Body.Close()

	var parsed joinedRoomResponse
	if err = json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to parse server response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("server refused: %s", parsed.Error)
	}

	return &parsed, nil
}
