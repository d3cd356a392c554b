package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var (
	baseURL  = flag.String("base", "http://localhost:8080", "server base URL")
	wsURL    = flag.String("ws", "ws://localhost:8080/chat", "websocket endpoint")
	pairs    = flag.Int("pairs", 50, "number of user pairs; every signup provisions a room with every existing user, so keep this small")
	msgCount = flag.Int("messages", 20, "messages sent by each user")
	timeout  = flag.Duration("timeout", 30*time.Second, "per-user deadline")
)

type tokenResponse struct {
	Token    string `json:"access_token"`
	Username string `json:"username"`
}

type event struct {
	Type  string `json:"type"`
	Rooms []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"rooms"`
	Messages []struct {
		RoomID int64 `json:"roomId"`
	} `json:"messages"`
	Error string `json:"error"`
}

var (
	sent     atomic.Int64
	received atomic.Int64
	failed   atomic.Int64
)

func main() {
	flag.Parse()
	log.Printf("🔥 STARTING STRESS TEST: %d users, %d messages each...", *pairs*2, *msgCount)
	start := time.Now()

	var wg sync.WaitGroup
	// We create pairs: u_0_a talks to u_0_b, u_1_a talks to u_1_b...
	for i := 0; i < *pairs; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}

	wg.Wait()
	log.Printf("✅ LOAD TEST COMPLETE in %s: sent=%d received=%d failed=%d",
		time.Since(start).Round(time.Millisecond), sent.Load(), received.Load(), failed.Load())
}

func runPair(pairID int) {
	userA := fmt.Sprintf("u_%d_a", pairID)
	userB := fmt.Sprintf("u_%d_b", pairID)

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go chat(&wsWg, userA, userB)
	go chat(&wsWg, userB, userA)
	wsWg.Wait()
}

func chat(wg *sync.WaitGroup, user, partner string) {
	defer wg.Done()

	token := authenticate(user, "password123")

	conn, _, err := websocket.DefaultDialer.Dial(*wsURL, nil)
	if err != nil {
		log.Printf("❌ WS Connect Fail [%s]: %v", user, err)
		failed.Add(1)
		return
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(*timeout))

	if err := conn.WriteJSON(map[string]string{"type": "LOGIN", "user": user, "token": token}); err != nil {
		log.Printf("❌ Login Fail [%s]: %v", user, err)
		failed.Add(1)
		return
	}

	// Wait until the room shared with partner shows up. Whoever logs in
	// second gets it in the initial room list, the other one gets it pushed.
	roomID, err := awaitRoom(conn, partner)
	if err != nil {
		log.Printf("❌ No room [%s -> %s]: %v", user, partner, err)
		failed.Add(1)
		return
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		want := 2 * *msgCount
		got := 0
		for got < want {
			var ev event
			if err := conn.ReadJSON(&ev); err != nil {
				log.Printf("❌ Read Fail [%s] after %d/%d: %v", user, got, want, err)
				failed.Add(1)
				return
			}
			for _, m := range ev.Messages {
				if ev.Type == "RECEIVE_MESSAGES" && m.RoomID == roomID {
					got++
					received.Add(1)
				}
			}
		}
	}()

	for i := 0; i < *msgCount; i++ {
		msg := map[string]any{
			"type":    "SEND_MESSAGE",
			"roomId":  roomID,
			"content": fmt.Sprintf("LoadTest Msg %d from %s", i, user),
		}
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("❌ Send Fail [%s]: %v", user, err)
			failed.Add(1)
			break
		}
		sent.Add(1)
		// Small sleep to prevent instant localhost bottleneck (simulate real network)
		time.Sleep(10 * time.Millisecond)
	}
	<-done
	log.Printf("✅ %s finished sending %d msgs", user, *msgCount)
}

func awaitRoom(conn *websocket.Conn, partner string) (int64, error) {
	for {
		var ev event
		if err := conn.ReadJSON(&ev); err != nil {
			return 0, err
		}
		switch ev.Type {
		case "ERROR":
			return 0, fmt.Errorf("server error: %s", ev.Error)
		case "RECEIVE_ROOMS":
			for _, r := range ev.Rooms {
				if r.Name == partner {
					return r.ID, nil
				}
			}
		}
	}
}

// authenticate registers (ignores error if exists) and fetches a token. The
// token only matters when the server runs with AUTH_MODE=jwt.
func authenticate(username, password string) string {
	creds := map[string]string{"username": username, "password": password}
	if resp, err := postJSON("/api/register", creds); err == nil {
		resp.Body.Close()
	}

	resp, err := postJSON("/api/token", creds)
	if err != nil {
		log.Printf("❌ Token Failed [%s]: %v", username, err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Printf("❌ Token Failed [%s]: %s", username, resp.Status)
		return ""
	}

	var data tokenResponse
	json.NewDecoder(resp.Body).Decode(&data)
	return data.Token
}

func postJSON(endpoint string, data any) (*http.Response, error) {
	jsonData, _ := json.Marshal(data)
	return http.Post(*baseURL+endpoint, "application/json", bytes.NewBuffer(jsonData))
}
