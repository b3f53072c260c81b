package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	BaseURL   = "http://localhost:8080"
	WSURL     = "ws://localhost:8080/ws"
	PairCount = 50 // Start small; each pair is 2 users
	MsgCount  = 20 // Messages per user
)

type AuthResponse struct {
	Token    string `json:"access_token"`
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

type ChatResponse struct {
	ID int64 `json:"id"`
}

func main() {
	log.Printf("🔥 STARTING STRESS TEST: %d users, %d messages each...", PairCount*2, MsgCount)
	var wg sync.WaitGroup

	for i := 0; i < PairCount; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(pairID)
		}(i)
	}

	wg.Wait()
	log.Println("✅ LOAD TEST COMPLETE")
}

func runPair(pairID int) {
	userA := fmt.Sprintf("u_%d_a", pairID)
	userB := fmt.Sprintf("u_%d_b", pairID)
	pass := "password123!"

	tokenA, _ := authenticate(userA, pass)
	tokenB, profileB := authenticate(userB, pass)

	if tokenA == "" || tokenB == "" || profileB == 0 {
		return
	}

	chatID := createDirectChat(tokenA, profileB)
	if chatID == 0 {
		return
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)

	go spamChat(&wsWg, tokenA, chatID, userA)
	go spamChat(&wsWg, tokenB, chatID, userB)

	wsWg.Wait()
}

// authenticate registers (ignoring "already exists"), logs in, and hits
// /api/me so the server creates the user's profile lazily and tells us
// its id.
func authenticate(username, password string) (string, int64) {
	postJSON("/register", map[string]string{"username": username, "password": password})

	resp, err := postJSON("/login", map[string]string{"username": username, "password": password})
	if err != nil {
		log.Printf("❌ Login failed [%s]: %v", username, err)
		return "", 0
	}

	var data AuthResponse
	json.NewDecoder(resp.Body).Decode(&data)
	resp.Body.Close()

	req, _ := http.NewRequest("GET", BaseURL+"/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+data.Token)
	meResp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Printf("❌ Profile lookup failed [%s]: %v", username, err)
		return "", 0
	}
	defer meResp.Body.Close()

	var me struct {
		ID int64 `json:"id"`
	}
	json.NewDecoder(meResp.Body).Decode(&me)

	return data.Token, me.ID
}

func createDirectChat(token string, targetProfileID int64) int64 {
	body := map[string]any{"is_group": false, "participant_ids": []int64{targetProfileID}}
	jsonBody, _ := json.Marshal(body)
	req, _ := http.NewRequest("POST", BaseURL+"/api/chats", bytes.NewBuffer(jsonBody))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode >= 300 {
		log.Printf("❌ Create chat failed: %v", err)
		return 0
	}
	defer resp.Body.Close()

	var data ChatResponse
	json.NewDecoder(resp.Body).Decode(&data)
	return data.ID
}

func spamChat(wg *sync.WaitGroup, token string, chatID int64, username string) {
	defer wg.Done()

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("%s?token=%s", WSURL, token), nil)
	if err != nil {
		log.Printf("❌ WS connect failed [%s]: %v", username, err)
		return
	}
	defer conn.Close()

	// Drain server pushes so the send buffer never fills.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for i := 0; i < MsgCount; i++ {
		data, _ := json.Marshal(map[string]any{
			"chat_id": chatID,
			"text":    fmt.Sprintf("Loadtest msg %d from %s", i, username),
		})
		frame := map[string]any{"event": "send_message", "data": json.RawMessage(data)}
		if err := conn.WriteJSON(frame); err != nil {
			log.Printf("❌ Send failed [%s]: %v", username, err)
			break
		}
		// Small sleep to avoid an instant localhost bottleneck
		time.Sleep(10 * time.Millisecond)
	}
	log.Printf("✅ %s finished sending %d msgs", username, MsgCount)
}

func postJSON(endpoint string, data interface{}) (*http.Response, error) {
	jsonData, _ := json.Marshal(data)
	return http.Post(BaseURL+endpoint, "application/json", bytes.NewBuffer(jsonData))
}
