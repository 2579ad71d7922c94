// Command viewfeed pushes a fixture of rendered conversation items into a
// running server and reports which entries end up hidden. Useful for
// exercising the reconciler against a known archive without a real client.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type rawItem struct {
	ExternalID string `json:"externalId"`
	HTML       string `json:"html"`
	Text       string `json:"text"`
}

type fixture struct {
	Items []rawItem `json:"items"`
}

type snapshotEntry struct {
	Handle     uint64 `json:"handle"`
	ExternalID string `json:"externalId"`
	Text       string `json:"text"`
	Hidden     bool   `json:"hidden"`
}

type snapshot struct {
	Items  []snapshotEntry `json:"items"`
	Nudges int64           `json:"nudges"`
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

func main() {
	var (
		base        string
		username    string
		password    string
		fixturePath string
		settle      time.Duration
		timeout     time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080/api/v1", "API base URL")
	flag.StringVar(&username, "username", "operator", "Operator username")
	flag.StringVar(&password, "password", "operator", "Operator password")
	flag.StringVar(&fixturePath, "fixture", filepath.Join("scripts", "viewfeed", "items.json"), "Path to JSON items fixture")
	flag.DurationVar(&settle, "settle", 2*time.Second, "How long to wait for the reconciler")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	items, err := loadFixture(fixturePath)
	if err != nil {
		log.Fatalf("failed to load fixture: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	token, err := login(client, base, username, password)
	if err != nil {
		log.Fatalf("login failed: %v", err)
	}

	if err := pushItems(client, base, token, items); err != nil {
		log.Fatalf("failed to push items: %v", err)
	}
	fmt.Printf("Pushed %d items, waiting %s for reconciliation\n", len(items), settle)
	time.Sleep(settle)

	snap, err := fetchSnapshot(client, base, token)
	if err != nil {
		log.Fatalf("failed to read snapshot: %v", err)
	}

	hidden := 0
	for _, entry := range snap.Items {
		marker := " "
		if entry.Hidden {
			marker = "H"
			hidden++
		}
		fmt.Printf("[%s] %-30s %s\n", marker, entry.ExternalID, firstLine(entry.Text))
	}
	fmt.Printf("Hidden: %d/%d, nudges: %d\n", hidden, len(snap.Items), snap.Nudges)
	if hidden == 0 && len(snap.Items) > 0 {
		os.Exit(1)
	}
}

func loadFixture(path string) ([]rawItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if len(f.Items) == 0 {
		return nil, fmt.Errorf("no items defined in %s", path)
	}
	return f.Items, nil
}

func login(client *http.Client, base, username, password string) (string, error) {
	payload, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return "", err
	}
	resp, err := client.Post(joinURL(base, "/auth/login"), "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return "", err
	}
	var body struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(env.Data, &body); err != nil {
		return "", err
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("no token in response")
	}
	return body.AccessToken, nil
}

func pushItems(client *http.Client, base, token string, items []rawItem) error {
	payload, err := json.Marshal(fixture{Items: items})
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, joinURL(base, "/view/items"), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func fetchSnapshot(client *http.Client, base, token string) (snapshot, error) {
	req, err := http.NewRequest(http.MethodGet, joinURL(base, "/view/items"), nil)
	if err != nil {
		return snapshot{}, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return snapshot{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return snapshot{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return snapshot{}, err
	}
	var snap snapshot
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		return snapshot{}, err
	}
	return snap, nil
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 60 {
		s = s[:60]
	}
	return s
}
