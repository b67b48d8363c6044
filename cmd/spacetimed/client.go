package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

var apiAddr string

func init() {
	rootCmd.PersistentFlags().StringVar(&apiAddr, "addr", "http://127.0.0.1:8080", "spacetimed HTTP inspection/authoring address")
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

func apiGet(path string) (map[string]any, error) {
	resp, err := httpClient.Get(apiAddr + path)
	if err != nil {
		return nil, fmt.Errorf("spacetimed: GET %s: %w", path, err)
	}
	defer resp.Body.Close()
	return decodeOrError(resp)
}

func apiPost(path string, body any) (map[string]any, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("spacetimed: encode request: %w", err)
	}
	resp, err := httpClient.Post(apiAddr+path, "application/json", bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("spacetimed: POST %s: %w", path, err)
	}
	defer resp.Body.Close()
	return decodeOrError(resp)
}

func decodeOrError(resp *http.Response) (map[string]any, error) {
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("spacetimed: %s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("spacetimed: decode response: %w", err)
	}
	return out, nil
}
