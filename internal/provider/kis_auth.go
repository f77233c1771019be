package provider

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const kisBaseURL = "https://openapi.koreainvestment.com:9443"

// KISCredentials holds the KIS OpenAPI app key pair.
type KISCredentials struct {
	AppKey    string
	AppSecret string
}

// kisTokenCache is the on-disk token cache format. KIS rate-limits
// token issuance, so tokens are reused across runs.
type kisTokenCache struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	AppKey      string    `json:"app_key"` // distinguishes accounts
}

type kisTokenRequest struct {
	GrantType string `json:"grant_type"`
	AppKey    string `json:"appkey"`
	AppSecret string `json:"appsecret"`
}

type kisTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"` // seconds, 86400 = 24h
}

// kisTokenManager issues and caches the KIS OAuth access token.
type kisTokenManager struct {
	creds     KISCredentials
	client    *http.Client
	cacheFile string

	mu          sync.RWMutex
	accessToken string
	expiresAt   time.Time
}

func newKISTokenManager(creds KISCredentials) *kisTokenManager {
	// Cache file keyed by app key so multiple accounts don't clash
	homeDir, _ := os.UserHomeDir()
	hash := sha256.Sum256([]byte(creds.AppKey))
	suffix := hex.EncodeToString(hash[:4])
	cacheFile := filepath.Join(homeDir, fmt.Sprintf(".kis_token_%s.json", suffix))

	tm := &kisTokenManager{
		creds:     creds,
		client:    &http.Client{Timeout: 10 * time.Second},
		cacheFile: cacheFile,
	}
	tm.loadCachedToken()
	return tm
}

func (tm *kisTokenManager) loadCachedToken() {
	data, err := os.ReadFile(tm.cacheFile)
	if err != nil {
		return
	}

	var cache kisTokenCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return
	}
	if cache.AppKey != tm.creds.AppKey {
		return
	}

	// 5 minute expiry margin
	if time.Now().Add(5 * time.Minute).Before(cache.ExpiresAt) {
		tm.accessToken = cache.AccessToken
		tm.expiresAt = cache.ExpiresAt
		log.Printf("[KIS] Using cached token (expires: %s)", tm.expiresAt.Format("2006-01-02 15:04:05"))
	}
}

func (tm *kisTokenManager) saveCachedToken() error {
	cache := kisTokenCache{
		AccessToken: tm.accessToken,
		ExpiresAt:   tm.expiresAt,
		AppKey:      tm.creds.AppKey,
	}

	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}
	if err := os.WriteFile(tm.cacheFile, data, 0600); err != nil {
		return fmt.Errorf("write cache file %s: %w", tm.cacheFile, err)
	}
	return nil
}

// Token returns a valid access token, refreshing it when needed.
func (tm *kisTokenManager) Token(ctx context.Context) (string, error) {
	tm.mu.RLock()
	if tm.accessToken != "" && time.Now().Add(5*time.Minute).Before(tm.expiresAt) {
		token := tm.accessToken
		tm.mu.RUnlock()
		return token, nil
	}
	tm.mu.RUnlock()

	return tm.refreshToken(ctx)
}

func (tm *kisTokenManager) refreshToken(ctx context.Context) (string, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	// Double-check after acquiring the write lock
	if tm.accessToken != "" && time.Now().Add(5*time.Minute).Before(tm.expiresAt) {
		return tm.accessToken, nil
	}

	reqBody := kisTokenRequest{
		GrantType: "client_credentials",
		AppKey:    tm.creds.AppKey,
		AppSecret: tm.creds.AppSecret,
	}
	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", kisBaseURL+"/oauth2/tokenP", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	resp, err := tm.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request failed: %d - %s", resp.StatusCode, string(body))
	}

	var tokenResp kisTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return "", fmt.Errorf("empty access token in response: %s", string(body))
	}

	tm.accessToken = tokenResp.AccessToken
	tm.expiresAt = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)

	if err := tm.saveCachedToken(); err != nil {
		log.Printf("[WARN] Failed to cache KIS token: %v", err)
	}

	return tm.accessToken, nil
}

// Invalidate drops the current token so the next call reissues one.
func (tm *kisTokenManager) Invalidate() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.accessToken = ""
	tm.expiresAt = time.Time{}
}
