package lib

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"
)

const (
	zoomTokenURL = "https://zoom.us/oauth/token"
	zoomAPIBase  = "https://api.zoom.us/v2"
	zoomTokenKey = "zoom:access_token"
)

var ErrZoomNotConfigured = errors.New("zoom is not configured")

var zoomHTTPClient = &http.Client{Timeout: 10 * time.Second}

type ZoomMeeting struct {
	ID       int64  `json:"id"`
	Topic    string `json:"topic"`
	JoinURL  string `json:"join_url"`
	StartURL string `json:"start_url"`
}

type zoomTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// zoomAccessToken fetches a server-to-server OAuth token, caching it in redis
// for its lifetime minus a safety margin.
func zoomAccessToken(ctx context.Context) (string, error) {
	accountId := os.Getenv("ZOOM_ACCOUNT_ID")
	clientId := os.Getenv("ZOOM_CLIENT_ID")
	clientSecret := os.Getenv("ZOOM_CLIENT_SECRET")
	if accountId == "" || clientId == "" || clientSecret == "" {
		return "", ErrZoomNotConfigured
	}

	rd := GetRedisClient()
	if rd != nil {
		if tok, err := rd.Get(ctx, zoomTokenKey).Result(); err == nil && tok != "" {
			return tok, nil
		}
	}

	q := url.Values{}
	q.Set("grant_type", "account_credentials")
	q.Set("account_id", accountId)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s?%s", zoomTokenURL, q.Encode()), nil)
	if err != nil {
		return "", err
	}
	basic := base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%s:%s", clientId, clientSecret)))
	req.Header.Set("Authorization", fmt.Sprintf("Basic %s", basic))

	res, err := zoomHTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(res.Body)
		return "", fmt.Errorf("zoom token request failed with status %d: %s", res.StatusCode, string(body))
	}
	var tok zoomTokenResponse
	if err := json.NewDecoder(res.Body).Decode(&tok); err != nil {
		return "", err
	}
	if rd != nil && tok.ExpiresIn > 60 {
		if err := rd.Set(ctx, zoomTokenKey, tok.AccessToken, time.Duration(tok.ExpiresIn-60)*time.Second).Err(); err != nil {
			log.Printf("[Zoom] Error caching access token: %s\n", err.Error())
		}
	}
	return tok.AccessToken, nil
}

// ZoomCreateMeeting schedules a meeting on the host's account and returns the
// attendee join URL and the host start URL. Callers treat any error here as a
// degraded booking, not a failed one.
func ZoomCreateMeeting(ctx context.Context, topic string, startTime time.Time, durationMinutes uint, hostEmail string, timezone string) (*ZoomMeeting, error) {
	token, err := zoomAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	if hostEmail == "" {
		hostEmail = os.Getenv("ZOOM_HOST_EMAIL")
	}
	if hostEmail == "" {
		return nil, ErrZoomNotConfigured
	}
	payload := map[string]any{
		"topic":      topic,
		"type":       2,
		"start_time": startTime.UTC().Format("2006-01-02T15:04:05Z"),
		"duration":   durationMinutes,
		"timezone":   timezone,
		"settings": map[string]any{
			"join_before_host": false,
			"waiting_room":     true,
		},
	}
	body, err := json.Marshal(&payload)
	if err != nil {
		return nil, err
	}
	endpoint := fmt.Sprintf("%s/users/%s/meetings", zoomAPIBase, url.PathEscape(hostEmail))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	req.Header.Set("Content-Type", "application/json")

	res, err := zoomHTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		rbytes, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("zoom meeting creation failed with status %d: %s", res.StatusCode, string(rbytes))
	}
	var meeting ZoomMeeting
	if err := json.NewDecoder(res.Body).Decode(&meeting); err != nil {
		return nil, err
	}
	log.Printf("[Zoom] Created meeting %d for %s\n", meeting.ID, hostEmail)
	return &meeting, nil
}
