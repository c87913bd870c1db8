package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/leadwire/outreach/internal/apperr"
)

// GatewayClient talks to the local WhatsApp bridge over its JSON
// webhook API. Pairing (QR codes, session persistence) lives entirely
// in the bridge.
type GatewayClient struct {
	baseURL string
	client  *http.Client
}

func NewGatewayClient(baseURL string) *GatewayClient {
	return &GatewayClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Connect asks the bridge to open (or resume) a session for the
// account and returns a Conn bound to it.
func (g *GatewayClient) Connect(ctx context.Context, accountID string) (Conn, error) {
	url := fmt.Sprintf("%s/accounts/%s/connect", g.baseURL, accountID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransport, err, "gateway connect")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(resp.Body)
		return nil, apperr.New(apperr.KindTransport,
			"gateway connect: unexpected status %d body=%q", resp.StatusCode, string(body))
	}

	return &gatewayConn{gateway: g, accountID: accountID}, nil
}

func (g *GatewayClient) Disconnect(ctx context.Context, accountID string) error {
	url := fmt.Sprintf("%s/accounts/%s/connect", g.baseURL, accountID)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindTransport, err, "gateway disconnect")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return apperr.New(apperr.KindTransport,
			"gateway disconnect: unexpected status %d", resp.StatusCode)
	}
	return nil
}

type gatewayConn struct {
	gateway   *GatewayClient
	accountID string
}

type sendRequest struct {
	PhoneNumber string   `json:"phoneNumber"`
	Message     string   `json:"message"`
	Images      []string `json:"images,omitempty"`
}

type sendResponse struct {
	Message   string `json:"message"`
	MessageID string `json:"messageId"`
}

func (c *gatewayConn) Send(ctx context.Context, phone, text string, images []string) (string, error) {
	reqBody, err := json.Marshal(sendRequest{
		PhoneNumber: phone,
		Message:     text,
		Images:      images,
	})
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/accounts/%s/messages", c.gateway.baseURL, c.accountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.gateway.client.Do(req)
	if err != nil {
		return "", apperr.Wrap(apperr.KindTransport, err, "gateway send")
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusAccepted {
		return "", apperr.New(apperr.KindTransport,
			"gateway send: unexpected status %d body=%q", resp.StatusCode, string(body))
	}

	var sr sendResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return "", apperr.New(apperr.KindTransport,
			"gateway send: bad response %q: %v", string(body), err)
	}
	if sr.MessageID == "" {
		return "", apperr.New(apperr.KindTransport,
			"gateway send: missing messageId in response body=%q", string(body))
	}

	return sr.MessageID, nil
}

type statusResponse struct {
	Connected bool `json:"connected"`
}

func (c *gatewayConn) Connected() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/accounts/%s/status", c.gateway.baseURL, c.accountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	resp, err := c.gateway.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}

	var sr statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return false
	}
	return sr.Connected
}
