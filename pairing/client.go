// Package pairing implements the three Astarte pairing HTTP RPCs a device
// uses to bootstrap itself: registering for a credentials secret,
// discovering its broker URL, and exchanging a CSR for a signed client
// certificate. The client is stateless; every call takes the
// configuration it needs as arguments.
//
// HTTP is performed through github.com/golang-io/requests: a long-lived
// *requests.Session built once with requests.New(...), and per-call
// requests.URL/Path/Header/Body/Logf options.
package pairing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-io/requests"
)

// Client issues pairing RPCs against a single Astarte pairing API base
// URL. The zero value is not usable; construct with New.
type Client struct {
	sess    *requests.Session
	baseURL string
}

// New returns a Client talking to baseURL (e.g.
// "https://api.astarte.example.com/pairing").
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		sess:    requests.New(requests.Timeout(30 * time.Second)),
	}
}

type registerRequest struct {
	Data registerRequestData `json:"data"`
}

type registerRequestData struct {
	HwID string `json:"hw_id"`
}

type registerResponse struct {
	Data struct {
		CredentialsSecret string `json:"credentials_secret"`
	} `json:"data"`
}

// RegisterDevice calls POST /v1/{realm}/agent/devices, authenticated by a
// pairing JWT, and returns the per-device credentials secret. Used only
// when the device was not configured with one already.
func (c *Client) RegisterDevice(ctx context.Context, realm, jwt, hwID string) (string, error) {
	var out registerResponse
	err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("/v1/%s/agent/devices", realm),
		"Bearer "+jwt, registerRequest{Data: registerRequestData{HwID: hwID}}, &out)
	if err != nil {
		return "", err
	}
	return out.Data.CredentialsSecret, nil
}

type brokerURLResponse struct {
	Data struct {
		ProtocolInformation struct {
			AstarteMQTTV1 struct {
				BrokerURL string `json:"broker_url"`
			} `json:"astarte_mqtt_v1"`
		} `json:"protocols"`
	} `json:"data"`
}

// FetchBrokerURL calls GET /v1/{realm}/devices/{hw_id}, bearer-authorized
// with the device's credentials secret, and returns the MQTT broker URL
// assigned to this device.
func (c *Client) FetchBrokerURL(ctx context.Context, realm, hwID, credentialsSecret string) (string, error) {
	var out brokerURLResponse
	err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/v1/%s/devices/%s", realm, hwID),
		"Bearer "+credentialsSecret, nil, &out)
	if err != nil {
		return "", err
	}
	return out.Data.ProtocolInformation.AstarteMQTTV1.BrokerURL, nil
}

type certificateRequest struct {
	Data certificateRequestData `json:"data"`
}

type certificateRequestData struct {
	CSR string `json:"csr"`
}

type certificateResponse struct {
	Data struct {
		ClientCrt string `json:"client_crt"`
	} `json:"data"`
}

// ObtainCertificate calls POST
// /v1/{realm}/devices/{hw_id}/protocols/astarte_mqtt_v1/credentials with
// the device's CSR PEM, bearer-authorized with the credentials secret,
// and returns the signed client certificate PEM.
func (c *Client) ObtainCertificate(ctx context.Context, realm, hwID, credentialsSecret string, csrPEM []byte) ([]byte, error) {
	var out certificateResponse
	path := fmt.Sprintf("/v1/%s/devices/%s/protocols/astarte_mqtt_v1/credentials", realm, hwID)
	err := c.doJSON(ctx, http.MethodPost, path, "Bearer "+credentialsSecret,
		certificateRequest{Data: certificateRequestData{CSR: string(csrPEM)}}, &out)
	if err != nil {
		return nil, err
	}
	return []byte(out.Data.ClientCrt), nil
}

func (c *Client) doJSON(ctx context.Context, method, path, authorization string, body any, out any) error {
	opts := []requests.Option{
		requests.URL(c.baseURL),
		requests.Path(path),
		requests.Method(method),
		requests.Header("Content-Type", "application/json"),
		requests.Header("Authorization", authorization),
	}
	if body != nil {
		opts = append(opts, requests.Body(body))
	}
	resp, err := c.sess.DoRequest(ctx, opts...)
	if err != nil {
		return fmt.Errorf("pairing: %s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("pairing: %s %s: unexpected status %d: %s", method, path, resp.StatusCode, resp.Content.Bytes())
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Content.Bytes(), out); err != nil {
		return fmt.Errorf("pairing: %s %s: decode response: %w", method, path, err)
	}
	return nil
}
