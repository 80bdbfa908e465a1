package identity

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/marmos91/synkerd/internal/logger"
	"github.com/marmos91/synkerd/pkg/metadata"
)

// MyCloudConfig configures the MyCloud OS5 identity provider.
type MyCloudConfig struct {
	// Endpoint is the appliance base URL, e.g. "https://mycloud.local".
	Endpoint string

	// VerifySSL disables certificate verification when false. Appliances
	// commonly ship self-signed certificates on the LAN.
	VerifySSL bool

	// Timeout bounds each verification request.
	Timeout time.Duration
}

// MyCloudProvider verifies credentials against a MyCloud OS5 appliance's
// REST API.
type MyCloudProvider struct {
	endpoint string
	client   *http.Client
}

// NewMyCloudProvider creates a MyCloud identity provider.
func NewMyCloudProvider(cfg MyCloudConfig) *MyCloudProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !cfg.VerifySSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &MyCloudProvider{
		endpoint: cfg.Endpoint,
		client: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

// myCloudUser is the account object in the appliance's login response.
type myCloudUser struct {
	Username  string     `json:"username"`
	Email     string     `json:"email"`
	Groups    []string   `json:"groups"`
	IsAdmin   bool       `json:"is_admin"`
	IsActive  bool       `json:"is_active"`
	LastLogin *time.Time `json:"last_login"`
}

// myCloudAuthResponse is the appliance's login response envelope.
type myCloudAuthResponse struct {
	Success      bool         `json:"success"`
	SessionToken string       `json:"session_token"`
	User         *myCloudUser `json:"user"`
	Error        string       `json:"error"`
}

// VerifyCredentials posts the pair to the appliance's login endpoint.
func (p *MyCloudProvider) VerifyCredentials(ctx context.Context, username, password string) (*Identity, error) {
	payload, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding login request: %w", err)
	}

	url := p.endpoint + "/api/2.1/rest/login"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mycloud login request: %w", err)
	}
	defer resp.Body.Close()

	// The appliance answers 401 for bad credentials; anything else
	// non-2xx is an appliance-side problem worth distinguishing.
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, metadata.NewError(metadata.ErrInvalidCredentials, "mycloud rejected credentials", "")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("mycloud login returned status %d", resp.StatusCode)
	}

	var auth myCloudAuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return nil, fmt.Errorf("decoding login response: %w", err)
	}
	if !auth.Success || auth.User == nil {
		logger.Debug("mycloud login refused: user=%s error=%q", username, auth.Error)
		return nil, metadata.NewError(metadata.ErrInvalidCredentials, "mycloud rejected credentials", "")
	}
	if !auth.User.IsActive {
		return nil, metadata.NewError(metadata.ErrInvalidCredentials, "account disabled", "")
	}

	identity := &Identity{
		Username:    auth.User.Username,
		Email:       auth.User.Email,
		Permissions: auth.User.Groups,
		Admin:       auth.User.IsAdmin,
	}
	if auth.User.LastLogin != nil {
		identity.LastLogin = *auth.User.LastLogin
	}
	return identity, nil
}
