package copernicus

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// tokenExpirySkew refreshes tokens slightly before the server-side expiry.
const tokenExpirySkew = 60 * time.Second

type tokenCache struct {
	mu      sync.Mutex
	value   string
	expires time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// accessToken returns a cached token, fetching a fresh one via the CDSE
// password grant when missing or near expiry.
func (c *httpClient) accessToken(ctx context.Context) (string, error) {
	c.token.mu.Lock()
	defer c.token.mu.Unlock()

	if c.token.value != "" && time.Now().Before(c.token.expires) {
		return c.token.value, nil
	}

	form := url.Values{
		"grant_type": {"password"},
		"client_id":  {publicClientID},
		"username":   {c.username},
		"password":   {c.password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", eris.Wrap(err, "copernicus: create token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", eris.Wrap(err, "copernicus: request token")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", eris.Wrap(err, "copernicus: read token response")
	}
	if resp.StatusCode != http.StatusOK {
		return "", eris.Errorf("copernicus: token endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", eris.Wrap(err, "copernicus: unmarshal token response")
	}
	if tok.AccessToken == "" {
		return "", eris.New("copernicus: token endpoint returned no access_token")
	}

	c.token.value = tok.AccessToken
	c.token.expires = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - tokenExpirySkew)
	return c.token.value, nil
}
