package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

var ErrNotConfigured = errors.New("okx credentials are not configured")

type Credentials struct {
	APIKey     string
	APISecret  string
	Passphrase string
}

// Client is the signed OKX REST client used for order execution and the
// live account balance.
type Client struct {
	baseURL   string
	http      *http.Client
	apiKey    string
	apiSecret string
	passph    string

	pollEvery    time.Duration
	pollAttempts int
	now          func() time.Time
}

func NewClient(creds Credentials, baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://www.okx.com"
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         &http.Client{Timeout: 10 * time.Second},
		apiKey:       creds.APIKey,
		apiSecret:    creds.APISecret,
		passph:       creds.Passphrase,
		pollEvery:    500 * time.Millisecond,
		pollAttempts: 20,
		now:          time.Now,
	}
}

func (c *Client) Configured() bool {
	return c.apiKey != "" && c.apiSecret != "" && c.passph != ""
}

// sign is base64(HMAC-SHA256(secret, ts + METHOD + path + body)).
func (c *Client) sign(ts, method, requestPath, body string) string {
	h := hmac.New(sha256.New, []byte(c.apiSecret))
	h.Write([]byte(ts + strings.ToUpper(method) + requestPath + body))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

type envelope struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// do sends a signed request and decodes the response into out, which must
// embed the code/msg envelope fields.
func (c *Client) do(ctx context.Context, method, requestPath string, payload any, out any) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	var body []byte
	if payload != nil {
		var err error
		if body, err = sonic.Marshal(payload); err != nil {
			return errors.Wrapf(err, "%s marshal", requestPath)
		}
	}

	ts := c.now().UTC().Format("2006-01-02T15:04:05.000Z")
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "%s new request", requestPath)
	}
	req.Header.Set("OK-ACCESS-KEY", c.apiKey)
	req.Header.Set("OK-ACCESS-SIGN", c.sign(ts, method, requestPath, string(body)))
	req.Header.Set("OK-ACCESS-TIMESTAMP", ts)
	req.Header.Set("OK-ACCESS-PASSPHRASE", c.passph)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s do", requestPath)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s http %d: %s", requestPath, resp.StatusCode, string(data))
	}

	var env envelope
	if err := sonic.Unmarshal(data, &env); err != nil {
		return errors.Wrapf(err, "%s decode; body=%s", requestPath, string(data))
	}
	if env.Code != "0" {
		return fmt.Errorf("%s error: code=%s msg=%s", requestPath, env.Code, env.Msg)
	}
	if out == nil {
		return nil
	}
	return errors.Wrapf(sonic.Unmarshal(data, out), "%s decode", requestPath)
}
