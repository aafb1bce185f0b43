// ABOUTME: HTTP SMS gateway transport
// ABOUTME: Posts JSON messages to a bearer-authenticated gateway with fasthttp under the caller's deadline
package transport

import (
	"context"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"github.com/valyala/fasthttp"
)

const defaultSMSTimeout = 30 * time.Second

type smsPayload struct {
	To      string `json:"to"`
	Message string `json:"message"`
	Sender  string `json:"sender,omitempty"`
}

type smsResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type SMSGateway struct {
	client   *fasthttp.Client
	endpoint string
	token    string
	sender   string
}

// NewSMSGateway creates a gateway client. A nil client uses fasthttp defaults.
func NewSMSGateway(endpoint, token, sender string, client *fasthttp.Client) *SMSGateway {
	if client == nil {
		client = &fasthttp.Client{
			Name:                "relance",
			MaxIdleConnDuration: time.Minute,
		}
	}
	return &SMSGateway{client: client, endpoint: endpoint, token: token, sender: sender}
}

// Send posts one SMS. The subject is ignored.
func (g *SMSGateway) Send(ctx context.Context, destination, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(smsPayload{To: destination, Message: body, Sender: g.sender})
	if err != nil {
		return fmt.Errorf("failed to encode sms: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(g.endpoint)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	if g.token != "" {
		req.Header.Set(fasthttp.HeaderAuthorization, "Bearer "+g.token)
	}
	req.SetBody(payload)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultSMSTimeout)
	}

	if err := g.client.DoDeadline(req, resp, deadline); err != nil {
		if err == fasthttp.ErrTimeout {
			return fmt.Errorf("sms gateway: %w", context.DeadlineExceeded)
		}
		return fmt.Errorf("sms gateway: %w", err)
	}

	var out smsResponse
	if len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), &out); err != nil && resp.StatusCode() < 300 {
			return fmt.Errorf("sms gateway: invalid response: %w", err)
		}
	}

	if code := resp.StatusCode(); code < 200 || code >= 300 {
		if out.Error != "" {
			return fmt.Errorf("sms gateway returned %d: %s", code, out.Error)
		}
		return fmt.Errorf("sms gateway returned %d", code)
	}
	return nil
}
