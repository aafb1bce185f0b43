package transport

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func startGateway(t *testing.T, handler fasthttp.RequestHandler) *fasthttp.Client {
	t.Helper()
	ln := fasthttputil.NewInmemoryListener()
	server := &fasthttp.Server{Handler: handler}
	go func() { _ = server.Serve(ln) }()
	t.Cleanup(func() { _ = ln.Close() })

	return &fasthttp.Client{
		Dial: func(addr string) (net.Conn, error) {
			return ln.Dial()
		},
	}
}

func TestSMSGatewaySend(t *testing.T) {
	var got smsPayload
	var auth string
	client := startGateway(t, func(ctx *fasthttp.RequestCtx) {
		auth = string(ctx.Request.Header.Peek("Authorization"))
		_ = json.Unmarshal(ctx.PostBody(), &got)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"id":"msg-1","status":"queued"}`)
	})

	gw := NewSMSGateway("http://sms.test/v1/messages", "secret", "ACME", client)
	err := gw.Send(context.Background(), "+33612345678", "ignored", "Invoice overdue")
	require.NoError(t, err)

	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "+33612345678", got.To)
	assert.Equal(t, "Invoice overdue", got.Message)
	assert.Equal(t, "ACME", got.Sender)
}

func TestSMSGatewayErrorStatus(t *testing.T) {
	client := startGateway(t, func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		ctx.SetBodyString(`{"error":"invalid number"}`)
	})

	gw := NewSMSGateway("http://sms.test/v1/messages", "", "", client)
	err := gw.Send(context.Background(), "123", "", "hi")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "invalid number"))
}

func TestSMSGatewayDeadline(t *testing.T) {
	client := startGateway(t, func(ctx *fasthttp.RequestCtx) {
		time.Sleep(200 * time.Millisecond)
		ctx.SetBodyString(`{"id":"late"}`)
	})

	gw := NewSMSGateway("http://sms.test/v1/messages", "", "", client)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := gw.Send(ctx, "123", "", "hi")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSMSGatewayCancelledContext(t *testing.T) {
	gw := NewSMSGateway("http://sms.test/v1/messages", "", "", nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, gw.Send(ctx, "123", "", "hi"), context.Canceled)
}
