// ABOUTME: Tests for Gmail and Calendar transports against a local API server
// ABOUTME: Verifies raw message encoding and calendar obligation payloads
package transport

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/harperreed/relance/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

func TestGmailSenderSend(t *testing.T) {
	var raw string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/users/me/messages/send"), r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		var msg gmail.Message
		_ = json.Unmarshal(body, &msg)
		raw = msg.Raw
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"18c0ffee"}`))
	}))
	defer srv.Close()

	sender, err := NewGmailSender(context.Background(), "recouvrement@example.com",
		option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())
	require.NoError(t, err)

	require.NoError(t, sender.Send(context.Background(), "ap@acme.example", "Payment reminder", "Hello\nPlease pay"))

	decoded, err := base64.URLEncoding.DecodeString(raw)
	require.NoError(t, err)
	msg := string(decoded)
	assert.Contains(t, msg, "To: ap@acme.example\r\n")
	assert.Contains(t, msg, "From: recouvrement@example.com\r\n")
	assert.Contains(t, msg, "Hello\r\nPlease pay")
}

func TestGmailSenderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"forbidden"}}`, http.StatusForbidden)
	}))
	defer srv.Close()

	sender, err := NewGmailSender(context.Background(), "", option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())
	require.NoError(t, err)
	assert.Error(t, sender.Send(context.Background(), "x@example.com", "s", "b"))
}

func TestCalendarPublisher(t *testing.T) {
	var got calendar.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.Contains(r.URL.Path, "/calendars/collections/events"), r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"evt-42"}`))
	}))
	defer srv.Close()

	pub, err := NewCalendarPublisher(context.Background(), "collections", option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())
	require.NoError(t, err)

	ev := &models.RelanceEvent{
		ID:       uuid.New(),
		Date:     time.Date(2026, 4, 2, 0, 0, 0, 0, models.Location),
		Time:     "10:30",
		Type:     models.ActionCall,
		AssignTo: "marie@example.com",
	}
	d := &models.Dossier{ClientName: "Acme", ClientPhone: "+3311", TotalAmount: decimal.NewFromInt(800), DaysOverdue: 20}

	id, err := pub.Publish(context.Background(), ev, d)
	require.NoError(t, err)
	assert.Equal(t, "evt-42", id)
	assert.Equal(t, "Call Acme", got.Summary)
	assert.Contains(t, got.Description, "Phone: +3311")
	require.Len(t, got.Attendees, 1)

	start, err := time.Parse(time.RFC3339, got.Start.DateTime)
	require.NoError(t, err)
	assert.Equal(t, 10, start.In(models.Location).Hour())
	assert.Equal(t, 30, start.In(models.Location).Minute())
}

func TestOAuthConfigScopes(t *testing.T) {
	cfg := NewOAuthConfig("id", "secret")
	assert.ElementsMatch(t, []string{gmail.GmailSendScope, calendar.CalendarEventsScope}, cfg.Scopes)

	_, err := HTTPClient(context.Background(), NewOAuthConfig("", ""), &oauth2.Token{})
	assert.Error(t, err)
}

func TestTokenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens", "google.json")
	token := &oauth2.Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer"}

	require.NoError(t, SaveToken(path, token))
	loaded, err := LoadToken(path)
	require.NoError(t, err)
	assert.Equal(t, "r", loaded.RefreshToken)

	_, err = LoadToken(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestTokenPathXDG(t *testing.T) {
	assert.Equal(t, "google-credentials.json", filepath.Base(TokenPath()))
	assert.Equal(t, "relance", filepath.Base(filepath.Dir(TokenPath())))
}

func TestLogSender(t *testing.T) {
	s := NewLogSender(nil, "email")
	assert.NoError(t, s.Send(context.Background(), "a@b.c", "s", "b"))
}
