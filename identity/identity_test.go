package identity

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/pathfinder/planner"
	"github.com/BaSui01/pathfinder/types"
)

const testUser = "auth0|abc"

type tenant struct {
	t          *testing.T
	tokenCalls atomic.Int32
	cibaReply  string
	lastForm   map[string]string
	sentRaw    string
	busy       bool
}

func (tn *tenant) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(tn.t, r.ParseForm())
		w.Header().Set("Content-Type", "application/json")
		switch r.PostForm.Get("grant_type") {
		case "client_credentials":
			tn.tokenCalls.Add(1)
			assert.Equal(tn.t, "https://tenant.example/api/v2/", r.PostForm.Get("audience"))
			_, _ = w.Write([]byte(`{"access_token": "mgmt-token", "token_type": "Bearer", "expires_in": 86400}`))
		case cibaGrantType:
			assert.Equal(tn.t, "req-1", r.PostForm.Get("auth_req_id"))
			if tn.cibaReply == "" {
				_, _ = w.Write([]byte(`{"access_token": "user-token", "token_type": "Bearer"}`))
				return
			}
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error": "` + tn.cibaReply + `"}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	mux.HandleFunc("/api/v2/users/", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(tn.t, "Bearer mgmt-token", r.Header.Get("Authorization"))
		if !strings.HasSuffix(r.URL.Path, testUser) {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{
			"user_id": "auth0|abc", "email": "sam@example.com", "name": "Sam",
			"user_metadata": {"vegetarian": true, "wheelchair": false, "nickname": "s"},
			"app_metadata": {"wheelchair": true},
			"identities": [
				{"provider": "auth0", "connection": "Username-Password"},
				{"provider": "google-oauth2", "connection": "google-oauth2", "access_token": "goog-token"}
			]
		}`))
	})
	mux.HandleFunc("/bc-authorize", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(tn.t, r.ParseForm())
		tn.lastForm = map[string]string{}
		for k := range r.PostForm {
			tn.lastForm[k] = r.PostForm.Get(k)
		}
		_, _ = w.Write([]byte(`{"auth_req_id": "req-1", "expires_in": 300, "interval": 5}`))
	})
	mux.HandleFunc("/gmail/v1/users/me/messages/send", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(tn.t, "Bearer goog-token", r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(tn.t, json.NewDecoder(r.Body).Decode(&body))
		tn.sentRaw = body["raw"]
		_, _ = w.Write([]byte(`{"id": "m1"}`))
	})
	mux.HandleFunc("/calendar/v3/freeBusy", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(tn.t, "Bearer goog-token", r.Header.Get("Authorization"))
		var req freeBusyRequest
		require.NoError(tn.t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(tn.t, "2026-10-19T18:00:00Z", req.TimeMin)
		assert.Equal(tn.t, "2026-10-19T21:00:00Z", req.TimeMax)
		busy := `[]`
		if tn.busy {
			busy = `[{"start": "2026-10-19T19:00:00Z", "end": "2026-10-19T20:00:00Z"}]`
		}
		_, _ = w.Write([]byte(`{"calendars": {"primary": {"busy": ` + busy + `}}}`))
	})
	return mux
}

func newTestService(t *testing.T) (*Service, *tenant) {
	t.Helper()
	tn := &tenant{t: t}
	srv := httptest.NewServer(tn.handler())
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.Domain = "tenant.example"
	cfg.ClientID = "cid"
	cfg.ClientSecret = "secret"
	cfg.BaseURL = srv.URL
	cfg.GoogleURL = srv.URL
	return NewService(cfg, zap.NewNop()), tn
}

func TestAuth0_Profile(t *testing.T) {
	svc, tn := newTestService(t)

	p, err := svc.Profile(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, &planner.Profile{
		UserID:      testUser,
		Email:       "sam@example.com",
		Name:        "Sam",
		Preferences: map[string]bool{"vegetarian": true, "wheelchair": true},
	}, p)

	_, err = svc.Profile(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, int32(1), tn.tokenCalls.Load(), "management token is cached")
}

func TestAuth0_ProfileErrors(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Profile(context.Background(), "")
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))

	_, err = svc.Profile(context.Background(), "auth0|nobody")
	assert.True(t, types.IsErrorCode(err, types.ErrNotFound))
}

func TestAuth0_IdPToken(t *testing.T) {
	svc, _ := newTestService(t)

	tok, err := svc.IdPToken(context.Background(), testUser)
	require.NoError(t, err)
	assert.Equal(t, "goog-token", tok)

	svc.Auth0.cfg.Connection = "github"
	_, err = svc.IdPToken(context.Background(), testUser)
	assert.True(t, types.IsErrorCode(err, types.ErrNotFound))
}

func TestAuth0_RequestApproval(t *testing.T) {
	svc, tn := newTestService(t)

	id, err := svc.RequestApproval(context.Background(), testUser, "Pathfinder: email Lantern")
	require.NoError(t, err)
	assert.Equal(t, "req-1", id)

	assert.Equal(t, "cid", tn.lastForm["client_id"])
	assert.Equal(t, "Pathfinder: email Lantern", tn.lastForm["binding_message"])
	assert.Equal(t, "openid", tn.lastForm["scope"])

	var hint map[string]string
	require.NoError(t, json.Unmarshal([]byte(tn.lastForm["login_hint"]), &hint))
	assert.Equal(t, "iss_sub", hint["format"])
	assert.Equal(t, testUser, hint["sub"])
}

func TestAuth0_PollApproval(t *testing.T) {
	tests := []struct {
		reply   string
		want    planner.ApprovalStatus
		wantErr bool
	}{
		{reply: "", want: planner.ApprovalApproved},
		{reply: "authorization_pending", want: planner.ApprovalPending},
		{reply: "slow_down", want: planner.ApprovalPending},
		{reply: "access_denied", want: planner.ApprovalRejected},
		{reply: "expired_token", want: planner.ApprovalError},
		{reply: "invalid_grant", want: planner.ApprovalError, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			svc, tn := newTestService(t)
			tn.cibaReply = tt.reply

			status, err := svc.PollApproval(context.Background(), "req-1")
			assert.Equal(t, tt.want, status)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestGoogle_SendEmail(t *testing.T) {
	svc, tn := newTestService(t)

	err := svc.SendEmail(context.Background(), testUser, planner.EmailMessage{
		To:      "sam@example.com",
		Subject: "Group availability at Lantern",
		Body:    "Hi there",
	})
	require.NoError(t, err)

	raw, err := base64.URLEncoding.DecodeString(tn.sentRaw)
	require.NoError(t, err)
	msg := string(raw)
	assert.Contains(t, msg, "To: sam@example.com\r\n")
	assert.Contains(t, msg, "Subject: Group availability at Lantern\r\n")
	assert.True(t, strings.HasSuffix(msg, "\r\n\r\nHi there"))

	err = svc.SendEmail(context.Background(), testUser, planner.EmailMessage{Subject: "x"})
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))
}

func TestRenderMessage_EncodesNonASCIISubject(t *testing.T) {
	msg := string(RenderMessage(planner.EmailMessage{To: "a@b.c", Subject: "Café night", Body: "b"}))
	assert.Contains(t, msg, "Subject: =?utf-8?q?Caf=C3=A9_night?=\r\n")
}

func TestRenderMessage_ReplyTo(t *testing.T) {
	msg := string(RenderMessage(planner.EmailMessage{To: "hello@cafe.example", ReplyTo: "sam@example.com", Subject: "s", Body: "b"}))
	assert.Contains(t, msg, "To: hello@cafe.example\r\nReply-To: sam@example.com\r\n")

	plain := string(RenderMessage(planner.EmailMessage{To: "hello@cafe.example", Subject: "s", Body: "b"}))
	assert.NotContains(t, plain, "Reply-To")
}

func TestGoogle_HasConflict(t *testing.T) {
	start := time.Date(2026, 10, 19, 14, 0, 0, 0, time.FixedZone("EDT", -4*3600))
	end := start.Add(3 * time.Hour)

	t.Run("free", func(t *testing.T) {
		svc, _ := newTestService(t)
		busy, err := svc.HasConflict(context.Background(), testUser, start, end)
		require.NoError(t, err)
		assert.False(t, busy)
	})

	t.Run("busy", func(t *testing.T) {
		svc, tn := newTestService(t)
		tn.busy = true
		busy, err := svc.HasConflict(context.Background(), testUser, start, end)
		require.NoError(t, err)
		assert.True(t, busy)
	})
}

func TestConfig_Enabled(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.Enabled())
	cfg.Domain, cfg.ClientID, cfg.ClientSecret = "d", "id", "s"
	assert.True(t, cfg.Enabled())
	assert.Equal(t, "https://d", cfg.tenantURL())
}
