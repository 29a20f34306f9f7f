package identity

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/BaSui01/pathfinder/planner"
	"github.com/BaSui01/pathfinder/types"
)

const sourceGoogle = "google"

// TokenSource yields a user's identity-provider access token.
type TokenSource interface {
	IdPToken(ctx context.Context, userID string) (string, error)
}

type freeBusyRequest struct {
	TimeMin string         `json:"timeMin"`
	TimeMax string         `json:"timeMax"`
	Items   []freeBusyItem `json:"items"`
}

type freeBusyItem struct {
	ID string `json:"id"`
}

type freeBusyResponse struct {
	Calendars map[string]struct {
		Busy []struct {
			Start string `json:"start"`
			End   string `json:"end"`
		} `json:"busy"`
		Errors []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"calendars"`
}

// Google calls Gmail and Calendar with the user's Google token.
type Google struct {
	tokens  TokenSource
	baseURL string
	timeout time.Duration
	logger  *zap.Logger
}

// NewGoogle creates a Google API client that resolves tokens through tokens.
func NewGoogle(cfg Config, tokens TokenSource, logger *zap.Logger) *Google {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Google{
		tokens:  tokens,
		baseURL: strings.TrimRight(cfg.GoogleURL, "/"),
		timeout: cfg.Timeout,
		logger:  logger.With(zap.String("component", "google")),
	}
}

func (g *Google) client(ctx context.Context, userID string) (*http.Client, error) {
	tok, err := g.tokens.IdPToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	c := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok, TokenType: "Bearer"}))
	c.Timeout = g.timeout
	return c, nil
}

func (g *Google) postJSON(ctx context.Context, userID, path string, in, out any) error {
	c, err := g.client(ctx, userID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return types.NewInvalidRequestError(err.Error()).WithSource(sourceGoogle)
	}
	req.Header.Set("Content-Type", "application/json")
	return doJSON(c, req, sourceGoogle, out)
}

// SendEmail sends msg from the user's Gmail account.
func (g *Google) SendEmail(ctx context.Context, userID string, msg planner.EmailMessage) error {
	if msg.To == "" {
		return types.NewInvalidRequestError("email recipient is required").WithSource(sourceGoogle)
	}
	raw := base64.URLEncoding.EncodeToString(RenderMessage(msg))
	if err := g.postJSON(ctx, userID, "/gmail/v1/users/me/messages/send", map[string]string{"raw": raw}, nil); err != nil {
		return err
	}
	g.logger.Info("email sent", zap.String("user_id", userID), zap.String("subject", msg.Subject))
	return nil
}

// RenderMessage renders msg as a plain-text RFC 5322 message.
func RenderMessage(msg planner.EmailMessage) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	if msg.ReplyTo != "" {
		fmt.Fprintf(&b, "Reply-To: %s\r\n", msg.ReplyTo)
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	b.WriteString(msg.Body)
	return b.Bytes()
}

// HasConflict reports whether the user's primary calendar has any busy block
// overlapping [start, end).
func (g *Google) HasConflict(ctx context.Context, userID string, start, end time.Time) (bool, error) {
	body := freeBusyRequest{
		TimeMin: start.UTC().Format(time.RFC3339),
		TimeMax: end.UTC().Format(time.RFC3339),
		Items:   []freeBusyItem{{ID: "primary"}},
	}
	var resp freeBusyResponse
	if err := g.postJSON(ctx, userID, "/calendar/v3/freeBusy", body, &resp); err != nil {
		return false, err
	}
	cal, ok := resp.Calendars["primary"]
	if !ok {
		return false, nil
	}
	if len(cal.Errors) > 0 {
		return false, types.NewUpstreamError(sourceGoogle, http.StatusBadGateway, "freeBusy: "+cal.Errors[0].Reason)
	}
	return len(cal.Busy) > 0, nil
}

// Service bundles the Auth0 and Google clients behind the planner's
// profile, consent and calendar interfaces.
type Service struct {
	*Auth0
	*Google
}

// NewService wires an Auth0 client and a Google client that borrows its IdP tokens.
func NewService(cfg Config, logger *zap.Logger) *Service {
	a := NewAuth0(cfg, logger)
	return &Service{Auth0: a, Google: NewGoogle(cfg, a, logger)}
}

var (
	_ planner.ProfileService  = (*Service)(nil)
	_ planner.ConsentService  = (*Service)(nil)
	_ planner.CalendarChecker = (*Service)(nil)
)
