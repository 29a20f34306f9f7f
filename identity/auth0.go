package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/BaSui01/pathfinder/internal/tlsutil"
	"github.com/BaSui01/pathfinder/planner"
	"github.com/BaSui01/pathfinder/types"
)

const (
	sourceAuth0      = "auth0"
	cibaGrantType    = "urn:openid:params:grant-type:ciba"
	defaultCIBAScope = "openid"
)

type auth0User struct {
	UserID       string         `json:"user_id"`
	Email        string         `json:"email"`
	Name         string         `json:"name"`
	UserMetadata map[string]any `json:"user_metadata"`
	AppMetadata  map[string]any `json:"app_metadata"`
	Identities   []struct {
		Provider    string `json:"provider"`
		Connection  string `json:"connection"`
		AccessToken string `json:"access_token"`
	} `json:"identities"`
}

type bcAuthorizeResponse struct {
	AuthReqID string `json:"auth_req_id"`
	ExpiresIn int    `json:"expires_in"`
	Interval  int    `json:"interval"`
}

// Auth0 talks to the Auth0 management and CIBA endpoints.
type Auth0 struct {
	cfg    Config
	mgmt   *http.Client
	plain  *http.Client
	logger *zap.Logger
}

// NewAuth0 creates an Auth0 client. The management token is fetched with the
// client credentials grant and refreshed on expiry.
func NewAuth0(cfg Config, logger *zap.Logger) *Auth0 {
	if logger == nil {
		logger = zap.NewNop()
	}
	plain := tlsutil.SecureHTTPClient(cfg.Timeout)
	cc := clientcredentials.Config{
		ClientID:       cfg.ClientID,
		ClientSecret:   cfg.ClientSecret,
		TokenURL:       cfg.tenantURL() + "/oauth/token",
		EndpointParams: url.Values{"audience": {cfg.managementAudience()}},
	}
	// 令牌请求复用带超时的 client
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, plain)
	mgmt := cc.Client(ctx)
	mgmt.Timeout = cfg.Timeout
	return &Auth0{
		cfg:    cfg,
		mgmt:   mgmt,
		plain:  plain,
		logger: logger.With(zap.String("component", "auth0")),
	}
}

func (a *Auth0) user(ctx context.Context, userID string) (*auth0User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, types.NewInvalidRequestError("user id is required").WithSource(sourceAuth0)
	}
	endpoint := a.cfg.tenantURL() + "/api/v2/users/" + url.PathEscape(userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, types.NewInvalidRequestError(err.Error()).WithSource(sourceAuth0)
	}
	var u auth0User
	if err := doJSON(a.mgmt, req, sourceAuth0, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Profile returns the caller's profile. Boolean metadata entries become
// preferences; app metadata wins over user metadata.
func (a *Auth0) Profile(ctx context.Context, userID string) (*planner.Profile, error) {
	u, err := a.user(ctx, userID)
	if err != nil {
		return nil, err
	}
	prefs := make(map[string]bool)
	for _, meta := range []map[string]any{u.UserMetadata, u.AppMetadata} {
		for k, v := range meta {
			if b, ok := v.(bool); ok {
				prefs[k] = b
			}
		}
	}
	return &planner.Profile{
		UserID:      userID,
		Email:       u.Email,
		Name:        u.Name,
		Preferences: prefs,
	}, nil
}

// IdPToken returns the upstream identity provider access token stored for
// the user's configured connection.
func (a *Auth0) IdPToken(ctx context.Context, userID string) (string, error) {
	u, err := a.user(ctx, userID)
	if err != nil {
		return "", err
	}
	for _, id := range u.Identities {
		if (id.Provider == a.cfg.Connection || id.Connection == a.cfg.Connection) && id.AccessToken != "" {
			return id.AccessToken, nil
		}
	}
	return "", types.NewError(types.ErrNotFound, fmt.Sprintf("no %s token for user", a.cfg.Connection)).
		WithHTTPStatus(http.StatusNotFound).
		WithSource(sourceAuth0)
}

// RequestApproval starts a backchannel authorization request and returns its id.
func (a *Auth0) RequestApproval(ctx context.Context, userID, bindingMessage string) (string, error) {
	hint, err := json.Marshal(map[string]string{
		"format": "iss_sub",
		"iss":    a.cfg.tenantURL() + "/",
		"sub":    userID,
	})
	if err != nil {
		return "", err
	}
	form := url.Values{
		"client_id":       {a.cfg.ClientID},
		"client_secret":   {a.cfg.ClientSecret},
		"login_hint":      {string(hint)},
		"binding_message": {bindingMessage},
		"scope":           {defaultCIBAScope},
	}
	if a.cfg.Audience != "" {
		form.Set("audience", a.cfg.Audience)
	}
	req, err := a.formRequest(ctx, "/bc-authorize", form)
	if err != nil {
		return "", err
	}
	var resp bcAuthorizeResponse
	if err := doJSON(a.plain, req, sourceAuth0, &resp); err != nil {
		return "", err
	}
	if resp.AuthReqID == "" {
		return "", types.NewError(types.ErrMalformedOutput, "bc-authorize returned no auth_req_id").WithSource(sourceAuth0)
	}
	a.logger.Info("approval requested", zap.String("user_id", userID), zap.Int("expires_in", resp.ExpiresIn))
	return resp.AuthReqID, nil
}

// PollApproval checks a backchannel request once.
func (a *Auth0) PollApproval(ctx context.Context, requestID string) (planner.ApprovalStatus, error) {
	form := url.Values{
		"grant_type":    {cibaGrantType},
		"auth_req_id":   {requestID},
		"client_id":     {a.cfg.ClientID},
		"client_secret": {a.cfg.ClientSecret},
	}
	req, err := a.formRequest(ctx, "/oauth/token", form)
	if err != nil {
		return planner.ApprovalError, err
	}
	req.Header.Set("Accept", "application/json")
	status, body, err := send(a.plain, req, sourceAuth0)
	if err != nil {
		return planner.ApprovalError, err
	}
	if status == http.StatusOK {
		return planner.ApprovalApproved, nil
	}

	var oe oauthError
	_ = json.Unmarshal(body, &oe)
	switch oe.Error {
	case "authorization_pending", "slow_down":
		return planner.ApprovalPending, nil
	case "access_denied":
		return planner.ApprovalRejected, nil
	case "expired_token":
		return planner.ApprovalError, nil
	}
	return planner.ApprovalError, types.FromHTTPStatus(sourceAuth0, status, strings.TrimSpace(string(body)))
}

func (a *Auth0) formRequest(ctx context.Context, path string, form url.Values) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.tenantURL()+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, types.NewInvalidRequestError(err.Error()).WithSource(sourceAuth0)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req, nil
}
