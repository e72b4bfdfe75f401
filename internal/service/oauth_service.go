package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/resumekit/resumekit/internal/config"
	"github.com/resumekit/resumekit/internal/domain"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	EmailVerified  bool
}

// OAuthProvider abstracts the code exchange so tests can stub Google.
//
//go:generate mockgen -source=oauth_service.go -destination=mock_oauth_provider.go -package=service
type OAuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	FetchUserInfo(ctx context.Context, token *oauth2.Token) (*OAuthUserInfo, error)
}

type GoogleOAuthProvider struct {
	cfg *oauth2.Config
}

func NewGoogleOAuthProvider(cfg *config.Config) *GoogleOAuthProvider {
	oc := &oauth2.Config{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     google.Endpoint,
	}
	return &GoogleOAuthProvider{cfg: oc}
}

func (p *GoogleOAuthProvider) AuthCodeURL(state string) string {
	return p.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.SetAuthURLParam("prompt", "consent"))
}

func (p *GoogleOAuthProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return p.cfg.Exchange(ctx, code)
}

// googleUserInfo mirrors the openidconnect userinfo payload.
type googleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	EmailVerified bool   `json:"email_verified"`
}

func (g googleUserInfo) toUserInfo() (*OAuthUserInfo, error) {
	if g.Sub == "" || g.Email == "" {
		return nil, errors.New("userinfo response missing subject or email")
	}
	return &OAuthUserInfo{
		ProviderUserID: g.Sub,
		Email:          strings.ToLower(g.Email),
		Name:           g.Name,
		EmailVerified:  g.EmailVerified,
	}, nil
}

func (p *GoogleOAuthProvider) FetchUserInfo(ctx context.Context, token *oauth2.Token) (*OAuthUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleUserInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.cfg.Client(ctx, token).Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo request failed with status %d", resp.StatusCode)
	}
	var payload googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode userinfo response: %w", err)
	}
	return payload.toUserInfo()
}

// OAuthService turns a Google authorization code into a signed-in account by
// handing the verified identity to the account state machine.
type OAuthService struct {
	provider OAuthProvider
	accounts *AccountSecurityService
}

func NewOAuthService(provider OAuthProvider, accounts *AccountSecurityService) *OAuthService {
	return &OAuthService{provider: provider, accounts: accounts}
}

func (s *OAuthService) LoginURL(state string) string {
	return s.provider.AuthCodeURL(state)
}

func (s *OAuthService) HandleGoogleCallback(ctx context.Context, code string) (*domain.Account, error) {
	token, err := s.provider.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	info, err := s.provider.FetchUserInfo(ctx, token)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, errors.New("empty userinfo response")
	}
	if !info.EmailVerified {
		return nil, errors.New("google email not verified")
	}
	return s.accounts.ExternalSignIn(ctx, info.Email, info.Name)
}
