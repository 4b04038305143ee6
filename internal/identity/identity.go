// Package identity links Discord users to GitHub accounts via the OAuth
// device flow and answers "who is this Discord user on GitHub".
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/wylited/usthingy/internal/database"
)

// ErrUnlinked means the Discord user has not completed account linking.
var ErrUnlinked = errors.New("no linked GitHub account")

// LinkTimeout bounds how long a device-flow authorization may stay pending.
const LinkTimeout = 15 * time.Minute

var githubEndpoint = oauth2.Endpoint{
	AuthURL:       "https://github.com/login/oauth/authorize",
	TokenURL:      "https://github.com/login/oauth/access_token",
	DeviceAuthURL: "https://github.com/login/device/code",
}

type Service struct {
	db     *database.Database
	oauth  *oauth2.Config
	logger *slog.Logger
}

func NewService(db *database.Database, clientID string, logger *slog.Logger) *Service {
	return &Service{
		db: db,
		oauth: &oauth2.Config{
			ClientID: clientID,
			Scopes:   []string{"repo", "read:org"},
			Endpoint: githubEndpoint,
		},
		logger: logger,
	}
}

// Resolve returns the GitHub login linked to a Discord user, or ErrUnlinked.
func (s *Service) Resolve(ctx context.Context, discordID string) (string, error) {
	link, err := s.db.GetLink(discordID)
	if err != nil {
		return "", fmt.Errorf("load link: %w", err)
	}
	if link == nil {
		return "", ErrUnlinked
	}
	return link.Login, nil
}

// BeginLink starts a device-flow authorization and returns the user code and
// verification URL to show the user.
func (s *Service) BeginLink(ctx context.Context) (*oauth2.DeviceAuthResponse, error) {
	resp, err := s.oauth.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("request device code: %w", err)
	}
	return resp, nil
}

// WaitForLink polls until the user authorizes the device code, then stores
// the link and returns the GitHub login. It gives up after LinkTimeout.
func (s *Service) WaitForLink(ctx context.Context, discordID string, auth *oauth2.DeviceAuthResponse) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, LinkTimeout)
	defer cancel()

	token, err := s.oauth.DeviceAccessToken(ctx, auth)
	if err != nil {
		return "", fmt.Errorf("device authorization: %w", err)
	}

	client := github.NewClient(s.oauth.Client(ctx, token))
	ghUser, _, err := client.Users.Get(ctx, "")
	if err != nil {
		return "", fmt.Errorf("fetch authorized user: %w", err)
	}
	login := ghUser.GetLogin()

	err = s.db.SaveLink(&database.Link{
		DiscordID: discordID,
		Login:     login,
		Token:     token.AccessToken,
	})
	if err != nil {
		return "", fmt.Errorf("save link: %w", err)
	}

	s.logger.Info("account linked", "discord", discordID, "login", login)
	return login, nil
}

// Unlink removes the stored link for a Discord user.
func (s *Service) Unlink(discordID string) error {
	return s.db.DeleteLink(discordID)
}
