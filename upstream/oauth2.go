package upstream

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jrsteele09/dashboard-gateway/internal/errors"
	"golang.org/x/oauth2"
)

// OAuth2Refresher renews credentials with the RFC 6749 refresh_token grant
// against a standard token endpoint.
type OAuth2Refresher struct {
	config     *oauth2.Config
	httpClient *http.Client
}

var _ Refresher = (*OAuth2Refresher)(nil)

func NewOAuth2Refresher(tokenURL, clientID, clientSecret string, httpClient *http.Client) *OAuth2Refresher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &OAuth2Refresher{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  tokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
	}
}

func (o *OAuth2Refresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, errors.Wrapf(errors.ErrNoRefreshToken, "[upstream OAuth2Refresher]")
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)
	tok, err := o.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil && rejectsRefresh(retrieveErr.Response.StatusCode) {
			return nil, &Failure{
				Status:  retrieveErr.Response.StatusCode,
				Message: oauth2Message(retrieveErr),
				cause:   errors.ErrRefreshRejected,
			}
		}
		return nil, fmt.Errorf("[upstream OAuth2Refresher] %w: %v", errors.ErrUpstreamUnavailable, err)
	}
	return tok, nil
}

func oauth2Message(err *oauth2.RetrieveError) string {
	if err.ErrorDescription != "" {
		return err.ErrorDescription
	}
	if err.ErrorCode != "" {
		return err.ErrorCode
	}
	return http.StatusText(err.Response.StatusCode)
}
