package token

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
)

// GraphEndpoint builds the Microsoft identity platform v2.0 endpoint for a
// given tenant ("common" covers personal + work/school accounts).
func GraphEndpoint(tenantID string) oauth2.Endpoint {
	if tenantID == "" {
		tenantID = "common"
	}
	base := "https://login.microsoftonline.com/" + tenantID
	return oauth2.Endpoint{
		AuthURL:       base + "/oauth2/v2.0/authorize",
		TokenURL:      base + "/oauth2/v2.0/token",
		DeviceAuthURL: base + "/oauth2/v2.0/devicecode",
	}
}

// GraphRefresher is the Refresher implementation for Microsoft Graph: it
// exchanges a cached refresh token for a new access token against the
// Microsoft identity platform, the public-client flow used throughout the
// device-code authentication path (§4.3, §6 oauth-setup).
type GraphRefresher struct {
	oauthConfig oauth2.Config
}

// NewGraphRefresher builds a GraphRefresher for the given Azure AD
// application and tenant.
func NewGraphRefresher(clientID, tenantID string, scopes []string) *GraphRefresher {
	return &GraphRefresher{
		oauthConfig: oauth2.Config{
			ClientID: clientID,
			Endpoint: GraphEndpoint(tenantID),
			Scopes:   scopes,
		},
	}
}

// Refresh implements Refresher by exchanging tok's refresh token for a new
// access token. The account parameter is unused by the wire protocol but
// kept for interface symmetry with multi-account providers.
func (g *GraphRefresher) Refresh(ctx context.Context, account string, tok Token) (*oauth2.Token, error) {
	if tok.RefreshToken == "" {
		return nil, fmt.Errorf("token: graph: no refresh token cached for account %s", account)
	}
	src := g.oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: tok.RefreshToken})
	refreshed, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("token: graph: refreshing account %s: %w", account, err)
	}
	return refreshed, nil
}

// DeviceAuthorization is the subset of oauth2.DeviceAuthResponse the
// oauth-setup CLI surfaces to the operator.
type DeviceAuthorization struct {
	UserCode        string
	VerificationURI string
	Response        *oauth2.DeviceAuthResponse
}

// BeginDeviceAuth starts RFC 8628 device authorization against the
// configured tenant, returning the code and URL the operator must visit.
func (g *GraphRefresher) BeginDeviceAuth(ctx context.Context) (DeviceAuthorization, error) {
	resp, err := g.oauthConfig.DeviceAuth(ctx)
	if err != nil {
		return DeviceAuthorization{}, fmt.Errorf("token: graph: requesting device code: %w", err)
	}
	return DeviceAuthorization{
		UserCode:        resp.UserCode,
		VerificationURI: resp.VerificationURI,
		Response:        resp,
	}, nil
}

// PollDeviceAuth blocks until the operator completes the device flow (or it
// expires), returning the issued token.
func (g *GraphRefresher) PollDeviceAuth(ctx context.Context, auth DeviceAuthorization) (*oauth2.Token, error) {
	tok, err := g.oauthConfig.DeviceAccessToken(ctx, auth.Response)
	if err != nil {
		return nil, fmt.Errorf("token: graph: polling for device token: %w", err)
	}
	return tok, nil
}
