// Command oauth-setup runs the Microsoft Graph device-code authorization
// flow once, caching the resulting token for every other agent binary to
// use, and optionally verifies the result by sending a test email.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	flags "github.com/jessevdk/go-flags"

	"github.com/novotechno/collections/internal/agentctx"
	"github.com/novotechno/collections/pkg/graphmail"
	"github.com/novotechno/collections/pkg/token"
)

type options struct {
	ClientID  string `long:"client-id" description:"Azure AD application (client) ID" required:"true"`
	TenantID  string `long:"tenant-id" description:"Azure AD tenant ID" required:"true"`
	Scopes    string `long:"scopes" description:"Space-separated OAuth scopes" default:"offline_access Mail.Send Mail.Read"`
	AccountID string `long:"account-id" description:"Account identifier the token is cached under" default:"default"`
	TestEmail string `long:"test-email" description:"Send a test reminder to this address after authorizing"`
}

const deviceAuthTimeout = 15 * time.Minute

func main() {
	os.Exit(run())
}

func run() int {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			return 0
		}
		return 1
	}

	boot, err := agentctx.Load("oauth-setup")
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ loading config: %v\n", err)
		return 1
	}
	cfg, log := boot.Config, boot.Log

	ctx, cancel := context.WithTimeout(context.Background(), deviceAuthTimeout)
	defer cancel()

	scopes := strings.Fields(opts.Scopes)
	refresher := token.NewGraphRefresher(opts.ClientID, opts.TenantID, scopes)

	auth, err := refresher.BeginDeviceAuth(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ starting device authorization: %v\n", err)
		return 1
	}

	fmt.Printf("To sign in, visit %s and enter the code: %s\n", auth.VerificationURI, auth.UserCode)
	fmt.Println("Waiting for you to complete authorization...")

	oauthToken, err := refresher.PollDeviceAuth(ctx, auth)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ device authorization failed: %v\n", err)
		return 1
	}

	secrets, err := agentctx.OpenSecretStore(cfg.SecretsDir, cfg.InstallSaltPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ opening secret store: %v\n", err)
		return 1
	}
	cache := token.NewCache(secrets)

	cachedToken := token.Token{
		AccessToken:  oauthToken.AccessToken,
		TokenType:    oauthToken.TokenType,
		ExpiresAt:    oauthToken.Expiry,
		RefreshToken: oauthToken.RefreshToken,
		Scope:        opts.Scopes,
		AccountID:    opts.AccountID,
		CachedAt:     time.Now().UTC(),
	}
	if err := cache.Save("graph", opts.AccountID, cachedToken); err != nil {
		fmt.Fprintf(os.Stderr, "❌ caching token: %v\n", err)
		return 1
	}

	log.Info("oauth device authorization complete", "account", opts.AccountID)
	fmt.Println("Authorization complete. Token cached.")

	if opts.TestEmail == "" {
		return 0
	}

	validator := token.NewValidator(cache, refresher, nil, log)
	sender := &graphmail.Sender{Validator: validator, Provider: "graph", Account: opts.AccountID}
	if err := sender.SendCollectionReminder(opts.TestEmail, "Collections fleet test email", "This is a test message confirming the collections fleet can send email."); err != nil {
		fmt.Fprintf(os.Stderr, "❌ sending test email: %v\n", err)
		return 1
	}
	fmt.Printf("Test email sent to %s\n", opts.TestEmail)
	return 0
}
