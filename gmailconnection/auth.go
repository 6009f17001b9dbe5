// SPDX-License-Identifier: GPL-3.0-or-later
package gmailconnection

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// NewService builds an authenticated Gmail service from an oauth
// client secret and a previously cached token. Obtaining the initial
// token is an interactive browser flow and out of scope here; a
// missing token file is reported as an error with instructions.
func NewService(ctx context.Context, credentialsFile, tokenFile string) (*gmailv1.Service, error) {
	credentials, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("could not read oauth credentials file %s: %w", credentialsFile, err)
	}

	oauthConfig, err := google.ConfigFromJSON(credentials, gmailv1.GmailModifyScope)
	if err != nil {
		return nil, fmt.Errorf("could not parse oauth credentials: %w", err)
	}

	token, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("could not load cached oauth token, run the authorization flow and save the token to %s: %w", tokenFile, err)
	}

	svc, err := gmailv1.NewService(ctx, option.WithHTTPClient(oauthConfig.Client(ctx, token)))
	if err != nil {
		return nil, fmt.Errorf("could not create gmail service: %w", err)
	}

	return svc, nil
}

func tokenFromFile(filename string) (*oauth2.Token, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	token := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(token)
	if err != nil {
		return nil, fmt.Errorf("could not decode token file: %w", err)
	}
	return token, nil
}
