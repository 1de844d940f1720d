package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/justsurfingit/campus-job-board/internal/errors"
)

// ErrNoToken means no cached OAuth token exists; run the interactive login first.
var ErrNoToken = errors.New("no cached gmail token")

// GmailService builds a send-only Gmail client from the OAuth client file and
// the cached token. It never prompts.
func GmailService(ctx context.Context, credentialsFile, tokenFile string) (*gmail.Service, error) {
	config, err := oauthConfig(credentialsFile)
	if err != nil {
		return nil, err
	}
	tok, err := tokenFromFile(tokenFile)
	if err != nil {
		return nil, errors.WithHint(errors.Mark(err, ErrNoToken), "run `jobboardctl gmail-login` to authorize sending")
	}

	srv, err := gmail.NewService(ctx, option.WithHTTPClient(config.Client(ctx, tok)))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create gmail service")
	}
	return srv, nil
}

// Login runs the browser consent flow: it prints the consent URL to out,
// reads the code from in, and caches the token in tokenFile.
func Login(ctx context.Context, credentialsFile, tokenFile string, in io.Reader, out io.Writer) error {
	config, err := oauthConfig(credentialsFile)
	if err != nil {
		return err
	}

	authURL := config.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Fprintf(out, "Open this link to authorize sending application emails:\n%v\n", authURL)
	fmt.Fprint(out, "Paste the code here: ")

	var authCode string
	if _, err := fmt.Fscan(in, &authCode); err != nil {
		return errors.Wrap(err, "unable to read authorization code")
	}

	tok, err := config.Exchange(ctx, authCode)
	if err != nil {
		return errors.Wrap(err, "unable to retrieve token from web")
	}
	if err := saveToken(tokenFile, tok); err != nil {
		return err
	}
	fmt.Fprintf(out, "Saved token to %s\n", tokenFile)
	return nil
}

func oauthConfig(credentialsFile string) (*oauth2.Config, error) {
	b, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read client secret file %s", credentialsFile)
	}
	config, err := google.ConfigFromJSON(b, gmail.GmailSendScope)
	if err != nil {
		return nil, errors.Wrap(err, "unable to parse client secret file to config")
	}
	return config, nil
}

// Retrieves a token from a local file.
func tokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// Saves a token to a file path.
func saveToken(path string, token *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return errors.Wrapf(err, "unable to cache oauth token in %s", path)
	}
	defer f.Close()
	return json.NewEncoder(f).Encode(token)
}
