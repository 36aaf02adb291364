package paramstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"golang.org/x/oauth2/google"
)

// ssmAPI is the minimal AWS SSM interface required by Client.
// *ssm.Client from aws-sdk-go-v2 satisfies this interface.
type ssmAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Getter is the interface that wraps GetParameter.
// The FCM client loads its service account through it.
type Getter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// Client reads SecureString parameters from SSM.
type Client struct {
	api ssmAPI
}

// New creates a Client with the given SSM API implementation.
func New(api ssmAPI) (*Client, error) {
	if api == nil {
		return nil, errors.New("paramstore: api must not be nil")
	}
	return &Client{api: api}, nil
}

// GetParameter returns the decrypted value of the named parameter.
func (c *Client) GetParameter(ctx context.Context, name string) (string, error) {
	if c.api == nil {
		return "", errors.New("paramstore: client not initialized")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("paramstore: name is required")
	}

	withDecryption := true
	out, err := c.api.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &withDecryption,
	})
	if err != nil {
		return "", fmt.Errorf("paramstore: get parameter %q: %w", name, err)
	}
	if out == nil || out.Parameter == nil || out.Parameter.Value == nil {
		return "", errors.New("paramstore: parameter missing value")
	}
	return *out.Parameter.Value, nil
}

// serviceAccountKey holds the fields of a Google service account key that
// are checked before the key is handed to the oauth2 library.
type serviceAccountKey struct {
	Type        string `json:"type"`
	ProjectID   string `json:"project_id"`
	ClientEmail string `json:"client_email"`
}

// GoogleCredentials loads a Google service account key stored as JSON under
// name and returns credentials whose tokens carry scopes. Tokens are minted
// lazily and cached until they expire.
func GoogleCredentials(ctx context.Context, g Getter, name string, scopes ...string) (*google.Credentials, error) {
	if g == nil {
		return nil, errors.New("paramstore: getter must not be nil")
	}
	raw, err := g.GetParameter(ctx, name)
	if err != nil {
		return nil, err
	}
	var key serviceAccountKey
	if err := json.Unmarshal([]byte(raw), &key); err != nil {
		return nil, fmt.Errorf("paramstore: decode %q as JSON: %w", name, err)
	}
	if key.Type != "service_account" {
		return nil, fmt.Errorf("paramstore: %q is not a service account key (type %q)", name, key.Type)
	}
	if key.ProjectID == "" || key.ClientEmail == "" {
		return nil, fmt.Errorf("paramstore: service account key %q lacks project_id or client_email", name)
	}
	cfg, err := google.JWTConfigFromJSON([]byte(raw), scopes...)
	if err != nil {
		return nil, fmt.Errorf("paramstore: parse service account key %q: %w", name, err)
	}
	return &google.Credentials{
		ProjectID:   key.ProjectID,
		TokenSource: cfg.TokenSource(context.WithoutCancel(ctx)),
		JSON:        []byte(raw),
	}, nil
}
