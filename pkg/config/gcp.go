package config

import (
	"strings"

	"google.golang.org/api/option"
)

// ClientOptions returns the credential option for Google clients followed by
// extra. Inline JSON wins over a key file; with neither set the clients fall
// back to application default credentials.
func (c GCPConfig) ClientOptions(extra ...option.ClientOption) []option.ClientOption {
	var opts []option.ClientOption
	switch {
	case strings.TrimSpace(c.CredentialsJSON) != "":
		opts = append(opts, option.WithCredentialsJSON([]byte(c.CredentialsJSON)))
	case strings.TrimSpace(c.ApplicationCredentials) != "":
		opts = append(opts, option.WithCredentialsFile(c.ApplicationCredentials))
	}
	return append(opts, extra...)
}
