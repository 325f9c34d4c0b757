package mcp

import (
	"net/http"
	"os"
	"os/exec"
	"sort"

	"github.com/cockroachdb/errors"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewTransport returns the client transport for the connection
func NewTransport(conn *Connection) (sdk.Transport, error) {
	switch conn.Type {
	case TypeStdio:
		cmd := exec.Command(conn.Command, conn.Args...)
		if len(conn.Env) > 0 {
			cmd.Env = append(os.Environ(), envList(conn.Env)...)
		}
		// the server logs go to our stderr
		cmd.Stderr = os.Stderr
		return &sdk.CommandTransport{Command: cmd}, nil
	case TypeSSE:
		return &sdk.SSEClientTransport{
			Endpoint:   conn.URL,
			HTTPClient: httpClient(conn.Headers),
		}, nil
	case TypeStreamable:
		return &sdk.StreamableClientTransport{
			Endpoint:   conn.URL,
			HTTPClient: httpClient(conn.Headers),
		}, nil
	default:
		return nil, errors.Newf("unsupported mcp connection type: %q", conn.Type)
	}
}

func envList(env map[string]string) []string {
	res := make([]string, 0, len(env))
	for k, v := range env {
		res = append(res, k+"="+v)
	}
	sort.Strings(res)
	return res
}

func httpClient(headers map[string]string) *http.Client {
	if len(headers) == 0 {
		return nil
	}
	return &http.Client{
		Transport: &headerTransport{
			headers: headers,
			base:    http.DefaultTransport,
		},
	}
}

// headerTransport sets the configured headers on every request
type headerTransport struct {
	headers map[string]string
	base    http.RoundTripper
}

func (t *headerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	for k, v := range t.headers {
		r.Header.Set(k, v)
	}
	return t.base.RoundTrip(r)
}
