package eventchannel

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"
	"path"
)

// Sender delivers one gzipped batch.
type Sender = func(payload []byte) error

// NewHttpSender posts batches to endpoint. scope is sent in the X-Scope header when set.
func NewHttpSender(client *http.Client, endpoint, scope string) Sender {
	return func(payload []byte) error {
		req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return err
		}

		req.Header.Set("Content-Type", "application/octet-stream")
		req.Header.Set("Content-Encoding", "gzip")
		if scope != "" {
			req.Header.Set("X-Scope", scope)
		}

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("wrong code received %d instead of %d", resp.StatusCode, http.StatusOK)
		}
		return nil
	}
}

// BuildEndpointSender posts batches to <baseURL>/intake/<route>.
func BuildEndpointSender(client *http.Client, baseURL, route, scope string) (Sender, error) {
	endpoint, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	endpoint.Path = path.Join(endpoint.Path, "intake", route)
	return NewHttpSender(client, endpoint.String(), scope), nil
}
