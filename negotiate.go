package signalr

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"
)

// availableTransport is one entry of negotiateResponse.AvailableTransports,
// grounded on negotiateresponse.go's availableTransport.
type availableTransport struct {
	Transport       string   `json:"transport"`
	TransferFormats []string `json:"transferFormats"`
}

// negotiateResponse is the decoded body of a POST .../negotiate call, per
// spec.md §3. Expanded from negotiateresponse.go's struct with the fields
// the connection state machine needs: redirect (URL), accessToken, error
// and useStatefulReconnect.
type negotiateResponse struct {
	ConnectionID         string               `json:"connectionId,omitempty"`
	ConnectionToken      string               `json:"connectionToken,omitempty"`
	NegotiateVersion     int                  `json:"negotiateVersion,omitempty"`
	AvailableTransports  []availableTransport `json:"availableTransports,omitempty"`
	URL                  string               `json:"url,omitempty"`
	AccessToken          string               `json:"accessToken,omitempty"`
	Error                string               `json:"error,omitempty"`
	UseStatefulReconnect bool                 `json:"useStatefulReconnect,omitempty"`
}

// normalize applies the negotiateVersion<1 => connectionToken:=connectionId
// rule from spec.md §3.
func (nr *negotiateResponse) normalize() {
	if nr.NegotiateVersion < 1 {
		nr.ConnectionToken = nr.ConnectionID
	}
}

func (nr *negotiateResponse) availableTransport(t TransportType) (availableTransport, bool) {
	for _, at := range nr.AvailableTransports {
		if parsed, ok := parseTransportType(at.Transport); ok && parsed == t {
			return at, true
		}
	}
	return availableTransport{}, false
}

// userAgentTarget and clientVersion make up the default User-Agent header
// built by defaultUserAgent, per spec.md §4.F.
const userAgentTarget = "go"
const clientVersion = "1.0.0"

func defaultUserAgent() string {
	return fmt.Sprintf("SignalR-Client-%s/%s", userAgentTarget, clientVersion)
}

// negotiateClient performs the HTTP negotiate handshake, per spec.md §4.F.
// The negotiate timeout (default 100s, spec.md §6) is applied by the caller
// via ctx, not by negotiateClient itself.
type negotiateClient struct {
	doer    Doer
	headers func() http.Header
}

// negotiate POSTs to the negotiate URL derived from base and decodes the
// response. It does not follow redirects itself - that loop lives in the
// connection state machine (spec.md §4.G step 2), since a redirect also
// swaps the access-token provider, which this function has no access to.
func (n *negotiateClient) negotiate(ctx context.Context, base *url.URL, useStatefulReconnect bool) (*negotiateResponse, error) {
	target := negotiateURL(base, useStatefulReconnect)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", defaultUserAgent())
	req.Header.Set("X-Request-ID", uuid.NewString())
	if n.headers != nil {
		for k, vs := range n.headers() {
			req.Header[k] = vs
		}
	}

	resp, err := n.doer.Do(req)
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		hint := ""
		if resp.StatusCode == http.StatusNotFound {
			hint = "not a SignalR endpoint or a proxy is blocking"
		}
		return nil, &NegotiateStatusError{StatusCode: resp.StatusCode, Hint: hint}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NegotiateDecodeError{Err: err}
	}

	nr := &negotiateResponse{}
	if err := json.Unmarshal(body, nr); err != nil {
		return nil, &NegotiateDecodeError{Err: err}
	}
	nr.normalize()

	if nr.Error != "" {
		return nil, &NegotiateDecodeError{Reason: nr.Error}
	}

	return nr, nil
}
