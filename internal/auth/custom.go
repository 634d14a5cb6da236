package auth

import (
	"context"
	"net/http"

	"github.com/hook0/webhooks-core/internal/storage"
)

// customProvider attaches static headers and query params, for targets
// that use an ad-hoc scheme not covered by the other kinds.
type customProvider struct {
	cfg *storage.AuthenticationConfig
}

func newCustomProvider(cfg *storage.AuthenticationConfig) *customProvider {
	return &customProvider{cfg: cfg}
}

func (p *customProvider) Kind() storage.AuthKind              { return storage.AuthKindCustom }
func (p *customProvider) RefreshIfNeeded(context.Context) error { return nil }
func (p *customProvider) ClientIdentity() *ClientIdentity     { return nil }

func (p *customProvider) Authenticate(_ context.Context, req *http.Request) error {
	for k, v := range p.cfg.Headers {
		req.Header.Set(k, v)
	}
	if len(p.cfg.QueryParams) > 0 {
		q := req.URL.Query()
		for k, v := range p.cfg.QueryParams {
			q.Set(k, v)
		}
		req.URL.RawQuery = q.Encode()
	}
	return nil
}
