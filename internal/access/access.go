// Package access implements the administrator allowlist that guards the
// mutating API surface. The core modules never check roles themselves.
package access

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-vault/internal/domain"
	"github.com/aristath/sentinel-vault/internal/utils"
)

// CallerHeader carries the caller identity on API requests.
const CallerHeader = "X-Caller-Address"

type callerKey struct{}

// Controller holds the administrator allowlist.
type Controller struct {
	admins map[common.Address]struct{}
	log    zerolog.Logger
}

// NewController creates a controller. An empty allowlist rejects every
// administrative call.
func NewController(admins []common.Address, log zerolog.Logger) *Controller {
	return &Controller{
		admins: utils.AddressSet(admins),
		log:    log.With().Str("service", "access").Logger(),
	}
}

// Authorize fails with ErrUnauthorized unless caller is an administrator.
func (c *Controller) Authorize(caller common.Address) error {
	if caller == (common.Address{}) {
		return fmt.Errorf("%w: missing caller", domain.ErrUnauthorized)
	}
	if _, ok := c.admins[caller]; !ok {
		return fmt.Errorf("%w: %s is not an administrator", domain.ErrUnauthorized, caller.Hex())
	}
	return nil
}

// RequireAdmin rejects requests whose caller header is not on the allowlist.
func (c *Controller) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var caller common.Address
		if raw := r.Header.Get(CallerHeader); raw != "" {
			parsed, err := utils.ParseAddress(raw)
			if err != nil {
				utils.WriteError(w, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err), c.log)
				return
			}
			caller = parsed
		}

		if err := c.Authorize(caller); err != nil {
			c.log.Warn().
				Str("caller", caller.Hex()).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Msg("Rejected administrative request")
			utils.WriteError(w, err, c.log)
			return
		}

		ctx := context.WithValue(r.Context(), callerKey{}, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireCaller rejects requests without a well-formed caller header and
// stores the caller for handlers. Any address is accepted.
func (c *Controller) RequireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := utils.ParseAddress(r.Header.Get(CallerHeader))
		if err != nil || caller == (common.Address{}) {
			utils.WriteError(w, fmt.Errorf("%w: missing or invalid %s header", domain.ErrUnauthorized, CallerHeader), c.log)
			return
		}
		ctx := context.WithValue(r.Context(), callerKey{}, caller)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CallerFromContext returns the caller stored by RequireAdmin or RequireCaller.
func CallerFromContext(ctx context.Context) (common.Address, bool) {
	caller, ok := ctx.Value(callerKey{}).(common.Address)
	return caller, ok
}
