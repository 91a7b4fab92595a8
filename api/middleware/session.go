package middleware

import (
	"net/http"
	"time"

	"github.com/healthplusinnovation/storefront/api/responses"
	"github.com/healthplusinnovation/storefront/pkg/config"
	pkgerrors "github.com/healthplusinnovation/storefront/pkg/errors"
	"github.com/healthplusinnovation/storefront/pkg/logger"
	"github.com/healthplusinnovation/storefront/pkg/session"
)

// BasketSession resolves the signed basket cookie into a session id. Requests without a valid
// cookie get a new session; cookies past half their lifetime are reissued so active shoppers
// keep their basket.
func BasketSession(cfg config.SessionConfig, secure bool, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			now := time.Now()

			sessionID := ""
			reissue := true
			if cookie, err := r.Cookie(cfg.CookieName); err == nil && cookie.Value != "" {
				claims, parseErr := session.Parse(cfg, cookie.Value)
				switch {
				case parseErr != nil:
					if logg != nil {
						logg.Warn(logg.WithField(ctx, "reason", parseErr.Error()), "basket_session.rejected")
					}
				default:
					sessionID = claims.SessionID()
					reissue = claims.ExpiresAt != nil && claims.ExpiresAt.Sub(now) < cfg.TTL/2
				}
			}
			if sessionID == "" {
				sessionID = session.NewSessionID()
			}

			if reissue {
				token, err := session.Mint(cfg, now, sessionID)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "issue basket session"))
					return
				}
				http.SetCookie(w, &http.Cookie{
					Name:     cfg.CookieName,
					Value:    token,
					Path:     "/",
					MaxAge:   int(cfg.TTL.Seconds()),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx = WithSessionID(ctx, sessionID)
			if logg != nil {
				ctx = logg.WithSessionID(ctx, sessionID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
