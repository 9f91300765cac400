package middleware

import (
	"errors"
	"net/http"
	"strings"

	"particle-universe/pkg/auth"
	"particle-universe/pkg/common"

	"github.com/awslabs/aws-lambda-go-api-proxy/core"
	"go.uber.org/zap"
)

// Authenticator validates bearer tokens and puts the caller into the
// request context. Behind API Gateway the JWT authorizer has already run,
// so its claims are trusted when trustGateway is set.
type Authenticator struct {
	validator    *auth.JWTValidator
	limiter      *auth.UserRateLimiter
	trustGateway bool
	logger       *zap.Logger
}

// NewAuthenticator creates the authentication middleware. limiter may be nil.
func NewAuthenticator(validator *auth.JWTValidator, limiter auth.RateLimiter, trustGateway bool, logger *zap.Logger) *Authenticator {
	var users *auth.UserRateLimiter
	if limiter != nil {
		users = auth.NewUserRateLimiter(limiter)
	}
	return &Authenticator{
		validator:    validator,
		limiter:      users,
		trustGateway: trustGateway,
		logger:       logger,
	}
}

// Middleware authenticates every request it wraps
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, roles, ok := a.fromGateway(r)
		if !ok {
			claims, err := a.validate(r)
			if err != nil {
				a.logger.Debug("Rejected token",
					zap.String("path", r.URL.Path),
					zap.Error(err),
				)
				respondUnauthorized(w, err)
				return
			}
			userID, roles = claims.UserID, claims.Roles
		}

		if a.limiter != nil {
			allowed, err := a.limiter.Allow(r.Context(), userID)
			if err != nil {
				a.logger.Warn("Rate limiter error", zap.Error(err))
			}
			if !allowed {
				common.RespondError(w, http.StatusTooManyRequests, common.StandardErrorCodes.TooManyRequests, "Rate limit exceeded")
				return
			}
		}

		ctx := common.WithUserID(r.Context(), userID)
		ctx = common.WithUserRoles(ctx, roles)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) validate(r *http.Request) (*auth.Claims, error) {
	if a.validator == nil {
		return nil, auth.ErrMissingToken
	}
	return a.validator.ValidateToken(extractToken(r))
}

// fromGateway reads the claims API Gateway's JWT authorizer attached to the
// Lambda request
func (a *Authenticator) fromGateway(r *http.Request) (string, []string, bool) {
	if !a.trustGateway {
		return "", nil, false
	}

	reqCtx, ok := core.GetAPIGatewayV2ContextFromContext(r.Context())
	if !ok || reqCtx.Authorizer == nil || reqCtx.Authorizer.JWT == nil {
		return "", nil, false
	}

	claims := reqCtx.Authorizer.JWT.Claims
	userID := claims["sub"]
	if userID == "" {
		return "", nil, false
	}

	var roles []string
	if raw := strings.Trim(claims["roles"], "[]"); raw != "" {
		for _, role := range strings.FieldsFunc(raw, func(c rune) bool { return c == ',' || c == ' ' }) {
			roles = append(roles, role)
		}
	}
	return userID, roles, true
}

// RequireRole creates middleware that requires one of roles
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, role := range roles {
				if common.HasRole(r.Context(), role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			common.RespondError(w, http.StatusForbidden, common.StandardErrorCodes.Forbidden, "Insufficient permissions")
		})
	}
}

// extractToken extracts the JWT token from the Authorization header
func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return parts[1]
	}
	return header
}

func respondUnauthorized(w http.ResponseWriter, err error) {
	message := "Invalid token"
	switch {
	case errors.Is(err, auth.ErrMissingToken):
		message = "Missing authentication token"
	case errors.Is(err, auth.ErrExpiredToken):
		message = "Token has expired"
	case errors.Is(err, auth.ErrInvalidSignature):
		message = "Invalid token signature"
	}
	common.RespondError(w, http.StatusUnauthorized, common.StandardErrorCodes.Unauthorized, message)
}
