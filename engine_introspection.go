package authcore

import (
	"github.com/awe-platform/authcore/rbac"
	"github.com/awe-platform/authcore/token"
)

// VerifyAccess validates an access token for request middleware. No
// storage is touched; the claims are exactly what finalization embedded.
func (e *Engine) VerifyAccess(raw string) (*token.AccessClaims, error) {
	claims, err := e.tokens.VerifyAccess(raw)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Authorize checks an already-verified token against one required
// permission, honoring the all:manage and <resource>:manage wildcards.
func (e *Engine) Authorize(claims *token.AccessClaims, required string) error {
	if claims == nil {
		return ErrInvalidToken
	}
	set := rbac.NewPermissionSet(claims.Permissions...)
	if set.Contains(rbac.PermAllManage) || set.Has(required) {
		return nil
	}
	return ErrForbidden
}
