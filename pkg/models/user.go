package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Actor is the request-scoped identity passed explicitly into every review operation.
// Advisers are bound to exactly one owner; compliance reviewers are not bound.
type Actor struct {
	ID    string     `json:"id"`
	Name  string     `json:"name,omitempty"`
	Role  ReviewRole `json:"role"`
	Owner OwnerRef   `json:"owner,omitempty"`
}

// CanReviewAs reports whether the actor may act in the given stage.
func (a *Actor) CanReviewAs(role ReviewRole) bool {
	return a != nil && a.Role == role
}

// BoundTo reports whether an adviser actor is bound to ownerID.
func (a *Actor) BoundTo(ownerID string) bool {
	return a != nil && a.Owner.ID != "" && a.Owner.ID == ownerID
}

// TokenClaims represents the JWT token claims
type TokenClaims struct {
	ActorID   string     `json:"actor_id"`
	Name      string     `json:"name,omitempty"`
	Role      ReviewRole `json:"role"`
	OwnerKind OwnerKind  `json:"owner_kind,omitempty"`
	OwnerID   string     `json:"owner_id,omitempty"`
	Type      string     `json:"type"` // "access" or "refresh"
	Exp       int64      `json:"exp"`
	Iat       int64      `json:"iat"`
}

// Actor converts validated claims into the request-scoped actor.
func (c *TokenClaims) Actor() *Actor {
	a := &Actor{ID: c.ActorID, Name: c.Name, Role: c.Role}
	if c.OwnerID != "" {
		a.Owner = OwnerRef{Kind: c.OwnerKind, ID: c.OwnerID}
	}
	return a
}

// GetExpirationTime implements jwt.Claims interface
func (c *TokenClaims) GetExpirationTime() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Exp, 0)), nil
}

// GetIssuedAt implements jwt.Claims interface
func (c *TokenClaims) GetIssuedAt() (*jwt.NumericDate, error) {
	return jwt.NewNumericDate(time.Unix(c.Iat, 0)), nil
}

// GetNotBefore implements jwt.Claims interface
func (c *TokenClaims) GetNotBefore() (*jwt.NumericDate, error) {
	return nil, nil
}

// GetIssuer implements jwt.Claims interface
func (c *TokenClaims) GetIssuer() (string, error) {
	return "", nil
}

// GetSubject implements jwt.Claims interface
func (c *TokenClaims) GetSubject() (string, error) {
	return c.ActorID, nil
}

// GetAudience implements jwt.Claims interface
func (c *TokenClaims) GetAudience() (jwt.ClaimStrings, error) {
	return nil, nil
}
