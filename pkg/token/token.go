package token

import (
	"errors"
	"fmt"
	"time"

	"lab-registration/internal/domain/user"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// Claims are the identity fields an upstream issuer puts in an access token
type Claims struct {
	Email     string `json:"email"`
	Name      string `json:"name"`
	ProgramID string `json:"program_id,omitempty"`
	Role      string `json:"role"`
	jwtv5.RegisteredClaims
}

// Verifier checks HS256 tokens and turns them into principals
type Verifier struct {
	secret []byte
	issuer string
}

func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		issuer: issuer,
	}
}

// Sign issues a token for p. It exists for tooling and tests; the service
// itself only verifies.
func (v *Verifier) Sign(p *user.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: p.Email,
		Name:  p.FullName,
		Role:  string(p.Role),
		RegisteredClaims: jwtv5.RegisteredClaims{
			Subject:   p.ID.String(),
			ID:        uuid.New().String(),
			Issuer:    v.issuer,
			IssuedAt:  jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(ttl)),
		},
	}
	if p.ProgramID != nil {
		claims.ProgramID = p.ProgramID.String()
	}

	return jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString(v.secret)
}

func (v *Verifier) Parse(tokenString string) (*Claims, error) {
	opts := []jwtv5.ParserOption{jwtv5.WithValidMethods([]string{jwtv5.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwtv5.WithIssuer(v.issuer))
	}

	token, err := jwtv5.ParseWithClaims(tokenString, &Claims{}, func(t *jwtv5.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}

// Resolve implements user.IdentityProvider
func (v *Verifier) Resolve(credential string) (*user.Principal, error) {
	claims, err := v.Parse(credential)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: subject is not a uuid", ErrTokenInvalid)
	}

	principal := &user.Principal{
		ID:       id,
		Email:    claims.Email,
		FullName: claims.Name,
		Role:     user.Role(claims.Role),
	}

	if claims.ProgramID != "" {
		programID, err := uuid.Parse(claims.ProgramID)
		if err != nil {
			return nil, fmt.Errorf("%w: program_id is not a uuid", ErrTokenInvalid)
		}
		principal.ProgramID = &programID
	}

	if principal.Role == "" {
		principal.Role = user.RoleStudent
	}

	if !principal.IsValid() {
		return nil, ErrTokenInvalid
	}

	return principal, nil
}

var _ user.IdentityProvider = (*Verifier)(nil)
