package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleVolunteer = "volunteer"
	RoleOperator  = "operator"
	RoleAdmin     = "admin"
)

var ErrInvalidSubject = errors.New("sub must be a positive account id")

// Claims: sub = アカウントID（10進文字列）
type Claims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

func (c *Claims) AccountID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidSubject
	}
	return id, nil
}

// NewAccessToken: HS256 で署名したアクセストークンを発行（開発用 CLI とテストで使用）
func NewAccessToken(secret []byte, accountID int64, role string, ttl time.Duration, now time.Time) (string, error) {
	if accountID <= 0 {
		return "", ErrInvalidSubject
	}
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(accountID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseAccessToken: alg 固定で検証して Claims を返す
func ParseAccessToken(secret []byte, tokenStr string) (*Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		// alg 固定（none攻撃とか回避）
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if token == nil || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return &claims, nil
}
