package token

import (
	"fmt"
	"strconv"
	"time"

	jwt "github.com/golang-jwt/jwt/v4"

	"github.com/letitbank/go-bank-ledger/internal/app/core/domain"
)

// CustomClaims 存取權杖內容，sub 為使用者 ID
type CustomClaims struct {
	Username string `json:"name"`
	jwt.RegisteredClaims
}

// CreateAccessToken 簽發 HS256 存取權杖
func CreateAccessToken(user *domain.User, secret string, expiry time.Duration) (string, error) {
	claims := &CustomClaims{
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ExtractUserID 驗證權杖並取出使用者 ID
// 簽名不符、過期、或 alg 非 HMAC 一律視為無效
func ExtractUserID(tokenStr, secret string) (int64, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return 0, err
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return 0, fmt.Errorf("invalid token")
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid token subject: %w", err)
	}
	return userID, nil
}
