package utils

import (
	"fmt"
	"os"
	"time"

	"cbs/src/types"

	"github.com/golang-jwt/jwt/v4"
)

func IsProd() bool {
	return os.Getenv("API_ENV") == string(types.Production)
}

// WithSuffix appends the environment name to a queue/topic name so shared
// infra can serve more than one deployment.
func WithSuffix(name string) string {
	env := os.Getenv("API_ENV")
	if env == "" || env == string(types.Production) {
		return name
	}
	return fmt.Sprintf("%s-%s", name, env)
}

func GenerateJWT(email string, userId uint, role string) (string, error) {
	jwtKey := []byte(os.Getenv("JWT_SECRET"))
	claims := types.Claims{
		Username: email,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", userId),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	return token.SignedString(jwtKey)
}
