package room

import (
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Grant describes what a token holder may do in a room.
type Grant struct {
	Room     string `json:"room"`
	RoomJoin bool   `json:"roomJoin"`
	CanSpeak bool   `json:"canPublish"`
	CanHear  bool   `json:"canSubscribe"`
}

// Claims is the JWT payload for a room join token.
type Claims struct {
	Grant    Grant  `json:"video"`
	Metadata string `json:"metadata,omitempty"`
	jwt.RegisteredClaims
}

// TokenIssuer mints room join tokens signed with the media server's API
// secret.
type TokenIssuer struct {
	APIKey    string
	APISecret string
	TTL       time.Duration
}

// JoinToken creates a signed token granting identity access to roomName.
func (i TokenIssuer) JoinToken(roomName, identity, metadata string) (string, error) {
	if i.APIKey == "" || i.APISecret == "" {
		return "", fmt.Errorf("token issuer missing api credentials")
	}
	ttl := i.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}

	claims := Claims{
		Grant: Grant{
			Room:     roomName,
			RoomJoin: true,
			CanSpeak: true,
			CanHear:  true,
		},
		Metadata: metadata,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			Issuer:    i.APIKey,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(i.APISecret))
}

// ParseToken validates a join token and returns its claims.
func ParseToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}

// JoinURL builds the browser link a participant opens to enter the room.
func JoinURL(frontendURL, roomName, token string) string {
	return fmt.Sprintf("%s?room=%s&token=%s",
		frontendURL, url.QueryEscape(roomName), url.QueryEscape(token))
}
