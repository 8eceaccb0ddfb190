package server

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/crystal-mush/mushgames/pkg/gamedb"
)

// Claims holds the JWT claims for an authenticated player.
type Claims struct {
	PlayerRef  gamedb.DBRef `json:"player_ref"`
	PlayerName string       `json:"player_name"`
	jwt.RegisteredClaims
}

// AuthService issues and checks tokens for the web transport.
type AuthService struct {
	game   *Game
	jwtKey []byte
	expiry time.Duration
	now    func() time.Time
}

// NewAuthService creates an auth service. If jwtSecret is empty, a random
// 32-byte key is generated and tokens do not survive a restart.
func NewAuthService(game *Game, jwtSecret string, expirySeconds int) *AuthService {
	var key []byte
	if jwtSecret != "" {
		key = []byte(jwtSecret)
	} else {
		key = make([]byte, 32)
		rand.Read(key)
	}
	expiry := 24 * time.Hour
	if expirySeconds > 0 {
		expiry = time.Duration(expirySeconds) * time.Second
	}
	return &AuthService{
		game:   game,
		jwtKey: key,
		expiry: expiry,
		now:    time.Now,
	}
}

// Login checks a player's password and returns a signed token.
func (a *AuthService) Login(name, password string) (string, error) {
	player, err := a.game.Authenticate(name, password)
	if err != nil {
		return "", err
	}
	return a.issue(player, a.game.DB.Name(player))
}

func (a *AuthService) issue(player gamedb.DBRef, name string) (string, error) {
	now := a.now()
	claims := Claims{
		PlayerRef:  player,
		PlayerName: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("#%d", player),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.expiry)),
			Issuer:    "mushgames",
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.jwtKey)
}

// ValidateToken parses and validates a token string.
func (a *AuthService) ValidateToken(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return a.jwtKey, nil
	}, jwt.WithIssuer("mushgames"), jwt.WithTimeFunc(a.now))
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if _, ok := a.game.DB.Get(claims.PlayerRef); !ok {
		return nil, fmt.Errorf("invalid token: player #%d no longer exists", claims.PlayerRef)
	}
	return claims, nil
}

// RefreshToken issues a new token with a fresh expiry for a valid one.
func (a *AuthService) RefreshToken(tokenStr string) (string, error) {
	claims, err := a.ValidateToken(tokenStr)
	if err != nil {
		return "", err
	}
	return a.issue(claims.PlayerRef, claims.PlayerName)
}

// GenerateJWTSecret generates a random hex-encoded secret suitable for jwt_secret.
func GenerateJWTSecret() string {
	b := make([]byte, 32)
	rand.Read(b)
	return hex.EncodeToString(b)
}
