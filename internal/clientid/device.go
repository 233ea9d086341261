package clientid

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/reelrank/reelrank/internal/clock"
)

const deviceIssuer = "reelrank"

type DeviceClaims struct {
	DeviceID string `json:"did"`
	jwt.RegisteredClaims
}

// DeviceTokens issues and verifies the signed device cookie that stands in
// for a per-browser identity.
type DeviceTokens struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

func NewDeviceTokens(secret string, ttl time.Duration, clk clock.Clock) *DeviceTokens {
	return &DeviceTokens{secret: []byte(secret), ttl: ttl, clock: clk}
}

// Issue mints a token for a new random device id.
func (d *DeviceTokens) Issue() (token string, deviceID string, err error) {
	now := d.clock.Now()
	deviceID = uuid.New().String()
	claims := DeviceClaims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(d.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    deviceIssuer,
		},
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(d.secret)
	if err != nil {
		return "", "", fmt.Errorf("signing device token: %w", err)
	}
	return token, deviceID, nil
}

// Verify returns the device id carried by a valid, unexpired token.
func (d *DeviceTokens) Verify(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &DeviceClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return d.secret, nil
	}, jwt.WithTimeFunc(d.clock.Now), jwt.WithIssuer(deviceIssuer))
	if err != nil {
		return "", fmt.Errorf("parsing device token: %w", err)
	}

	claims, ok := token.Claims.(*DeviceClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid device token claims")
	}
	if _, err := uuid.Parse(claims.DeviceID); err != nil {
		return "", fmt.Errorf("invalid device id: %w", err)
	}
	return claims.DeviceID, nil
}
