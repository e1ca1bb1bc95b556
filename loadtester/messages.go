package main

import (
	"fmt"
	"math/rand"

	json "github.com/goccy/go-json"
	"github.com/rs/xid"
)

type MessageKind string

const (
	KindLogin     MessageKind = "login"
	KindDuplicate MessageKind = "duplicate"
	KindInvalid   MessageKind = "invalid"
)

// LoginEvent is the body the consumer expects on the login queue. Pointer
// fields are sent as JSON null when unset.
type LoginEvent struct {
	UserID     string  `json:"user_id"`
	AppVersion *string `json:"app_version"`
	DeviceType *string `json:"device_type"`
	IP         *string `json:"ip"`
	Locale     *string `json:"locale"`
	DeviceID   *string `json:"device_id"`
}

var (
	deviceTypes = []string{"android", "ios", "web"}
	locales     = []string{"RU", "PA", "US", "DE", "IN", "BR", "JP"}
	// bodies the consumer has to reject
	invalidBodies = []string{
		`{"user_id": "broken"`,
		`{'user_id': 'python', 'ip': None}`,
		`{"user_id": "no-version", "ip": "10.0.0.1", "device_id": "1-2-3"}`,
		`{"user_id": "bad-version", "app_version": "2.beta", "ip": "10.0.0.1", "device_id": "1-2-3"}`,
		`[]`,
	}
)

func pick(rng *rand.Rand, values []string) string {
	return values[rng.Intn(len(values))]
}

func generateVersion(rng *rand.Rand) string {
	return fmt.Sprintf("%d.%d.%d", rng.Intn(10), rng.Intn(20), rng.Intn(100))
}

func generateIP(rng *rand.Rand) string {
	if rng.Intn(10) == 0 {
		return fmt.Sprintf("2001:db8:%x::%x", rng.Intn(0xffff), rng.Intn(0xffff))
	}
	return fmt.Sprintf("%d.%d.%d.%d", 1+rng.Intn(223), rng.Intn(256), rng.Intn(256), 1+rng.Intn(254))
}

func generateDeviceID(rng *rand.Rand) string {
	return fmt.Sprintf("%03d-%02d-%04d", rng.Intn(1000), rng.Intn(100), rng.Intn(10000))
}

// optional returns nil with probability nullRatio
func optional(rng *rand.Rand, nullRatio float64, v string) *string {
	if rng.Float64() < nullRatio {
		return nil
	}
	return &v
}

// generateLogin builds one event. app_version, ip and device_id are always
// present so the consumer can normalize and mask them, the remaining fields
// are nulled at nullRatio.
func generateLogin(rng *rand.Rand, nullRatio float64) LoginEvent {
	version := generateVersion(rng)
	ip := generateIP(rng)
	deviceID := generateDeviceID(rng)

	return LoginEvent{
		UserID:     xid.New().String(),
		AppVersion: &version,
		DeviceType: optional(rng, nullRatio, pick(rng, deviceTypes)),
		IP:         &ip,
		Locale:     optional(rng, nullRatio, pick(rng, locales)),
		DeviceID:   &deviceID,
	}
}

// generateBody picks the kind of the next message. previous is the last body
// this worker sent; a duplicate resends it as a new message with its own
// message id, so the consumer stores it as another login.
func generateBody(rng *rand.Rand, cfg Config, previous string) (string, MessageKind, error) {
	roll := rng.Float64()
	switch {
	case roll < cfg.InvalidRatio:
		return pick(rng, invalidBodies), KindInvalid, nil
	case previous != "" && roll < cfg.InvalidRatio+cfg.DuplicateRatio:
		return previous, KindDuplicate, nil
	}

	body, err := json.Marshal(generateLogin(rng, cfg.NullRatio))
	if err != nil {
		return "", KindLogin, fmt.Errorf("JSON marshal error: %w", err)
	}
	return string(body), KindLogin, nil
}
