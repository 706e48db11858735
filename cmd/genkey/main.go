package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Generates a master room-key secret for ROOM_KEY_SECRET. Per-room keys
// are derived from it, so they stay stable across restarts.
func main() {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		panic(err)
	}

	fmt.Printf("ROOM_KEY_SECRET=%s\n", base64.StdEncoding.EncodeToString(secret))
}
