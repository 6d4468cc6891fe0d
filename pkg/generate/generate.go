package generate

import (
	"crypto/rand"
	"math/big"

	"github.com/google/uuid"
)

const roomIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// RoomID returns a random 6-character alphanumeric room code. Uniqueness
// among active rooms is the caller's responsibility.
func RoomID() string {
	code := make([]byte, 6)
	for i := range code {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(roomIDAlphabet))))
		if err != nil {
			panic(err)
		}
		code[i] = roomIDAlphabet[n.Int64()]
	}

	return string(code)
}

// Token returns a fresh capability token for the websocket handshake.
func Token() string {
	return uuid.NewString()
}
