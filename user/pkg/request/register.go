package request

import (
	"encoding/json"

	"github.com/rs/zerolog"
)

// Register creates a customer account. Password is bounded by what bcrypt
// hashes.
type Register struct {
	Username string `validate:"required,min=3,max=64" json:"username"`
	Email    string `validate:"required,email,max=255" json:"email"`
	Password string `validate:"required,min=8,max=72" json:"password"`
}

func (r Register) MarshalZerologObject(e *zerolog.Event) {
	e.Str("email", r.Email).Str("username", r.Username).Str("password", maskedPassword)
}

func (r Register) MarshalJSON() ([]byte, error) {
	r.Password = maskedPassword
	type R Register
	return json.Marshal(R(r))
}
