package request

import (
	"encoding/json"

	"github.com/rs/zerolog"
)

const maskedPassword = "***"

type Login struct {
	Email    string `validate:"required,email" json:"email"`
	Password string `validate:"required"       json:"password"`
}

func (l Login) MarshalZerologObject(e *zerolog.Event) {
	e.Str("email", l.Email).Str("password", maskedPassword)
}

func (l Login) MarshalJSON() ([]byte, error) {
	l.Password = maskedPassword
	type L Login
	return json.Marshal(L(l))
}
