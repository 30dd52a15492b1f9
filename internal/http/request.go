package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	inErrors "github.com/Alturino/storefront/internal/errors"
)

// DecodeJsonBody decodes the request body into v. Malformed bodies are
// invalid arguments.
func DecodeJsonBody(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: failed decoding request body with error=%w", inErrors.ErrInvalidArgument, err)
	}
	return nil
}

// PathUUID parses the named path variable as a uuid.
func PathUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := mux.Vars(r)[name]
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s=%s is not a valid uuid", inErrors.ErrInvalidArgument, name, raw)
	}
	return id, nil
}
