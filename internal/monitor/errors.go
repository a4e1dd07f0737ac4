package monitor

import (
	"errors"
	"strings"

	"github.com/linnemanlabs/go-core/xerrors"
)

// ErrNotFound is returned when a region, alert, or job does not exist or is
// not visible to the requesting owner.
var ErrNotFound = xerrors.New("not found")

// ValidationError rejects a request and names the offending fields.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "invalid request"
	}
	return "invalid or missing fields: " + strings.Join(e.Fields, ", ")
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
