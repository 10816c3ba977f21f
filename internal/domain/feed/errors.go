package feed

import (
	"errors"
	"fmt"
)

// Ошибки получения фида. Наружу из оркестратора не выходят, только в логи и метрики.
var (
	ErrNetwork        = errors.New("network error")
	ErrHTTP           = errors.New("http error")
	ErrParse          = errors.New("parse error")
	ErrShape          = errors.New("shape error")
	ErrInvalidRequest = errors.New("invalid feed request")
)

// StatusError is returned for non-2xx responses and matches ErrHTTP
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http error: unexpected status %d from %s", e.Code, e.URL)
}

// Is reports ErrHTTP equivalence for errors.Is
func (e *StatusError) Is(target error) bool {
	return target == ErrHTTP
}
