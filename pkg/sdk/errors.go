package retrieval

import "fmt"

// APIError is a non-2xx response from the retrieval API.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("retrieval: API error %d: %s", e.StatusCode, e.Detail)
}
