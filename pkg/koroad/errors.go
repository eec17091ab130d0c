package koroad

import "fmt"

// Result codes returned in the response envelope.
const (
	CodeOK     = "00"
	CodeNoData = "03"
)

// APIError is a non-success result code in an otherwise valid response.
type APIError struct {
	Endpoint string
	Code     string
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("koroad: %s returned %s: %s", e.Endpoint, e.Code, e.Message)
}

// Temporary reports whether the code signals an overloaded or failing
// service rather than a bad request. 22 is the daily quota, 99 an unknown
// server error.
func (e *APIError) Temporary() bool {
	return e.Code == "22" || e.Code == "99"
}
