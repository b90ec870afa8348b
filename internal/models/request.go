package models

// ProcessRequest is the (currently empty) body accepted by the process endpoint.
type ProcessRequest struct{}

type ErrorResponse struct {
	Message string `json:"message"`
}
