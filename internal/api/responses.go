package api

type ErrorResponse struct {
	Error string `json:"error" example:"something went wrong"`
}

// SecurityErrorResponse carries only the rejection category.
type SecurityErrorResponse struct {
	Error  string `json:"error" example:"unauthorized"`
	Reason string `json:"reason" example:"expired"`
}

type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}
