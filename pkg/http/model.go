package http

// APIResponse is the envelope of every API response.
type APIResponse struct {
	Status  int         `json:"status" example:"200"`
	Message string      `json:"message" example:"OK"`
	Data    interface{} `json:"data,omitempty"`
}

// ValidationError represents validation error detail.
type ValidationError struct {
	Code    string                 `json:"code,omitempty" example:"ERR_REQUIRED"`
	Field   string                 `json:"field,omitempty" example:"route_id"`
	Message string                 `json:"message,omitempty" example:"route_id is required"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// ListDataResponse is the data of a list response.
type ListDataResponse struct {
	Rows  interface{} `json:"rows"`
	Total int64       `json:"total"`
}
