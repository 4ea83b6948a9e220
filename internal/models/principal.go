package models

// Principal is the authenticated user behind a connection or request.
type Principal struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}
