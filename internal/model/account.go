package model

// Account is the opaque identity handed to the ledger by the auth collaborator.
type Account struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
