package model

// Participant — гостевая личность на этой установке. Не связана с серверными аккаунтами.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
