package domain

// Tenant is the occupant a bill is addressed to
type Tenant struct {
	ID     int32  `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone"`
	RoomID int32  `json:"room_id"`
}
