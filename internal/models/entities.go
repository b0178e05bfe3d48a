package models

import "time"

// Entity is implemented by every typed record managed by the offline
// layer. An empty EntityID marks a not-yet-created record; the store
// assigns an identifier on first persistence.
type Entity interface {
	EntityID() string
}

// Mechanic is a member of the shop staff who can be assigned service
// orders and draw vouchers.
type Mechanic struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Specialty string    `json:"specialty,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

func (m Mechanic) EntityID() string { return m.ID }

// ServiceOrder is one unit of work performed for a client's vehicle.
type ServiceOrder struct {
	ID            string    `json:"id"`
	Client        string    `json:"client"`
	Vehicle       string    `json:"vehicle"`
	Description   string    `json:"description"`
	Status        string    `json:"status"`
	Value         float64   `json:"value"`
	Date          string    `json:"date,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	MechanicID    string    `json:"mechanic_id,omitempty"`
	MechanicName  string    `json:"mechanic_name,omitempty"`
	ClientThanked bool      `json:"client_thanked,omitempty"`
	CreatedAt     time.Time `json:"created_at,omitzero"`
}

func (s ServiceOrder) EntityID() string { return s.ID }

// Voucher is a cash advance granted to a mechanic, settled against
// future pay.
type Voucher struct {
	ID           string    `json:"id"`
	MechanicID   string    `json:"mechanic_id,omitempty"`
	MechanicName string    `json:"mechanic_name"`
	Value        float64   `json:"value"`
	Date         string    `json:"date,omitempty"`
	Description  string    `json:"description,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at,omitzero"`
}

func (v Voucher) EntityID() string { return v.ID }
