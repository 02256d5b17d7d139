package models

// PassengerType distinguishes the validation rules applied to a passenger.
type PassengerType string

const (
	PassengerTypeAdult PassengerType = "Adult"
	PassengerTypeChild PassengerType = "Child"
)

// Passenger is one traveler's details collected over the messaging channel.
type Passenger struct {
	Type           PassengerType `json:"type"`
	Number         int           `json:"number"`
	FirstName      string        `json:"first_name"`
	LastName       string        `json:"last_name"`
	Gender         string        `json:"gender"`
	DateOfBirth    string        `json:"date_of_birth"`
	PassportNumber string        `json:"passport_number"`
	PassportExpiry string        `json:"passport_expiry"`
	Nationality    string        `json:"nationality"`
	Email          string        `json:"email"`
	Phone          string        `json:"phone"`
}

// PassengerManifest accumulates passenger records slot by slot until
// len(Passengers) == Adults + Children.
type PassengerManifest struct {
	Adults     int         `json:"adults"`
	Children   int         `json:"children"`
	Passengers []Passenger `json:"passengers"`
}

// Total returns the expected number of passengers.
func (m PassengerManifest) Total() int {
	return m.Adults + m.Children
}

// Complete reports whether every slot has been collected.
func (m PassengerManifest) Complete() bool {
	return len(m.Passengers) >= m.Total()
}

// NextSlot returns the type and number of the next passenger to collect.
// Adults are collected before children.
func (m PassengerManifest) NextSlot() (PassengerType, int) {
	collected := len(m.Passengers)
	if collected < m.Adults {
		return PassengerTypeAdult, collected + 1
	}
	return PassengerTypeChild, collected - m.Adults + 1
}
