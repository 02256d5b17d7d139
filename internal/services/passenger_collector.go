package services

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/remmie/whatsapp-booking-backend/internal/models"
	"github.com/remmie/whatsapp-booking-backend/pkg/validator"
)

// ChildMaxAge is the exclusive upper age bound for a Child passenger.
const ChildMaxAge = 12

var passengerLineRegexes = map[string]*regexp.Regexp{
	"firstName":      regexp.MustCompile(`(?i)First Name:\s*(.+)`),
	"lastName":       regexp.MustCompile(`(?i)Last Name:\s*(.+)`),
	"gender":         regexp.MustCompile(`(?i)Gender:\s*(Male|Female|Other)`),
	"dateOfBirth":    regexp.MustCompile(`(?i)Date of Birth:\s*(\d{4}-\d{2}-\d{2})`),
	"passportNumber": regexp.MustCompile(`(?i)Passport Number:\s*(.+)`),
	"passportExpiry": regexp.MustCompile(`(?i)Passport Expiry:\s*(\d{4}-\d{2}-\d{2})`),
	"nationality":    regexp.MustCompile(`(?i)Nationality:\s*([A-Za-z]{2})\s*$`),
	"email":          regexp.MustCompile(`(?i)Email:\s*(\S+@\S+\.\S+)`),
	"phone":          regexp.MustCompile(`(?i)Phone:\s*(\d+)`),
}

// requiredFields maps parsed field keys to their human-readable names, in
// the order they are reported when missing.
var requiredFields = []struct {
	key  string
	name string
}{
	{"firstName", "First Name"},
	{"lastName", "Last Name"},
	{"gender", "Gender"},
	{"dateOfBirth", "Date of Birth"},
	{"passportNumber", "Passport Number"},
	{"passportExpiry", "Passport Expiry"},
	{"nationality", "Nationality"},
	{"email", "Email"},
	{"phone", "Phone"},
}

// PassengerCollector parses one free-text block into a passenger record and
// validates it against type-specific rules.
type PassengerCollector struct {
	now func() time.Time
}

// NewPassengerCollector creates a new PassengerCollector
func NewPassengerCollector() *PassengerCollector {
	return &PassengerCollector{now: time.Now}
}

// Parse extracts labeled lines from a passenger details block. Missing
// lines leave the corresponding field empty; validation reports them.
func (c *PassengerCollector) Parse(text string) models.Passenger {
	fields := map[string]string{}
	for _, line := range strings.Split(text, "\n") {
		for key, re := range passengerLineRegexes {
			if matches := re.FindStringSubmatch(line); matches != nil {
				fields[key] = strings.TrimSpace(matches[1])
			}
		}
	}

	gender := fields["gender"]
	if gender != "" {
		gender = strings.ToUpper(gender[:1]) + strings.ToLower(gender[1:])
	}

	return models.Passenger{
		FirstName:      fields["firstName"],
		LastName:       fields["lastName"],
		Gender:         gender,
		DateOfBirth:    fields["dateOfBirth"],
		PassportNumber: fields["passportNumber"],
		PassportExpiry: fields["passportExpiry"],
		Nationality:    strings.ToUpper(fields["nationality"]),
		Email:          fields["email"],
		Phone:          fields["phone"],
	}
}

// Validate checks a parsed passenger record against the rules for its type.
// The returned error message is user-facing; a nil error means the record is
// acceptable.
func (c *PassengerCollector) Validate(p models.Passenger, passengerType models.PassengerType) error {
	values := map[string]string{
		"firstName":      p.FirstName,
		"lastName":       p.LastName,
		"gender":         p.Gender,
		"dateOfBirth":    p.DateOfBirth,
		"passportNumber": p.PassportNumber,
		"passportExpiry": p.PassportExpiry,
		"nationality":    p.Nationality,
		"email":          p.Email,
		"phone":          p.Phone,
	}

	var missing []string
	for _, field := range requiredFields {
		if values[field.key] == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("Missing required fields: %s", strings.Join(missing, ", "))
	}

	dob, ok := validator.ParseDate(p.DateOfBirth)
	if !ok {
		return fmt.Errorf("Invalid Date of Birth format. Use YYYY-MM-DD")
	}

	expiry, ok := validator.ParseDate(p.PassportExpiry)
	if !ok {
		return fmt.Errorf("Invalid Passport Expiry format. Use YYYY-MM-DD")
	}

	if !expiry.After(c.now()) {
		return fmt.Errorf("Passport must be valid (expiry date in future)")
	}

	if !validator.ValidEmail(p.Email) {
		return fmt.Errorf("Invalid email format")
	}

	if !validator.ValidPhone(p.Phone) {
		return fmt.Errorf("Phone number too short")
	}

	if passengerType == models.PassengerTypeChild {
		// Age by calendar-year subtraction; legacy policy, kept as observed
		age := c.now().Year() - dob.Year()
		if age >= ChildMaxAge {
			return fmt.Errorf("Child passenger must be under %d years old", ChildMaxAge)
		}
	}

	return nil
}

// Template renders the field-by-field prompt for one passenger slot.
func (c *PassengerCollector) Template(number int, passengerType models.PassengerType) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✈️ Please provide details for %s %d:\n\n", passengerType, number)
	b.WriteString("Format:\n")
	b.WriteString("First Name: [Name]\n")
	b.WriteString("Last Name: [Name]\n")
	b.WriteString("Gender: Male/Female/Other\n")
	b.WriteString("Date of Birth: YYYY-MM-DD\n")
	b.WriteString("Passport Number: [Number]\n")
	b.WriteString("Passport Expiry: YYYY-MM-DD\n")
	b.WriteString("Nationality: [Country Code]\n")
	b.WriteString("Email: [email@example.com]\n")
	b.WriteString("Phone: [CountryCode][Number]\n\n")
	b.WriteString("Example:\n")
	b.WriteString("First Name: John\n")
	b.WriteString("Last Name: Doe\n")
	b.WriteString("Gender: Male\n")
	b.WriteString("Date of Birth: 1985-05-15\n")
	b.WriteString("Passport Number: P12345678\n")
	b.WriteString("Passport Expiry: 2030-01-01\n")
	b.WriteString("Nationality: LB\n")
	b.WriteString("Email: john@example.com\n")
	b.WriteString("Phone: 96170123456")
	return b.String()
}
