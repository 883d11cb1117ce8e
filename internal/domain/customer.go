package domain

import "fmt"

// Field names an account column that may be changed through the assistant.
type Field string

const (
	FieldEmail       Field = "email"
	FieldPassword    Field = "password"
	FieldPhoneNumber Field = "phone_number"
	FieldAddress     Field = "address"
)

// AllowedFields lists every field the repository will update.
var AllowedFields = []Field{FieldEmail, FieldPassword, FieldPhoneNumber, FieldAddress}

// ValidField reports whether f is one of the updatable account fields.
func ValidField(f Field) bool {
	for _, allowed := range AllowedFields {
		if f == allowed {
			return true
		}
	}
	return false
}

// CustomerProfile is a value snapshot of account fields as last read from the
// repository or written by a completed mutation. It is a cache, not the source
// of truth, and carries no credential material.
type CustomerProfile struct {
	Username    string `json:"username"`
	FirstName   string `json:"first_name,omitempty"`
	LastName    string `json:"last_name,omitempty"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Address     string `json:"address,omitempty"`
}

// ApplyUpdate writes a just-committed value into its own named field, keeping
// the cache consistent with the repository. Password changes do not touch the
// snapshot because it stores no credentials.
func (p *CustomerProfile) ApplyUpdate(field Field, value string) error {
	switch field {
	case FieldEmail:
		p.Email = value
	case FieldPhoneNumber:
		p.PhoneNumber = value
	case FieldAddress:
		p.Address = value
	case FieldPassword:
		// Nothing cached for credentials.
	default:
		return fmt.Errorf("unknown profile field %q", field)
	}
	return nil
}

// NewAccount carries the full field set for account creation.
type NewAccount struct {
	Username    string
	Password    string
	FirstName   string
	LastName    string
	Email       string
	PhoneNumber string
	Address     string
}
