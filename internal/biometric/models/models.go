package models

import (
	"fmt"
	"math"
	"time"

	id "punchclock/pkg/domain"
	dErrors "punchclock/pkg/domain-errors"
)

// TemplateSize is the number of components in a face embedding.
const TemplateSize = 128

// Template is a face embedding. Values are only meaningful once Validate passes.
type Template []float64

// Validate rejects templates of the wrong length or with non-finite components.
func (t Template) Validate() error {
	if len(t) != TemplateSize {
		return dErrors.New(dErrors.CodeValidation,
			fmt.Sprintf("invalid template: expected exactly %d values, got %d", TemplateSize, len(t)))
	}
	for i, v := range t {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return dErrors.New(dErrors.CodeValidation,
				fmt.Sprintf("invalid template: value at index %d is not a finite number", i))
		}
	}
	return nil
}

// Identity is an employee as the biometric path sees it.
type Identity struct {
	ID         id.EmployeeID `json:"employee_id"`
	Name       string        `json:"name"`
	NationalID string        `json:"identifier"`
	Active     bool          `json:"active"`
	Enrolled   bool          `json:"enrolled"`
}

// Entry is one enrolled template with the identity attributes needed to report a match.
// It is the unit stored in the template cache.
type Entry struct {
	EmployeeID id.EmployeeID `json:"employee_id"`
	Name       string        `json:"name"`
	NationalID string        `json:"identifier"`
	Active     bool          `json:"active"`
	Template   Template      `json:"template"`
}

// CacheStats describes the template cache for operators.
type CacheStats struct {
	Available     bool       `json:"available"`
	Backend       string     `json:"backend"`
	EnrolledCount int        `json:"enrolled_count"`
	LastSync      *time.Time `json:"last_sync"`
}

// Enrollment is the result of registering a template.
type Enrollment struct {
	EmployeeID id.EmployeeID `json:"employee_id"`
	Name       string        `json:"name"`
	NationalID string        `json:"identifier"`
}

// EnrollmentFrom projects an identity onto the enrollment response.
func EnrollmentFrom(identity *Identity) *Enrollment {
	return &Enrollment{
		EmployeeID: identity.ID,
		Name:       identity.Name,
		NationalID: identity.NationalID,
	}
}

// EntryFrom builds a cache entry for an identity and its template.
func EntryFrom(identity *Identity, template Template) Entry {
	return Entry{
		EmployeeID: identity.ID,
		Name:       identity.Name,
		NationalID: identity.NationalID,
		Active:     identity.Active,
		Template:   template,
	}
}
