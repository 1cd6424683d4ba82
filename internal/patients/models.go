package patients

import "time"

// Patient is a person the hospital follows up with by phone.
// Phone is E.164 and unique across patients.
type Patient struct {
	ID              int64     `json:"id" db:"id"`
	Name            string    `json:"name" db:"name"`
	Phone           string    `json:"phone" db:"phone"`
	Age             *int      `json:"age" db:"age"`
	Language        string    `json:"language" db:"language"`
	CustomQuestions string    `json:"custom_questions" db:"custom_questions"`
	PatientType     string    `json:"patient_type" db:"patient_type"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Listing is a patient with the number of calls placed to them.
type Listing struct {
	Patient
	CallCount int `json:"call_count"`
}

const (
	LanguageEnglish = "english"
	LanguageHindi   = "hindi"

	TypeOPD        = "opd"
	TypeDischarged = "discharged"
)

// CreateRequest is the admin input for a new patient.
type CreateRequest struct {
	Name            string `json:"name"`
	Phone           string `json:"phone"`
	Age             *int   `json:"age"`
	Language        string `json:"language"`
	CustomQuestions string `json:"custom_questions"`
	PatientType     string `json:"patient_type"`
}

// UpdateRequest changes only the fields that are set.
type UpdateRequest struct {
	Name            *string `json:"name"`
	Phone           *string `json:"phone"`
	Age             *int    `json:"age"`
	Language        *string `json:"language"`
	CustomQuestions *string `json:"custom_questions"`
	PatientType     *string `json:"patient_type"`
}
