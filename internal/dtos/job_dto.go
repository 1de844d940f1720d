package dtos

type JobCreationRequest struct {
	EmployerID  uint   `json:"employer_id" binding:"required"`
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`

	// Optional Fields
	CompanyName     string   `json:"company_name"`
	HRName          *string  `json:"hr_name"`
	HREmail         *string  `json:"hr_email"`
	RequiredSkills  []string `json:"required_skills"`
	PreferredSkills []string `json:"preferred_skills"`
}
