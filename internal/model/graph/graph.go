package graph

// Graph identifies an analytical subject: one career's aggregate metrics
// as supplied by the analytics collaborator.
type Graph struct {
	ID             string       `json:"id"`
	Title          string       `json:"title"`
	Cohort         int          `json:"cohort"`
	DropoutRate    float64      `json:"dropoutRate"`
	EmploymentRate float64      `json:"employmentRate"`
	AverageGrade   float64      `json:"averageGrade,omitempty"`
	Trend          []TrendPoint `json:"trend,omitempty"`
	Notes          string       `json:"notes,omitempty"`
}

// TrendPoint is one yearly sample of the enrollment series.
type TrendPoint struct {
	Year       int `json:"year"`
	Enrollment int `json:"enrollment"`
	Graduates  int `json:"graduates"`
}
