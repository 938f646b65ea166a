package graph

// Store exposes read-only subject lookup. Graphs are owned by the
// analytics collaborator; this core only reads them.
type Store interface {
	List() []Graph
	FindByID(id string) (Graph, bool)
}

// MemoryStore implements Store with an in-memory slice, suitable while the
// analytics pipeline exports static aggregates.
type MemoryStore struct {
	items []Graph
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied graphs.
func NewMemoryStore(items []Graph) *MemoryStore {
	return &MemoryStore{items: append([]Graph(nil), items...)}
}

// List returns every available graph.
func (s *MemoryStore) List() []Graph {
	return append([]Graph(nil), s.items...)
}

// FindByID looks up a graph by identifier.
func (s *MemoryStore) FindByID(id string) (Graph, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Graph{}, false
}

// Seed provides the career aggregates exported by the current analytics
// snapshot.
func Seed() []Graph {
	return []Graph{
		{
			ID:             "engineering",
			Title:          "Ingeniería",
			Cohort:         1240,
			DropoutRate:    0.18,
			EmploymentRate: 0.87,
			AverageGrade:   7.4,
			Trend: []TrendPoint{
				{Year: 2021, Enrollment: 380, Graduates: 214},
				{Year: 2022, Enrollment: 412, Graduates: 229},
				{Year: 2023, Enrollment: 448, Graduates: 251},
			},
			Notes: "Demanda sostenida; deserción concentrada en primer año.",
		},
		{
			ID:             "medicine",
			Title:          "Medicina",
			Cohort:         860,
			DropoutRate:    0.09,
			EmploymentRate: 0.94,
			AverageGrade:   8.1,
			Trend: []TrendPoint{
				{Year: 2021, Enrollment: 205, Graduates: 168},
				{Year: 2022, Enrollment: 214, Graduates: 172},
				{Year: 2023, Enrollment: 221, Graduates: 180},
			},
		},
		{
			ID:             "law",
			Title:          "Derecho",
			Cohort:         930,
			DropoutRate:    0.22,
			EmploymentRate: 0.71,
			AverageGrade:   6.9,
			Trend: []TrendPoint{
				{Year: 2021, Enrollment: 310, Graduates: 176},
				{Year: 2022, Enrollment: 288, Graduates: 169},
				{Year: 2023, Enrollment: 264, Graduates: 158},
			},
			Notes: "Matrícula en descenso tres años consecutivos.",
		},
	}
}
