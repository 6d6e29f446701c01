package result

// Hit is a single search hit.
type Hit struct {
	id       string
	score    float64
	title    string
	date     string
	legisNum string
	slug     string
}

// New creates a search hit.
func New(id string, score float64, title, date, legisNum, slug string) Hit {
	return Hit{id: id, score: score, title: title, date: date, legisNum: legisNum, slug: slug}
}

// ID returns the package id.
func (h *Hit) ID() string { return h.id }

// Score returns the relevance score.
func (h *Hit) Score() float64 { return h.score }

// Title returns the bill title.
func (h *Hit) Title() string { return h.title }

// Date returns the ISO publication date.
func (h *Hit) Date() string { return h.date }

// LegisNum returns the legislation number.
func (h *Hit) LegisNum() string { return h.legisNum }

// Slug returns the URL slug.
func (h *Hit) Slug() string { return h.slug }

// Page is one page of hits with the total match count.
type Page struct {
	Total int
	Hits  []Hit
}
