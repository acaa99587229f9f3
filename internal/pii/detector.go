package pii

import "sort"

// Detector runs a Catalog over text. It holds no mutable state.
type Detector struct {
	catalog *Catalog
}

// NewDetector returns a Detector over the given catalog.
func NewDetector(c *Catalog) *Detector {
	return &Detector{catalog: c}
}

// Scan returns every pattern match in text, ordered by Start and then by
// Category. The same span may be reported under more than one category;
// overlap is resolved downstream by the redactor.
func (d *Detector) Scan(text string) []Detection {
	detections := []Detection{}
	if text == "" {
		return detections
	}

	for _, cat := range d.catalog.Categories() {
		for _, p := range d.catalog.Patterns(cat) {
			for _, loc := range p.re.FindAllStringIndex(text, -1) {
				if loc[0] >= loc[1] {
					continue
				}
				detections = append(detections, NewDetection(cat, p.confidence, loc[0], loc[1], text[loc[0]:loc[1]]))
			}
		}
	}

	sort.SliceStable(detections, func(i, j int) bool {
		if detections[i].Start != detections[j].Start {
			return detections[i].Start < detections[j].Start
		}
		return detections[i].Category < detections[j].Category
	})
	return detections
}
