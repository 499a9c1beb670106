package model

// PlanItem represents a single entry a URL resolves to
type PlanItem struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	URL           string `json:"url,omitempty"`
	Index         int    `json:"index"` // 1-based position inside the playlist
	PlaylistTitle string `json:"playlist_title,omitempty"`
	Duration      string `json:"duration,omitempty"`
}

// Plan represents the set of items a job URL resolves to before any transfer
type Plan struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	URL        string      `json:"url"`
	IsPlaylist bool        `json:"is_playlist"`
	Items      []*PlanItem `json:"items"`
}

// NewPlan creates an empty plan for the given URL
func NewPlan(url string) *Plan {
	return &Plan{
		URL:   url,
		Items: make([]*PlanItem, 0),
	}
}

// AddItem appends an item, assigning the next index when the item has none
func (p *Plan) AddItem(item *PlanItem) {
	if item.Index <= 0 {
		item.Index = len(p.Items) + 1
	}
	if item.PlaylistTitle == "" && p.IsPlaylist {
		item.PlaylistTitle = p.Title
	}
	p.Items = append(p.Items, item)
}

// Filter returns a copy of the plan keeping only items for which keep returns true.
// Indices are preserved so the fetcher can address the original playlist positions.
func (p *Plan) Filter(keep func(*PlanItem) bool) *Plan {
	out := &Plan{
		ID:         p.ID,
		Title:      p.Title,
		URL:        p.URL,
		IsPlaylist: p.IsPlaylist,
		Items:      make([]*PlanItem, 0, len(p.Items)),
	}
	for _, item := range p.Items {
		if keep(item) {
			out.Items = append(out.Items, item)
		}
	}
	return out
}

// Indices returns the playlist positions of all items in plan order
func (p *Plan) Indices() []int {
	indices := make([]int, 0, len(p.Items))
	for _, item := range p.Items {
		indices = append(indices, item.Index)
	}
	return indices
}

// Len returns the number of items in the plan
func (p *Plan) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Items)
}

// IsEmpty checks if there is nothing left to fetch
func (p *Plan) IsEmpty() bool {
	return p.Len() == 0
}
