package model

import (
	"fmt"
	"strings"
	"time"
)

// Snapshot is a point-in-time view of a job, assembled from hook calls for
// front ends and the control server
type Snapshot struct {
	JobID     string    `json:"job_id"`
	URL       string    `json:"url"`
	Phase     Phase     `json:"phase"`
	Status    string    `json:"status"`
	Percent   float64   `json:"percent"`          // 0 to 100
	Index     int       `json:"index,omitempty"`  // playlist position, 0 if unknown
	Count     int       `json:"count,omitempty"`  // playlist size, 0 if unknown
	LastFile  string    `json:"last_file,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Files     []string  `json:"files,omitempty"` // files that reached their final location
	UpdatedAt time.Time `json:"updated_at"`
}

// GetItemLabel returns "i/n" for playlist jobs, or "—" when the position is unknown
func (s *Snapshot) GetItemLabel() string {
	if s.Index <= 0 || s.Count <= 0 {
		return "—"
	}
	return fmt.Sprintf("%d/%d", s.Index, s.Count)
}

// GetDisplayTitle returns the last finished filename, or the URL when nothing finished yet
func (s *Snapshot) GetDisplayTitle() string {
	if s.LastFile != "" {
		// Extract just the filename without path (support both / and \ separators)
		parts := strings.FieldsFunc(s.LastFile, func(r rune) bool {
			return r == '/' || r == '\\'
		})
		if len(parts) > 0 {
			filename := parts[len(parts)-1]
			if idx := strings.LastIndex(filename, "."); idx > 0 {
				filename = filename[:idx]
			}
			return filename
		}
	}
	return s.URL
}

// Clone returns a copy that does not share the Files slice
func (s *Snapshot) Clone() Snapshot {
	out := *s
	out.Files = append([]string(nil), s.Files...)
	return out
}
