package notification

import (
	"time"

	notificationDatamodel "github.com/frahmantamala/atelier/internal/core/datamodel/notification"
)

type Notification struct {
	ID        int64      `json:"id"`
	Type      string     `json:"type"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	CourseID  *int64     `json:"course_id,omitempty"`
	IsRead    bool       `json:"is_read"`
	ReadAt    *time.Time `json:"read_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func FromDataModel(n *notificationDatamodel.Notification) *Notification {
	return &Notification{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		CourseID:  n.CourseID,
		IsRead:    n.IsRead,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
}

type MarkReadRequest struct {
	IDs []int64 `json:"ids"`
}

type ListResponse struct {
	Notifications []*Notification `json:"notifications"`
	Unread        int64           `json:"unread"`
}

type MarkReadResponse struct {
	Updated int64 `json:"updated"`
}
