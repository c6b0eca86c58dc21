package types

import (
	"strings"
	"time"
)

// NotificationPreferences holds the raw reminder settings stored on a user
// row. Every field is nullable in the database; a user is only considered for
// reminders when all three are present (see Configured).
type NotificationPreferences struct {
	// Time is the local clock time in "HH:MM" (24h) format, e.g. "09:00".
	Time *string `json:"notification_time" db:"notification_time"`
	// Days is the comma-separated list of weekdays, 0=Sunday .. 6=Saturday,
	// e.g. "1,2,3,4,5".
	Days *string `json:"notification_days" db:"notification_days"`
	// Timezone is an IANA zone name, e.g. "America/New_York".
	Timezone *string `json:"timezone" db:"timezone"`
}

// Configured reports whether all three preference fields are set and
// non-blank. This is the single predicate deciding whether a user takes part
// in reminder dispatch at all.
func (p NotificationPreferences) Configured() bool {
	return nonBlank(p.Time) && nonBlank(p.Days) && nonBlank(p.Timezone)
}

func nonBlank(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}

// User is the reminder recipient as loaded by the dispatch job. Lists are
// hydrated with open items only.
type User struct {
	ID          string                  `json:"id" db:"id"`
	Name        string                  `json:"name" db:"name"`
	Email       string                  `json:"email" db:"email"`
	Preferences NotificationPreferences `json:"preferences" db:"-"`
	CreatedAt   time.Time               `json:"created_at" db:"created_at"`

	// Hydrated Fields (not in DB table)
	Lists []TodoList `json:"lists,omitempty" db:"-"`
}

// TodoList is a named list owned by exactly one user.
type TodoList struct {
	ID          string    `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	Name        string    `json:"name" db:"name"`
	Description *string   `json:"description,omitempty" db:"description"`
	Icon        *string   `json:"icon,omitempty" db:"icon"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`

	// Hydrated Fields (not in DB table)
	Items []ListItem `json:"items,omitempty" db:"-"`
}

// ListItem belongs to exactly one TodoList. Order is only meaningful among
// the not-done items of a single list.
type ListItem struct {
	ID          string     `json:"id" db:"id"`
	ListID      string     `json:"list_id" db:"todo_list_id"`
	Title       string     `json:"title" db:"title"`
	Description *string    `json:"description,omitempty" db:"description"`
	Deadline    *time.Time `json:"deadline,omitempty" db:"deadline"`
	Done        bool       `json:"done" db:"done"`
	Order       int        `json:"order" db:"order"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// ListDigest is one section of a reminder email: a list together with the
// open items to show for it. Items is never empty for a digest section.
type ListDigest struct {
	List  TodoList
	Items []ListItem
}

// OpenLists groups the user's not-done items by list, keeping the order of
// u.Lists and the item order within each list. Lists without open items are
// dropped.
func (u *User) OpenLists() []ListDigest {
	var out []ListDigest
	for _, l := range u.Lists {
		var open []ListItem
		for _, it := range l.Items {
			if !it.Done {
				open = append(open, it)
			}
		}
		if len(open) == 0 {
			continue
		}
		out = append(out, ListDigest{List: l, Items: open})
	}
	return out
}

// OpenItemCount returns the total number of items across the given digest
// sections.
func OpenItemCount(lists []ListDigest) int {
	n := 0
	for _, l := range lists {
		n += len(l.Items)
	}
	return n
}

// StringValue dereferences a nullable string, returning "" for nil.
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
