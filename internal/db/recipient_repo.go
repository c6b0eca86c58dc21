package db

import (
	"context"
	"time"

	"lysje/internal/types"
)

// RecipientRepository loads reminder recipients: every user together with
// their lists and the not-done items of each list. The job only reads these
// tables.
type RecipientRepository struct {
	db DBTX
}

// NewRecipientRepository creates a new RecipientRepository backed by the
// given database connection (pool or transaction).
func NewRecipientRepository(db DBTX) *RecipientRepository {
	return &RecipientRepository{db: db}
}

const listRecipientUsersSQL = `
	SELECT id, name, email, notification_time, notification_days, timezone, created_at
	FROM users
	ORDER BY created_at ASC, id ASC`

// Lists come back newest first per user; items inside a list are ordered by
// deadline (nulls last) and then by creation time. The LEFT JOIN keeps lists
// without open items so callers see the full list set.
const listRecipientListsSQL = `
	SELECT l.id, l.user_id, l.name, l.description, l.icon, l.created_at,
	       i.id, i.title, i.description, i.deadline, i.done, i."order",
	       i.created_at, i.updated_at
	FROM todo_lists l
	LEFT JOIN list_items i ON i.todo_list_id = l.id AND i.done = false
	ORDER BY l.user_id ASC, l.created_at DESC, l.id ASC,
	         i.deadline ASC NULLS LAST, i.created_at ASC`

// ListRecipients returns all users with their lists hydrated. Users without
// lists are included with an empty Lists slice.
func (r *RecipientRepository) ListRecipients(ctx context.Context) ([]types.User, error) {
	users, index, err := r.listUsers(ctx)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return users, nil
	}

	rows, err := r.db.Query(ctx, listRecipientListsSQL)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query todo lists", err)
	}
	defer rows.Close()

	// listPos maps list ID to its position inside the owning user's Lists.
	listPos := make(map[string]int)

	for rows.Next() {
		var (
			l        types.TodoList
			itemID   *string
			title    *string
			desc     *string
			deadline *time.Time
			done     *bool
			order    *int
			created  *time.Time
			updated  *time.Time
		)
		if err := rows.Scan(
			&l.ID, &l.UserID, &l.Name, &l.Description, &l.Icon, &l.CreatedAt,
			&itemID, &title, &desc, &deadline, &done, &order, &created, &updated,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan todo list row", err)
		}

		ui, ok := index[l.UserID]
		if !ok {
			// Owner was created after the user snapshot; leave for the next run.
			continue
		}
		u := &users[ui]

		pos, seen := listPos[l.ID]
		if !seen {
			u.Lists = append(u.Lists, l)
			pos = len(u.Lists) - 1
			listPos[l.ID] = pos
		}

		if itemID == nil {
			continue
		}
		item := types.ListItem{
			ID:          *itemID,
			ListID:      l.ID,
			Title:       types.StringValue(title),
			Description: desc,
			Deadline:    deadline,
		}
		if done != nil {
			item.Done = *done
		}
		if order != nil {
			item.Order = *order
		}
		if created != nil {
			item.CreatedAt = *created
		}
		if updated != nil {
			item.UpdatedAt = *updated
		}
		u.Lists[pos].Items = append(u.Lists[pos].Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating todo list rows", err)
	}

	return users, nil
}

func (r *RecipientRepository) listUsers(ctx context.Context) ([]types.User, map[string]int, error) {
	rows, err := r.db.Query(ctx, listRecipientUsersSQL)
	if err != nil {
		return nil, nil, types.NewAppError(types.ErrCodeInternalDB, "failed to query users", err)
	}
	defer rows.Close()

	var users []types.User
	index := make(map[string]int)
	for rows.Next() {
		var (
			u    types.User
			name *string
		)
		if err := rows.Scan(
			&u.ID, &name, &u.Email,
			&u.Preferences.Time, &u.Preferences.Days, &u.Preferences.Timezone,
			&u.CreatedAt,
		); err != nil {
			return nil, nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan user row", err)
		}
		u.Name = types.StringValue(name)
		index[u.ID] = len(users)
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating user rows", err)
	}
	return users, index, nil
}
