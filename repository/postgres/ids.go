package postgres

import "github.com/google/uuid"

// validID reports whether id can be compared against a UUID column without
// Postgres rejecting the query. Only the canonical hyphenated form is accepted.
func validID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

// validIDs drops the ids no row could have.
func validIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) {
			out = append(out, id)
		}
	}
	return out
}
