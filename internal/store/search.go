package store

import (
	"strings"
	"unicode/utf8"
)

const snippetRadius = 32

// SearchMessages finds messages whose body or file name contains query,
// case-insensitively, newest first. roomID narrows the search when set.
func (db *DB) SearchMessages(query string, roomID string, limit int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	pattern := "%" + escapeLike(query) + "%"
	q := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE (body LIKE ? ESCAPE '\' OR file_name LIKE ? ESCAPE '\')`
	args := []any{pattern, pattern}
	if roomID != "" {
		q += " AND room_id = ?"
		args = append(args, roomID)
	}
	q += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var results []SearchResult
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		text := m.Body
		if text == "" {
			text = m.FileName
		}
		results = append(results, SearchResult{Message: m, Snippet: snippet(text, query)})
	}
	return results, rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// snippet marks the first match of query in text with << >> and trims the
// surrounding text to snippetRadius bytes on each side.
func snippet(text, query string) string {
	lt, lq := strings.ToLower(text), strings.ToLower(query)
	i := strings.Index(lt, lq)
	if i < 0 || len(lt) != len(text) {
		return text
	}
	j := i + len(lq)

	start, prefix := i-snippetRadius, "..."
	if start <= 0 {
		start, prefix = 0, ""
	}
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	end, suffix := j+snippetRadius, "..."
	if end >= len(text) {
		end, suffix = len(text), ""
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}
	return prefix + text[start:i] + "<<" + text[i:j] + ">>" + text[j:end] + suffix
}
