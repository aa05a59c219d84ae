package remote

import (
	"strings"
	"unicode"
)

// aliases maps in-process field names whose remote column does not follow the case rule.
var aliases = map[string]string{
	"ownerId": OwnerColumn,
}

var reverseAliases = func() map[string]string {
	out := make(map[string]string, len(aliases))
	for local, remote := range aliases {
		out[remote] = local
	}
	return out
}()

// ToRemote renames the top-level keys of an in-process row to remote column names.
func ToRemote(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for key, value := range row {
		out[ToSnake(key)] = value
	}
	return out
}

// FromRemote renames the top-level keys of a remote row to in-process field names.
func FromRemote(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for key, value := range row {
		out[ToCamel(key)] = value
	}
	return out
}

// FromRemoteRows applies FromRemote to every row.
func FromRemoteRows(rows []map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromRemote(row))
	}
	return out
}

// ToSnake converts a camelCase field name to snake_case.
func ToSnake(name string) string {
	if alias, ok := aliases[name]; ok {
		return alias
	}
	var b strings.Builder
	b.Grow(len(name) + 4)
	runes := []rune(name)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			prevLower := i > 0 && !unicode.IsUpper(runes[i-1]) && runes[i-1] != '_'
			nextLower := i > 0 && i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1])
			if prevLower || nextLower {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ToCamel converts a snake_case column name to camelCase.
func ToCamel(name string) string {
	if alias, ok := reverseAliases[name]; ok {
		return alias
	}
	if !strings.Contains(name, "_") {
		return name
	}
	parts := strings.Split(name, "_")
	var b strings.Builder
	b.Grow(len(name))
	b.WriteString(parts[0])
	for _, part := range parts[1:] {
		if part == "" {
			continue
		}
		runes := []rune(part)
		runes[0] = unicode.ToUpper(runes[0])
		b.WriteString(string(runes))
	}
	return b.String()
}
