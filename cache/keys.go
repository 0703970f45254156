package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"
)

// Key joins a prefix and parts with ":". String kinds and fmt.Stringers are used
// as-is; anything else is JSON-encoded so filter structs produce stable keys.
//
//	Key("client-detail", "abc123", SummaryFilters{}) // "client-detail:abc123:{}"
func Key(prefix string, parts ...any) string {
	var b strings.Builder
	b.WriteString(prefix)
	for _, p := range parts {
		b.WriteByte(':')
		b.WriteString(keyPart(p))
	}
	return b.String()
}

func keyPart(p any) string {
	switch v := p.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case int, int64, bool:
		return fmt.Sprint(v)
	}
	if rv := reflect.ValueOf(p); rv.Kind() == reflect.String {
		return rv.String()
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Sprintf("%v", p)
	}
	return string(raw)
}

// PrefixPattern matches every key that starts with prefix and the given
// parts, e.g. PrefixPattern("client-detail", "abc123") matches
// "client-detail:abc123:{...}" but not "client-detail:abc1234:{}".
func PrefixPattern(prefix string, parts ...string) *regexp.Regexp {
	head := strings.Join(append([]string{prefix}, parts...), ":") + ":"
	return regexp.MustCompile("^" + regexp.QuoteMeta(head))
}
