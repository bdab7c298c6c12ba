package schema

import "strings"

var abbreviations = map[string]string{
	"nm": "name", "dt": "date", "no": "number", "cd": "code",
	"desc": "description", "amt": "amount", "cnt": "count", "qty": "quantity",
	"addr": "address", "tel": "phone", "ph": "phone", "mobile": "phone",
	"pwd": "password", "passwd": "password", "pw": "password",
	"img": "image", "url": "url", "uri": "url", "ip": "ip", "zip": "zipcode",
	"msg": "message", "txt": "text", "tit": "title", "subj": "subject",
	"usr": "user", "grp": "group", "cat": "category",
	"lat": "latitude", "lng": "longitude", "lon": "longitude",
	"uid": "id", "uuid": "id", "guid": "id",
	"yn": "yesno", "is": "yesno", "flg": "yesno", "flag": "yesno",
	"stat": "status", "sts": "status", "typ": "type", "val": "value",
	"seq": "sequence", "idx": "index", "exp": "expires",
}

// hints are checked in order; the first one found among the decoded name
// parts wins.
var hints = []string{
	"id", "email", "phone", "password", "url", "ip", "zipcode",
	"latitude", "longitude", "address", "city", "country", "name",
	"title", "subject", "description", "message", "text",
	"price", "amount", "count", "quantity", "yesno", "status", "date", "expires",
}

// Meaning guesses what a column holds from its name, e.g. "user_email" ->
// "email", "reg_dt" -> "date". It returns "" when nothing matches.
func Meaning(colName string) string {
	parts := strings.FieldsFunc(strings.ToLower(colName), func(r rune) bool {
		return r == '_' || r == '-'
	})
	decoded := make(map[string]bool, len(parts))
	for _, p := range parts {
		if full, ok := abbreviations[p]; ok {
			p = full
		}
		decoded[p] = true
	}
	for _, h := range hints {
		if decoded[h] {
			return h
		}
	}
	// Suffixes glued to the name, e.g. "createdAt", "userid".
	n := strings.ToLower(colName)
	switch {
	case strings.HasSuffix(n, "email"):
		return "email"
	case strings.HasSuffix(n, "id"):
		return "id"
	case strings.HasSuffix(n, "at"), strings.HasSuffix(n, "time"):
		return "date"
	}
	return ""
}
