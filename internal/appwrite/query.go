package appwrite

import "encoding/json"

// Query はAppwriteのクエリ式を組み立てる。
type Query struct {
	Method    string `json:"method"`
	Attribute string `json:"attribute,omitempty"`
	Values    []any  `json:"values,omitempty"`
}

// String はAPIに渡すJSON表現を返す。
func (q Query) String() string {
	b, _ := json.Marshal(q)
	return string(b)
}

// Equal は属性が値のいずれかに一致する条件を返す。
func Equal(attribute string, values ...any) Query {
	return Query{Method: "equal", Attribute: attribute, Values: values}
}

// Limit は取得件数の上限を返す。
func Limit(n int) Query {
	return Query{Method: "limit", Values: []any{n}}
}

// Queries はクエリをqueries[]パラメータ用の文字列スライスに変換する。
func Queries(qs ...Query) []string {
	out := make([]string, 0, len(qs))
	for _, q := range qs {
		out = append(out, q.String())
	}
	return out
}
