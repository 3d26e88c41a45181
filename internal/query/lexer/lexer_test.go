package lexer

import "testing"

func TestTrimStatement(t *testing.T) {
	cases := map[string]string{
		"SELECT * FROM t;":  "SELECT * FROM t",
		"  SELECT 1  ":      "SELECT 1",
		"exit":              "exit",
		"CREATE TABLE t();": "CREATE TABLE t()",
	}
	for in, want := range cases {
		if got := TrimStatement(in); got != want {
			t.Errorf("TrimStatement(%q) = %q, want %q", in, got, want)
		}
	}
}
