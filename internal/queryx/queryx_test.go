package queryx

import "testing"

func TestCompile(t *testing.T) {
	compiled, err := Compile("INSERT INTO t (a, b) VALUES ({a}, {b})")
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	want := "INSERT INTO t (a, b) VALUES (:a, :b)"
	if compiled.SQL != want {
		t.Errorf("SQL = %q, want %q", compiled.SQL, want)
	}
	if _, ok := compiled.ParamNames["a"]; !ok {
		t.Error("expected param 'a'")
	}
	if _, ok := compiled.ParamNames["b"]; !ok {
		t.Error("expected param 'b'")
	}
}

func TestCompileEscapedBraces(t *testing.T) {
	compiled, err := Compile("{{literal}} {name}")
	if err != nil {
		t.Fatalf("Compile returned error: %v", err)
	}
	want := "{literal} :name"
	if compiled.SQL != want {
		t.Errorf("SQL = %q, want %q", compiled.SQL, want)
	}
}

func TestCompileErrors(t *testing.T) {
	cases := []string{
		"unmatched {brace",
		"empty {}",
		"bad {1name}",
		"stray } brace",
	}
	for _, tmpl := range cases {
		if _, err := Compile(tmpl); err == nil {
			t.Errorf("Compile(%q): expected error, got nil", tmpl)
		}
	}
}

func TestBuild(t *testing.T) {
	sql, params, err := Build("SELECT {x} FROM t WHERE y = {y}", map[string]any{
		"x": "level",
		"y": 42,
		"z": "unused",
	})
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	if sql != "SELECT :x FROM t WHERE y = :y" {
		t.Errorf("sql = %q", sql)
	}
	if len(params) != 2 {
		t.Errorf("expected only referenced variables in params, got %v", params)
	}
	if params["x"] != "level" || params["y"] != 42 {
		t.Errorf("unexpected params: %v", params)
	}
}

func TestBuildMissingVariable(t *testing.T) {
	_, _, err := Build("SELECT {missing}", map[string]any{})
	if err == nil {
		t.Fatal("expected MissingVariablesError")
	}
	if _, ok := err.(*MissingVariablesError); !ok {
		t.Errorf("expected *MissingVariablesError, got %T", err)
	}
}
