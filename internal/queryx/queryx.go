// Package queryx compiles SQL query templates that use {name}
// placeholders into parameterized queries, mirroring the behavior of
// backend/app/core/query_template.py.
package queryx

import (
	"fmt"
	"sort"
	"strings"
)

// Compiled is the result of compiling a query template.
type Compiled struct {
	SQL        string
	ParamNames map[string]struct{}
}

// TemplateError is raised for malformed templates.
type TemplateError struct {
	Msg string
}

func (e *TemplateError) Error() string { return e.Msg }

// Compile compiles a template with {name} placeholders into SQL with
// :name parameters.
//
// Supports:
//   - {var}  -> :var
//   - {{     -> '{'
//   - }}     -> '}'
func Compile(template string) (Compiled, error) {
	var sb strings.Builder
	paramNames := map[string]struct{}{}

	runes := []rune(template)
	n := len(runes)
	i := 0

	for i < n {
		ch := runes[i]

		if ch == '{' {
			if i+1 < n && runes[i+1] == '{' {
				sb.WriteRune('{')
				i += 2
				continue
			}

			j := i + 1
			for j < n && runes[j] != '}' {
				j++
			}
			if j >= n {
				return Compiled{}, &TemplateError{Msg: "Unmatched '{' in query template"}
			}

			name := strings.TrimSpace(string(runes[i+1 : j]))
			if name == "" {
				return Compiled{}, &TemplateError{Msg: "Empty placeholder '{}' in query template"}
			}
			if !isIdentifier(name) {
				return Compiled{}, &TemplateError{Msg: fmt.Sprintf("Invalid placeholder name '%s' in query template", name)}
			}

			paramNames[name] = struct{}{}
			sb.WriteString(":" + name)
			i = j + 1
			continue
		}

		if ch == '}' {
			if i+1 < n && runes[i+1] == '}' {
				sb.WriteRune('}')
				i += 2
				continue
			}
			return Compiled{}, &TemplateError{Msg: "Single '}' in query template"}
		}

		sb.WriteRune(ch)
		i++
	}

	return Compiled{SQL: sb.String(), ParamNames: paramNames}, nil
}

// isIdentifier approximates Python's str.isidentifier() for the
// practical ASCII variable names used in connection query templates:
// first character a letter or underscore, remaining characters
// letters, digits, or underscores.
func isIdentifier(s string) bool {
	for i, r := range s {
		isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_'
		isDigit := r >= '0' && r <= '9'
		if i == 0 {
			if !isLetter {
				return false
			}
			continue
		}
		if !isLetter && !isDigit {
			return false
		}
	}
	return true
}

// Build compiles template and resolves its placeholders against
// variables, returning SQL with :name parameters and a map containing
// only the variables actually referenced by the template. Extra
// variables are ignored; a MissingVariablesError is returned if any
// referenced name is absent from variables.
func Build(template string, variables map[string]any) (sql string, params map[string]any, err error) {
	compiled, err := Compile(template)
	if err != nil {
		return "", nil, err
	}

	params = make(map[string]any, len(compiled.ParamNames))
	var missing []string
	for name := range compiled.ParamNames {
		if v, ok := variables[name]; ok {
			params[name] = v
		} else {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return "", nil, &MissingVariablesError{Names: missing}
	}

	return compiled.SQL, params, nil
}

// MissingVariablesError reports variables referenced by a template
// but absent from the supplied values.
type MissingVariablesError struct {
	Names []string
}

func (e *MissingVariablesError) Error() string {
	return fmt.Sprintf("Missing variables for query template: %s", strings.Join(e.Names, ", "))
}
