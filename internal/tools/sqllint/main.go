// Command sqllint checks the SQL constants in internal/sqlinline: every
// statement needs a unique --sql <uuid> marker on its first line, and its
// $n placeholders must run from $1 without gaps.
package main

import (
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	sqlKeywordPattern  = regexp.MustCompile(`(?i)\b(select|insert|update|delete|with|create|alter)\b`)
	uuidMarkerPattern  = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	placeholderPattern = regexp.MustCompile(`\$([0-9]+)`)
)

type violation struct {
	file    string
	name    string
	line    int
	message string
}

func (v violation) String() string {
	return fmt.Sprintf("%s:%d %s (%s)", v.file, v.line, v.message, v.name)
}

type statement struct {
	file   string
	name   string
	line   int
	marker string
}

func main() {
	flag.Parse()
	targets := flag.Args()
	if len(targets) == 0 {
		targets = []string{"."}
	}

	violations, err := lintTargets(targets)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sqllint: %v\n", err)
		os.Exit(1)
	}
	if len(violations) > 0 {
		fmt.Fprintln(os.Stderr, "sqllint: SQL constant violations")
		for _, v := range violations {
			fmt.Fprintf(os.Stderr, "  %s\n", v)
		}
		os.Exit(1)
	}
}

func lintTargets(targets []string) ([]violation, error) {
	var (
		violations []violation
		statements []statement
	)
	collect := func(path string) error {
		vs, st, err := lintFile(path)
		if err != nil {
			return err
		}
		violations = append(violations, vs...)
		statements = append(statements, st...)
		return nil
	}

	for _, target := range targets {
		info, err := os.Stat(target)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if filepath.Ext(target) == ".go" {
				if err := collect(target); err != nil {
					return nil, err
				}
			}
			continue
		}
		walkErr := filepath.WalkDir(target, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != target && (strings.HasPrefix(d.Name(), ".") || strings.HasPrefix(d.Name(), "_") || d.Name() == "vendor" || d.Name() == "testdata") {
					return filepath.SkipDir
				}
				return nil
			}
			if filepath.Ext(path) != ".go" || strings.HasSuffix(path, "_test.go") {
				return nil
			}
			return collect(path)
		})
		if walkErr != nil {
			return nil, walkErr
		}
	}

	violations = append(violations, duplicateMarkers(statements)...)
	return violations, nil
}

func lintFile(path string) ([]violation, []statement, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.ParseComments)
	if err != nil {
		return nil, nil, err
	}
	var (
		violations []violation
		statements []statement
	)
	ast.Inspect(file, func(n ast.Node) bool {
		vs, ok := n.(*ast.ValueSpec)
		if !ok {
			return true
		}
		for _, value := range vs.Values {
			bl, ok := value.(*ast.BasicLit)
			if !ok || bl.Kind != token.STRING {
				continue
			}
			raw, err := unquote(bl.Value)
			if err != nil || !sqlKeywordPattern.MatchString(raw) {
				continue
			}
			pos := fset.Position(bl.Pos())
			name := joinNames(vs.Names)
			marker := firstLine(raw)
			if !uuidMarkerPattern.MatchString(marker) {
				// plain strings that merely mention a keyword are not SQL
				if !strings.Contains(raw, "\n") {
					continue
				}
				violations = append(violations, violation{file: path, line: pos.Line, name: name, message: "missing or invalid --sql <uuid> marker"})
				continue
			}
			statements = append(statements, statement{file: path, name: name, line: pos.Line, marker: marker})
			if msg := checkPlaceholders(raw); msg != "" {
				violations = append(violations, violation{file: path, line: pos.Line, name: name, message: msg})
			}
		}
		return true
	})
	return violations, statements, nil
}

// checkPlaceholders reports gaps in $n numbering, which Postgres rejects at
// prepare time.
func checkPlaceholders(query string) string {
	seen := map[int]bool{}
	highest := 0
	for _, m := range placeholderPattern.FindAllStringSubmatch(query, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil || n == 0 {
			return fmt.Sprintf("invalid placeholder $%s", m[1])
		}
		seen[n] = true
		if n > highest {
			highest = n
		}
	}
	for i := 1; i <= highest; i++ {
		if !seen[i] {
			return fmt.Sprintf("placeholder $%d unused while $%d is referenced", i, highest)
		}
	}
	return ""
}

func duplicateMarkers(statements []statement) []violation {
	byMarker := map[string][]statement{}
	for _, st := range statements {
		byMarker[st.marker] = append(byMarker[st.marker], st)
	}
	var out []violation
	for marker, group := range byMarker {
		if len(group) < 2 {
			continue
		}
		for _, st := range group[1:] {
			out = append(out, violation{
				file:    st.file,
				line:    st.line,
				name:    st.name,
				message: fmt.Sprintf("marker %s already used by %s", strings.TrimPrefix(marker, "--sql "), group[0].name),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].file != out[j].file {
			return out[i].file < out[j].file
		}
		return out[i].line < out[j].line
	})
	return out
}

func firstLine(s string) string {
	s = strings.TrimLeft(s, "\n\r \t")
	if idx := strings.IndexAny(s, "\n\r"); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}

func unquote(v string) (string, error) {
	if len(v) == 0 {
		return v, nil
	}
	if v[0] == '`' {
		return v[1 : len(v)-1], nil
	}
	return strconv.Unquote(v)
}

func joinNames(idents []*ast.Ident) string {
	parts := make([]string, 0, len(idents))
	for _, ident := range idents {
		if ident == nil {
			continue
		}
		parts = append(parts, ident.Name)
	}
	return strings.Join(parts, ",")
}
