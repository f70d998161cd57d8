// Package codeindex indexes a Go source tree into CSV files: one row per
// package clause, type declaration, function and call expression. Files are
// parsed in parallel; each worker collects rows locally and appends them to
// the shared writers under short per-writer critical sections.
package codeindex

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"sync"
)

// Runner walks payload.root, parses every accepted .go file and writes
// packages.csv, types.csv, funcs.csv and calls.csv under payload.output.
type Runner struct {
	log *slog.Logger
}

func NewRunner(log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{log: log}
}

type indexPayload struct {
	Root     string   `json:"root"`
	Output   string   `json:"output"`
	Includes []string `json:"includes"`
	Excludes []string `json:"excludes"`
}

func (r *Runner) Run(ctx context.Context, payload json.RawMessage) error {
	var p indexPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("bad payload: %w", err)
	}
	if p.Root == "" {
		return fmt.Errorf("payload.root required")
	}
	if p.Output == "" {
		return fmt.Errorf("payload.output required")
	}

	root, err := filepath.Abs(p.Root)
	if err != nil {
		return fmt.Errorf("bad root %q: %w", p.Root, err)
	}
	if err := os.MkdirAll(p.Output, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	filter := NewPathFilter(p.Includes, p.Excludes)
	files, err := collectGoFiles(root, filter)
	if err != nil {
		return fmt.Errorf("scan %s: %w", root, err)
	}
	r.log.Info("indexing source tree", "root", root, "files", len(files))

	out, err := newOutputs(p.Output)
	if err != nil {
		return err
	}
	defer out.close()

	fset := token.NewFileSet()
	fileCh := make(chan string)
	errCh := make(chan error, 1)
	var wg sync.WaitGroup

	workers := runtime.NumCPU()
	if workers > len(files) && len(files) > 0 {
		workers = len(files)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := range fileCh {
				if err := indexFile(fset, root, f, out); err != nil {
					r.log.Warn("parse failed, skipping file", "file", f, "error", err)
				}
			}
		}()
	}

	go func() {
		defer close(fileCh)
		for _, f := range files {
			select {
			case <-ctx.Done():
				select {
				case errCh <- ctx.Err():
				default:
				}
				return
			case fileCh <- f:
			}
		}
	}()

	wg.Wait()
	select {
	case err := <-errCh:
		return err
	default:
	}

	if err := out.flush(); err != nil {
		return fmt.Errorf("flush index output: %w", err)
	}
	r.log.Info("index finished", "output", p.Output)
	return nil
}

func collectGoFiles(root string, filter *PathFilter) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".go") {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return nil
		}
		if filter.Accept(filepath.ToSlash(rel)) {
			files = append(files, p)
		}
		return nil
	})
	return files, err
}

// outputs owns one CSV writer per index file, each behind its own lock so
// parallel producers only contend per output.
type outputs struct {
	packages *lockedCSV
	types    *lockedCSV
	funcs    *lockedCSV
	calls    *lockedCSV
}

type lockedCSV struct {
	mu sync.Mutex
	f  *os.File
	w  *csv.Writer
}

func newLockedCSV(path string, header []string) (*lockedCSV, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, err
	}
	return &lockedCSV{f: f, w: w}, nil
}

func (l *lockedCSV) writeAll(rows [][]string) {
	if len(rows) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, row := range rows {
		l.w.Write(row)
	}
}

func newOutputs(dir string) (*outputs, error) {
	var o outputs
	var err error
	if o.packages, err = newLockedCSV(filepath.Join(dir, "packages.csv"),
		[]string{"package", "file"}); err != nil {
		return nil, err
	}
	if o.types, err = newLockedCSV(filepath.Join(dir, "types.csv"),
		[]string{"package", "name", "kind", "exported", "doc", "file", "line"}); err != nil {
		o.close()
		return nil, err
	}
	if o.funcs, err = newLockedCSV(filepath.Join(dir, "funcs.csv"),
		[]string{"package", "receiver", "name", "params", "results", "exported", "doc", "file", "line"}); err != nil {
		o.close()
		return nil, err
	}
	if o.calls, err = newLockedCSV(filepath.Join(dir, "calls.csv"),
		[]string{"package", "caller", "callee", "file", "line"}); err != nil {
		o.close()
		return nil, err
	}
	return &o, nil
}

func (o *outputs) each(fn func(*lockedCSV)) {
	for _, l := range []*lockedCSV{o.packages, o.types, o.funcs, o.calls} {
		if l != nil {
			fn(l)
		}
	}
}

func (o *outputs) flush() error {
	var firstErr error
	o.each(func(l *lockedCSV) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.w.Flush()
		if err := l.w.Error(); err != nil && firstErr == nil {
			firstErr = err
		}
	})
	return firstErr
}

func (o *outputs) close() {
	o.each(func(l *lockedCSV) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.w.Flush()
		l.f.Close()
	})
}

func indexFile(fset *token.FileSet, root, file string, out *outputs) error {
	src, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	f, err := parser.ParseFile(fset, file, src, parser.ParseComments)
	if err != nil {
		return err
	}

	rel, err := filepath.Rel(root, file)
	if err != nil {
		rel = file
	}
	rel = filepath.ToSlash(rel)
	pkg := f.Name.Name

	var pkgRows, typeRows, funcRows, callRows [][]string
	pkgRows = append(pkgRows, []string{pkg, rel})

	line := func(pos token.Pos) string {
		return fmt.Sprintf("%d", fset.Position(pos).Line)
	}

	for _, decl := range f.Decls {
		switch d := decl.(type) {
		case *ast.GenDecl:
			if d.Tok != token.TYPE {
				continue
			}
			for _, spec := range d.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				doc := ts.Doc.Text()
				if doc == "" {
					doc = d.Doc.Text()
				}
				typeRows = append(typeRows, []string{
					pkg, ts.Name.Name, typeKind(ts),
					fmt.Sprintf("%t", ts.Name.IsExported()),
					docSummary(doc), rel, line(ts.Pos()),
				})
			}

		case *ast.FuncDecl:
			recv := receiverName(d)
			funcRows = append(funcRows, []string{
				pkg, recv, d.Name.Name,
				fieldList(d.Type.Params), fieldList(d.Type.Results),
				fmt.Sprintf("%t", d.Name.IsExported()),
				docSummary(d.Doc.Text()), rel, line(d.Pos()),
			})

			caller := d.Name.Name
			if recv != "" {
				caller = recv + "." + caller
			}
			ast.Inspect(d, func(n ast.Node) bool {
				call, ok := n.(*ast.CallExpr)
				if !ok {
					return true
				}
				callRows = append(callRows, []string{
					pkg, caller, exprString(call.Fun), rel, line(call.Pos()),
				})
				return true
			})
		}
	}

	out.packages.writeAll(pkgRows)
	out.types.writeAll(typeRows)
	out.funcs.writeAll(funcRows)
	out.calls.writeAll(callRows)
	return nil
}

func typeKind(ts *ast.TypeSpec) string {
	switch ts.Type.(type) {
	case *ast.StructType:
		return "struct"
	case *ast.InterfaceType:
		return "interface"
	case *ast.FuncType:
		return "func"
	default:
		if ts.Assign.IsValid() {
			return "alias"
		}
		return "defined"
	}
}

func receiverName(d *ast.FuncDecl) string {
	if d.Recv == nil || len(d.Recv.List) == 0 {
		return ""
	}
	return strings.TrimPrefix(exprString(d.Recv.List[0].Type), "*")
}

func fieldList(fl *ast.FieldList) string {
	if fl == nil {
		return ""
	}
	var parts []string
	for _, f := range fl.List {
		t := exprString(f.Type)
		if len(f.Names) == 0 {
			parts = append(parts, t)
			continue
		}
		for range f.Names {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, ", ")
}

// exprString renders simple type and call expressions; anything deeper
// collapses to a placeholder rather than dragging in a printer.
func exprString(e ast.Expr) string {
	switch v := e.(type) {
	case *ast.Ident:
		return v.Name
	case *ast.SelectorExpr:
		return exprString(v.X) + "." + v.Sel.Name
	case *ast.StarExpr:
		return "*" + exprString(v.X)
	case *ast.ArrayType:
		return "[]" + exprString(v.Elt)
	case *ast.MapType:
		return "map[" + exprString(v.Key) + "]" + exprString(v.Value)
	case *ast.Ellipsis:
		return "..." + exprString(v.Elt)
	case *ast.IndexExpr:
		return exprString(v.X)
	case *ast.FuncType:
		return "func"
	case *ast.InterfaceType:
		return "interface{}"
	case *ast.StructType:
		return "struct{}"
	case *ast.ChanType:
		return "chan " + exprString(v.Value)
	case *ast.ParenExpr:
		return exprString(v.X)
	default:
		return "?"
	}
}

var docWhitespaceRe = regexp.MustCompile(`\s+`)

func docSummary(doc string) string {
	return strings.TrimSpace(docWhitespaceRe.ReplaceAllString(doc, " "))
}
