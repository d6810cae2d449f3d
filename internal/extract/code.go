package extract

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"path"
	"strings"

	"github.com/tessera-ai/tessera/internal/domain"
	"github.com/tessera-ai/tessera/internal/source"
)

// CodeExtractor emits one fragment per top-level Go declaration: function,
// method, struct, interface, named type, constant, variable. Content is
// the exact source slice of the declaration with its doc comment.
type CodeExtractor struct {
	orgID     string
	projectID string
}

// NewCodeExtractor creates a new CodeExtractor instance
func NewCodeExtractor(orgID, projectID string) *CodeExtractor {
	return &CodeExtractor{
		orgID:     orgID,
		projectID: projectID,
	}
}

// codeSymbol is one declaration lifted out of the AST before it becomes a
// fragment draft.
type codeSymbol struct {
	name      string
	kind      string
	exported  bool
	startLine int
	content   string
	node      ast.Node
	// own are the declaration's defining idents, excluded from dependency
	// matching.
	own map[*ast.Ident]bool
}

// Extract parses the unit as a Go file and walks every top-level
// declaration. Partial ASTs from files with syntax errors are still
// walked; the parse error surfaces only when no symbol could be read.
func (e *CodeExtractor) Extract(unit source.Unit) ([]domain.Fragment, []domain.RelationshipEdge, error) {
	fset := token.NewFileSet()
	file, parseErr := parser.ParseFile(fset, unit.Ref, unit.Content, parser.ParseComments)
	if file == nil {
		return nil, nil, domain.NewDomainErrorWithCause(domain.ErrCodeParse,
			fmt.Sprintf("cannot parse %s", unit.Ref), parseErr)
	}

	symbols := collectSymbols(fset, file, unit.Content)
	if len(symbols) == 0 && parseErr != nil {
		return nil, nil, domain.NewDomainErrorWithCause(domain.ErrCodeParse,
			fmt.Sprintf("no symbols readable in %s", unit.Ref), parseErr)
	}

	baseName := path.Base(unit.Ref)
	fragments := make([]domain.Fragment, 0, len(symbols))
	ids := make([]string, len(symbols))
	for i, sym := range symbols {
		id := domain.CodeSymbolIdentity(e.projectID, unit.Ref, sym.name, sym.startLine)
		ids[i] = id

		visibility := "unexported"
		if sym.exported {
			visibility = "exported"
		}
		f := domain.NewFragment(
			id, e.orgID, e.projectID,
			domain.FragmentTypeCodeSymbol,
			sym.name, sym.content,
			[]string{sym.kind, baseName, visibility},
			domain.SourceTypeCodeFile,
			fmt.Sprintf("%s:%d", unit.Ref, sym.startLine),
		)
		f.ConfidenceScore = codeConfidence
		fragments = append(fragments, *f)
	}

	edges := dependencyEdges(symbols, ids)
	return fragments, edges, nil
}

// collectSymbols lifts every top-level declaration out of the file. Specs
// inside parenthesized const/var/type blocks become individual symbols;
// the block's shared doc comment stays with the block, each spec keeps its
// own.
func collectSymbols(fset *token.FileSet, file *ast.File, src []byte) []codeSymbol {
	var symbols []codeSymbol
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			if d.Name == nil {
				continue
			}
			name := d.Name.Name
			kind := "func"
			own := map[*ast.Ident]bool{d.Name: true}
			if d.Recv != nil && len(d.Recv.List) > 0 {
				kind = "method"
				if recv := receiverTypeName(d.Recv.List[0].Type); recv != "" {
					name = recv + "." + name
				}
			}
			symbols = append(symbols, codeSymbol{
				name:      name,
				kind:      kind,
				exported:  d.Name.IsExported(),
				startLine: fset.Position(d.Pos()).Line,
				content:   sliceSource(fset, src, docStart(d.Doc, d.Pos()), d.End()),
				node:      d,
				own:       own,
			})

		case *ast.GenDecl:
			if d.Tok == token.IMPORT {
				continue
			}
			grouped := d.Lparen.IsValid()
			for _, spec := range d.Specs {
				switch s := spec.(type) {
				case *ast.TypeSpec:
					if s.Name == nil {
						continue
					}
					start, end := specRange(d, s.Doc, s.Pos(), s.End(), grouped)
					symbols = append(symbols, codeSymbol{
						name:      s.Name.Name,
						kind:      typeKind(s.Type),
						exported:  s.Name.IsExported(),
						startLine: fset.Position(s.Pos()).Line,
						content:   sliceSource(fset, src, start, end),
						node:      s,
						own:       map[*ast.Ident]bool{s.Name: true},
					})
				case *ast.ValueSpec:
					if len(s.Names) == 0 {
						continue
					}
					kind := "const"
					if d.Tok == token.VAR {
						kind = "var"
					}
					names := make([]string, len(s.Names))
					own := make(map[*ast.Ident]bool, len(s.Names))
					for i, n := range s.Names {
						names[i] = n.Name
						own[n] = true
					}
					start, end := specRange(d, s.Doc, s.Pos(), s.End(), grouped)
					symbols = append(symbols, codeSymbol{
						name:      strings.Join(names, ", "),
						kind:      kind,
						exported:  s.Names[0].IsExported(),
						startLine: fset.Position(s.Pos()).Line,
						content:   sliceSource(fset, src, start, end),
						node:      s,
						own:       own,
					})
				}
			}
		}
	}
	return symbols
}

// specRange picks the source span of one spec: a lone spec carries the
// whole declaration with its doc, a spec inside a block carries only its
// own lines.
func specRange(d *ast.GenDecl, doc *ast.CommentGroup, pos, end token.Pos, grouped bool) (token.Pos, token.Pos) {
	if !grouped {
		return docStart(d.Doc, d.Pos()), d.End()
	}
	return docStart(doc, pos), end
}

func docStart(doc *ast.CommentGroup, fallback token.Pos) token.Pos {
	if doc != nil {
		return doc.Pos()
	}
	return fallback
}

func sliceSource(fset *token.FileSet, src []byte, from, to token.Pos) string {
	start := fset.Position(from).Offset
	end := fset.Position(to).Offset
	if start < 0 || end > len(src) || start >= end {
		return ""
	}
	return string(src[start:end])
}

func receiverTypeName(expr ast.Expr) string {
	for {
		switch t := expr.(type) {
		case *ast.StarExpr:
			expr = t.X
		case *ast.IndexExpr:
			expr = t.X
		case *ast.IndexListExpr:
			expr = t.X
		case *ast.Ident:
			return t.Name
		default:
			return ""
		}
	}
}

func typeKind(expr ast.Expr) string {
	switch expr.(type) {
	case *ast.StructType:
		return "struct"
	case *ast.InterfaceType:
		return "interface"
	}
	return "type"
}

// dependencyEdges links a symbol to every other same-file symbol its
// declaration references by name. Methods are matched only as edge
// sources; resolving a selector call to its method needs type information
// this pass does not have.
func dependencyEdges(symbols []codeSymbol, ids []string) []domain.RelationshipEdge {
	targets := make(map[string]string)
	for i, sym := range symbols {
		if sym.kind == "method" {
			continue
		}
		for _, name := range strings.Split(sym.name, ", ") {
			targets[name] = ids[i]
		}
	}

	var edges []domain.RelationshipEdge
	seen := make(map[string]bool)
	for i, sym := range symbols {
		fromID := ids[i]
		for _, name := range referencedNames(sym.node, sym.own) {
			toID, ok := targets[name]
			if !ok || toID == fromID {
				continue
			}
			key := fromID + "\x00" + toID
			if seen[key] {
				continue
			}
			seen[key] = true
			edges = append(edges, *domain.NewRelationshipEdge(fromID, toID, domain.EdgeKindDependsOn))
		}
	}
	return edges
}

// referencedNames collects plain identifier references inside a
// declaration. Selector fields are skipped; only the leftmost expression
// of a selector chain can name a same-file symbol.
func referencedNames(root ast.Node, skip map[*ast.Ident]bool) []string {
	var names []string
	var walk func(n ast.Node)
	walk = func(n ast.Node) {
		ast.Inspect(n, func(child ast.Node) bool {
			switch x := child.(type) {
			case *ast.SelectorExpr:
				walk(x.X)
				return false
			case *ast.Ident:
				if !skip[x] {
					names = append(names, x.Name)
				}
			}
			return true
		})
	}
	walk(root)
	return names
}
