package metadata

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/buildbuildio/fusion/common"
	"github.com/buildbuildio/fusion/operation"
	"github.com/samber/lo"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
)

const (
	SourceDirectiveName  = "source"
	FetcherDirectiveName = "fetcher"
)

// DirectivesSDL declares the directives a composed schema is annotated with.
const DirectivesSDL = `
directive @source(name: String!) repeatable on OBJECT | FIELD_DEFINITION
directive @fetcher(source: String!, field: String!, arguments: [String!]) repeatable on OBJECT
`

var (
	ErrInconsistentSchema = errors.New("inconsistent schema")
	ErrNoFetcher          = errors.New("no fetcher")
	ErrInvalidFetcher     = errors.New("invalid fetcher")
)

// FieldRef names a field of an object type.
type FieldRef struct {
	TypeName  string
	FieldName string
}

func (r FieldRef) String() string {
	return r.TypeName + "." + r.FieldName
}

// ArgumentBinding binds an argument of a fetcher root field to a field of the
// fetched type or of an ancestor type on the traversal path.
type ArgumentBinding struct {
	Name      string
	Type      *ast.Type
	TypeName  string
	FieldName string
}

// VariableName is the name of the exported variable carrying the bound value.
func (b ArgumentBinding) VariableName() string {
	return common.ExportName(b.TypeName, b.FieldName)
}

func (b ArgumentBinding) Field() FieldRef {
	return FieldRef{TypeName: b.TypeName, FieldName: b.FieldName}
}

// ObjectFetcher is a root query field of a source returning TypeName.
type ObjectFetcher struct {
	Source    string
	TypeName  string
	FieldName string
	Arguments []ArgumentBinding
}

// DB indexes which source resolves which field and how objects are refetched
// from a source. It is built once per composed schema and read concurrently.
type DB struct {
	schema   *ast.Schema
	sources  []string
	provides map[string]map[FieldRef]struct{}
	types    map[string]map[string]struct{}
	fetchers map[string]map[string][]*ObjectFetcher
}

// LoadSchema parses a composed schema, declaring the directives it relies on.
func LoadSchema(sdl string) (*ast.Schema, error) {
	schema, err := gqlparser.LoadSchema(
		&ast.Source{Name: "fusion-directives", Input: DirectivesSDL},
		&ast.Source{Name: "schema", Input: sdl},
	)
	if err != nil {
		return nil, err
	}
	return schema, nil
}

// New indexes schema. sources fixes the registration order; sources only named
// in directives follow, sorted by name.
func New(schema *ast.Schema, sources ...string) (*DB, error) {
	db := &DB{
		schema:   schema,
		provides: make(map[string]map[FieldRef]struct{}),
		types:    make(map[string]map[string]struct{}),
		fetchers: make(map[string]map[string][]*ObjectFetcher),
	}
	for _, s := range lo.Uniq(sources) {
		db.addSource(s)
	}

	var discovered []string
	for _, name := range sortedTypeNames(schema) {
		def := schema.Types[name]
		if def.Kind != ast.Object || common.IsBuiltinName(def.Name) {
			continue
		}

		objectSources := directiveStrings(def.Directives, SourceDirectiveName, "name")
		for _, f := range def.Fields {
			if common.IsBuiltinName(f.Name) {
				continue
			}
			fieldSources := directiveStrings(f.Directives, SourceDirectiveName, "name")
			if len(fieldSources) == 0 {
				fieldSources = objectSources
			}
			for _, s := range fieldSources {
				if db.provides[s] == nil {
					discovered = append(discovered, s)
					db.addSource(s)
				}
				db.provides[s][FieldRef{TypeName: def.Name, FieldName: f.Name}] = struct{}{}
				db.types[s][def.Name] = struct{}{}
			}
		}
	}

	// fetchers are resolved after every source is known
	for _, name := range sortedTypeNames(schema) {
		def := schema.Types[name]
		if def.Kind != ast.Object {
			continue
		}
		for _, d := range def.Directives.ForNames(FetcherDirectiveName) {
			fetcher, err := db.parseFetcher(def, d)
			if err != nil {
				return nil, err
			}
			if db.fetchers[fetcher.Source] == nil {
				discovered = append(discovered, fetcher.Source)
				db.addSource(fetcher.Source)
			}
			db.fetchers[fetcher.Source][def.Name] = append(db.fetchers[fetcher.Source][def.Name], fetcher)
			db.types[fetcher.Source][def.Name] = struct{}{}
		}
	}

	configured := len(db.sources) - len(discovered)
	sort.Strings(db.sources[configured:])

	return db, nil
}

func (db *DB) addSource(name string) {
	db.sources = append(db.sources, name)
	db.provides[name] = make(map[FieldRef]struct{})
	db.types[name] = make(map[string]struct{})
	db.fetchers[name] = make(map[string][]*ObjectFetcher)
}

func (db *DB) parseFetcher(def *ast.Definition, d *ast.Directive) (*ObjectFetcher, error) {
	source := directiveString(d, "source")
	field := directiveString(d, "field")
	if source == "" || field == "" {
		return nil, fmt.Errorf("%w: %s: source and field are required", ErrInvalidFetcher, def.Name)
	}
	if db.schema.Query == nil {
		return nil, fmt.Errorf("%w: %s: schema has no query type", ErrInvalidFetcher, def.Name)
	}
	rootField := db.schema.Query.Fields.ForName(field)
	if rootField == nil {
		return nil, fmt.Errorf("%w: %s: unknown field Query.%s", ErrInvalidFetcher, def.Name, field)
	}

	fetcher := &ObjectFetcher{Source: source, TypeName: def.Name, FieldName: field}

	if arg := d.Arguments.ForName("arguments"); arg != nil && arg.Value != nil {
		for _, child := range arg.Value.Children {
			binding, err := db.parseBinding(rootField, child.Value.Raw)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrInvalidFetcher, def.Name, err)
			}
			fetcher.Arguments = append(fetcher.Arguments, binding)
		}
	}

	return fetcher, nil
}

// parseBinding reads "argName: TypeName.fieldName".
func (db *DB) parseBinding(rootField *ast.FieldDefinition, raw string) (ArgumentBinding, error) {
	name, ref, ok := strings.Cut(raw, ":")
	if !ok {
		return ArgumentBinding{}, fmt.Errorf("malformed binding %q", raw)
	}
	typeName, fieldName, ok := strings.Cut(strings.TrimSpace(ref), ".")
	if !ok {
		return ArgumentBinding{}, fmt.Errorf("malformed binding %q", raw)
	}
	name = strings.TrimSpace(name)

	arg := rootField.Arguments.ForName(name)
	if arg == nil {
		return ArgumentBinding{}, fmt.Errorf("unknown argument %s of Query.%s", name, rootField.Name)
	}
	typ := db.schema.Types[typeName]
	if typ == nil || typ.Fields.ForName(fieldName) == nil {
		return ArgumentBinding{}, fmt.Errorf("unknown field %s.%s", typeName, fieldName)
	}

	return ArgumentBinding{Name: name, Type: arg.Type, TypeName: typeName, FieldName: fieldName}, nil
}

func (db *DB) Schema() *ast.Schema {
	return db.schema
}

// Sources in registration order.
func (db *DB) Sources() []string {
	return append([]string(nil), db.sources...)
}

// IsPartOfSource reports whether source resolves the selection on its declaring type.
func (db *DB) IsPartOfSource(source string, sel *operation.Selection) bool {
	return db.IsFieldPartOfSource(source, selectionRef(sel))
}

func (db *DB) IsFieldPartOfSource(source string, ref FieldRef) bool {
	if ref.FieldName == common.TypenameFieldName {
		_, ok := db.provides[source]
		return ok
	}
	_, ok := db.provides[source][ref]
	return ok
}

// IsTypePartOfSource reports whether source can return objects of typeName.
func (db *DB) IsTypePartOfSource(source, typeName string) bool {
	_, ok := db.types[source][typeName]
	return ok
}

// GetSource returns the first source resolving all selections, otherwise the
// first source with the highest partial score.
func (db *DB) GetSource(selections []*operation.Selection) (string, error) {
	return db.GetSourceForFields(lo.Map(selections, func(sel *operation.Selection, _ int) FieldRef {
		return selectionRef(sel)
	}))
}

func (db *DB) GetSourceForFields(refs []FieldRef) (string, error) {
	best, bestScore := "", 0
	for _, s := range db.sources {
		score := db.score(s, refs)
		if score == len(refs) && score > 0 {
			return s, nil
		}
		if score > bestScore {
			best, bestScore = s, score
		}
	}
	if bestScore == 0 {
		return "", fmt.Errorf("%w: no source resolves any of %v", ErrInconsistentSchema, refs)
	}
	return best, nil
}

// RankSources orders the sources by how many refs they resolve. Ties keep
// registration order. Sources resolving nothing are omitted.
func (db *DB) RankSources(refs []FieldRef) []string {
	type scored struct {
		source string
		score  int
	}
	var res []scored
	for _, s := range db.sources {
		if score := db.score(s, refs); score > 0 {
			res = append(res, scored{source: s, score: score})
		}
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].score > res[j].score })
	return lo.Map(res, func(s scored, _ int) string { return s.source })
}

func (db *DB) score(source string, refs []FieldRef) int {
	return lo.CountBy(refs, func(ref FieldRef) bool {
		return db.IsFieldPartOfSource(source, ref)
	})
}

// GetObjectFetcher returns the first fetcher of typeName on source whose
// arguments all bind to typeName itself or to a type in typesInPath.
func (db *DB) GetObjectFetcher(source, typeName string, typesInPath []string) (*ObjectFetcher, error) {
	for _, f := range db.fetchers[source][typeName] {
		bound := lo.EveryBy(f.Arguments, func(b ArgumentBinding) bool {
			return b.TypeName == typeName || lo.Contains(typesInPath, b.TypeName)
		})
		if bound {
			return f, nil
		}
	}
	return nil, fmt.Errorf("%w: %s cannot be fetched from %s", ErrNoFetcher, typeName, source)
}

// HasFetcher reports whether any source can refetch typeName.
func (db *DB) HasFetcher(typeName string) bool {
	return lo.SomeBy(db.sources, func(s string) bool {
		return len(db.fetchers[s][typeName]) > 0
	})
}

func selectionRef(sel *operation.Selection) FieldRef {
	return FieldRef{TypeName: sel.DeclaringSelectionSet().Type().Name, FieldName: sel.FieldName()}
}

func sortedTypeNames(schema *ast.Schema) []string {
	names := lo.Keys(schema.Types)
	sort.Strings(names)
	return names
}

func directiveStrings(directives ast.DirectiveList, name, argument string) []string {
	var res []string
	for _, d := range directives.ForNames(name) {
		if v := directiveString(d, argument); v != "" {
			res = append(res, v)
		}
	}
	return res
}

func directiveString(d *ast.Directive, argument string) string {
	arg := d.Arguments.ForName(argument)
	if arg == nil || arg.Value == nil {
		return ""
	}
	return arg.Value.Raw
}
