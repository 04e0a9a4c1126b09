package planner

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/buildbuildio/fusion/common"
	"github.com/buildbuildio/fusion/format"
	"github.com/buildbuildio/fusion/metadata"
	"github.com/buildbuildio/fusion/operation"
	"github.com/samber/lo"
	"github.com/vektah/gqlparser/v2/ast"
)

var (
	ErrUnsupportedSubscription = errors.New("subscription fields must be resolved by one source")
	ErrExportCycle             = errors.New("export cycle")
)

// OperationPlanner splits an operation into round-trips to sources. Sources are
// assigned greedily, selection sets go to the source resolving most of them
// and the rest is refetched from other sources through object fetchers.
type OperationPlanner func(ctx *PlanningContext) (*QueryPlan, error)

// Plan returns a query plan from the given planning context
func (OperationPlanner) Plan(ctx *PlanningContext) (*QueryPlan, error) {
	p := &planning{
		op:         ctx.Operation,
		db:         ctx.Metadata,
		schema:     ctx.Metadata.Schema(),
		nodeFields: make(map[*operation.Selection]*QueryNode),
	}

	root, err := p.planRoot()
	if err != nil {
		return nil, err
	}
	p.nameDocuments(root)

	return &QueryPlan{
		Operation: p.op,
		Root:      root,
		Nodes:     p.nodes,
	}, nil
}

type planning struct {
	op     *operation.Operation
	db     *metadata.DB
	schema *ast.Schema
	nodes  []*QueryNode

	nodeFields map[*operation.Selection]*QueryNode
}

func (p *planning) newNode(kind NodeKind, source string, path operation.SelectionPath) *QueryNode {
	n := &QueryNode{
		ID:     len(p.nodes),
		Kind:   kind,
		Source: source,
		Path:   path,
	}
	p.nodes = append(p.nodes, n)
	return n
}

type rootGroup struct {
	source     string
	selections []*operation.Selection
}

func (p *planning) planRoot() (*QueryNode, error) {
	root := p.newNode(RootNode, "", operation.Root)
	rootSet := p.op.RootSelectionSet()

	var introspection *QueryNode
	var fetched []*operation.Selection
	for _, sel := range rootSet.Selections() {
		switch {
		case sel.IsTypename():
			// answered on completion
		case common.IsIntrospectionFieldName(sel.FieldName()):
			if introspection == nil {
				introspection = p.newNode(IntrospectionNode, common.InternalServiceName, operation.Root)
				root.Children = append(root.Children, introspection)
			}
			introspection.Selections = append(introspection.Selections, sel)
		case p.isNodeField(sel):
			n, err := p.planNodeField(sel)
			if err != nil {
				return nil, err
			}
			root.Children = append(root.Children, n)
		default:
			fetched = append(fetched, sel)
		}
	}
	if introspection != nil {
		introspection.Conditions = p.conditionsOf(introspection.Selections)
	}

	var groups []rootGroup
	var err error
	if p.op.Type() == ast.Mutation {
		groups, err = p.serialGroups(fetched)
	} else {
		groups, err = p.parallelGroups(fetched)
	}
	if err != nil {
		return nil, err
	}

	if p.op.Type() == ast.Subscription && (len(groups) != 1 || len(root.Children) != 0) {
		return nil, ErrUnsupportedSubscription
	}

	var previous *QueryNode
	for _, g := range groups {
		n := p.newNode(OperationNode, g.source, operation.Root)
		s := newScope(nil, n, g.source, operation.Root, p.op.RootType())

		set, err := p.buildScope(s, g.selections)
		if err != nil {
			return nil, err
		}
		n.Document = document(p.op, p.op.Type(), set, nil)
		n.Conditions = p.conditionsOf(g.selections)

		// root mutation fields run one source after another in document order
		if previous != nil && p.op.Type() == ast.Mutation {
			n.addDependency(previous.ID)
		}
		previous = n

		root.Children = append(root.Children, n)
	}

	return root, nil
}

func (p *planning) parallelGroups(selections []*operation.Selection) ([]rootGroup, error) {
	var groups []rootGroup
	remaining := selections
	for len(remaining) > 0 {
		source, err := p.db.GetSource(remaining)
		if err != nil {
			return nil, err
		}
		handled, rest := lo.FilterReject(remaining, func(sel *operation.Selection, _ int) bool {
			return p.db.IsPartOfSource(source, sel)
		})
		groups = append(groups, rootGroup{source: source, selections: handled})
		remaining = rest
	}
	return groups, nil
}

func (p *planning) serialGroups(selections []*operation.Selection) ([]rootGroup, error) {
	var groups []rootGroup
	for _, sel := range selections {
		source, err := p.db.GetSource([]*operation.Selection{sel})
		if err != nil {
			return nil, err
		}
		if len(groups) > 0 && groups[len(groups)-1].source == source {
			groups[len(groups)-1].selections = append(groups[len(groups)-1].selections, sel)
			continue
		}
		groups = append(groups, rootGroup{source: source, selections: []*operation.Selection{sel}})
	}
	return groups, nil
}

// buildScope emits the selections source s.source resolves and plans
// refetches for the others.
func (p *planning) buildScope(s *scope, selections []*operation.Selection) (ast.SelectionSet, error) {
	handled, remaining := lo.FilterReject(selections, func(sel *operation.Selection, _ int) bool {
		return p.db.IsPartOfSource(s.source, sel)
	})

	set := make(ast.SelectionSet, 0, len(handled))
	for _, sel := range handled {
		f, err := p.buildField(s, sel)
		if err != nil {
			return nil, err
		}
		set = append(set, f)
	}

	if len(remaining) > 0 {
		if err := p.planEntityFetches(s, remaining); err != nil {
			return nil, err
		}
	}

	set = append(set, s.exportFields()...)
	if len(set) == 0 {
		set = append(set, typenameField())
	}
	return set, nil
}

func (p *planning) buildField(s *scope, sel *operation.Selection) (*ast.Field, error) {
	f := fieldSyntax(sel)
	if sel.IsLeaf() || sel.IsTypename() {
		return f, nil
	}

	path := s.path.AppendField(sel.ResponseName())
	abstract := p.op.IsAbstract(sel)
	if abstract {
		f.SelectionSet = ast.SelectionSet{typenameField()}
	}

	for _, pt := range p.op.PossibleTypes(sel) {
		child, err := p.op.GetSelectionSet(sel, pt.Name)
		if err != nil {
			return nil, err
		}

		if abstract && !p.db.IsTypePartOfSource(s.source, pt.Name) {
			if p.isBranched(sel, pt.Name) || onlyTypename(child.Selections()) {
				continue
			}
			return nil, fmt.Errorf("%w: %s cannot resolve %s at %s", metadata.ErrInconsistentSchema, s.source, pt.Name, path)
		}

		childPath := path
		if abstract {
			childPath = path.AppendFragment(pt.Name)
		}

		set, err := p.buildScope(newScope(s, s.node, s.source, childPath, pt), child.Selections())
		if err != nil {
			return nil, err
		}

		if !abstract {
			f.SelectionSet = set
			continue
		}
		if !hasTypename(set) {
			set = append(ast.SelectionSet{typenameField()}, set...)
		}
		f.SelectionSet = append(f.SelectionSet, &ast.InlineFragment{
			TypeCondition:    pt.Name,
			SelectionSet:     set,
			ObjectDefinition: pt,
		})
	}

	return f, nil
}

// isBranched reports whether objects of typeName under the node field sel are
// fetched by a branch of their own.
func (p *planning) isBranched(sel *operation.Selection, typeName string) bool {
	n, ok := p.nodeFields[sel]
	return ok && n.Branches[typeName] != nil
}

func onlyTypename(selections []*operation.Selection) bool {
	return lo.EveryBy(selections, func(sel *operation.Selection) bool {
		return sel.IsTypename()
	})
}

// planEntityFetches refetches the objects of s from other sources until every
// remaining selection is planned.
func (p *planning) planEntityFetches(s *scope, remaining []*operation.Selection) error {
	for len(remaining) > 0 {
		refs := lo.Map(remaining, func(sel *operation.Selection, _ int) metadata.FieldRef {
			return metadata.FieldRef{TypeName: s.typ.Name, FieldName: sel.FieldName()}
		})

		source, fetcher, err := p.pickFetcher(s, refs)
		if err != nil {
			return err
		}

		handled, rest := lo.FilterReject(remaining, func(sel *operation.Selection, _ int) bool {
			return p.db.IsPartOfSource(source, sel)
		})

		n, es, err := p.newEntityNode(s, source, fetcher)
		if err != nil {
			return err
		}

		set, err := p.buildScope(es, handled)
		if err != nil {
			return err
		}
		n.Document = document(p.op, ast.Query, ast.SelectionSet{fetcherField(p.schema, fetcher, set)}, exportVariables(fetcher))
		n.Conditions = p.conditionsOf(handled)

		remaining = rest
	}
	return nil
}

// pickFetcher prefers the best scoring source and falls back to lower scores
// when that source cannot refetch the type at this path.
func (p *planning) pickFetcher(s *scope, refs []metadata.FieldRef) (string, *metadata.ObjectFetcher, error) {
	best, err := p.db.GetSourceForFields(refs)
	if err != nil {
		return "", nil, err
	}

	typesInPath := s.typesInPath()
	for _, source := range lo.Uniq(append([]string{best}, p.db.RankSources(refs)...)) {
		if source == s.source {
			continue
		}
		fetcher, err := p.db.GetObjectFetcher(source, s.typ.Name, typesInPath)
		if err == nil {
			return source, fetcher, nil
		}
	}
	return "", nil, fmt.Errorf("%w: %v at %s cannot be refetched", metadata.ErrNoFetcher, refs, s.path)
}

// newEntityNode creates a node refetching the objects of s and wires its
// requirements. The returned scope is the object scope inside the new node.
func (p *planning) newEntityNode(s *scope, source string, fetcher *metadata.ObjectFetcher) (*QueryNode, *scope, error) {
	n := p.newNode(OperationNode, source, s.path)
	n.TypeName = s.typ.Name
	n.Fetcher = fetcher
	n.addDependency(s.node.ID)
	s.node.Children = append(s.node.Children, n)

	for _, b := range fetcher.Arguments {
		target := s.find(b.TypeName)
		if target == nil {
			return nil, nil, fmt.Errorf("%w: %s is not on the path of %s", metadata.ErrNoFetcher, b.TypeName, s.path)
		}
		provider, err := p.requireExport(target, b.FieldName)
		if err != nil {
			return nil, nil, err
		}
		n.addDependency(provider.ID)
		n.addRequirement(Requirement{Variable: b.VariableName(), Path: target.path})
	}

	return n, newScope(s.parent, n, source, s.path, s.typ), nil
}

// requireExport makes target export fieldName and returns the node producing it.
func (p *planning) requireExport(target *scope, fieldName string) (*QueryNode, error) {
	if n, ok := target.providers[fieldName]; ok {
		return n, nil
	}

	ref := metadata.FieldRef{TypeName: target.typ.Name, FieldName: fieldName}
	if p.db.IsFieldPartOfSource(target.source, ref) {
		target.addExport(fieldName)
		return target.node, nil
	}

	if _, ok := target.resolving[fieldName]; ok {
		return nil, fmt.Errorf("%w: %s at %s", ErrExportCycle, ref, target.path)
	}
	target.resolving[fieldName] = struct{}{}

	source, fetcher, err := p.pickFetcher(target, []metadata.FieldRef{ref})
	if err != nil {
		return nil, err
	}
	n, es, err := p.newEntityNode(target, source, fetcher)
	if err != nil {
		return nil, err
	}
	es.addExport(fieldName)

	set, err := p.buildScope(es, nil)
	if err != nil {
		return nil, err
	}
	n.Document = document(p.op, ast.Query, ast.SelectionSet{fetcherField(p.schema, fetcher, set)}, exportVariables(fetcher))

	target.providers[fieldName] = n
	return n, nil
}

func (p *planning) isNodeField(sel *operation.Selection) bool {
	if p.op.Type() != ast.Query && p.op.Type() != "" {
		return false
	}
	if sel.FieldName() != common.NodeFieldName || sel.NamedType() != common.NodeInterfaceName {
		return false
	}
	return sel.Arguments().ForName(common.IDFieldName) != nil
}

// planNodeField plans one branch per concrete type that can be fetched by id
// and a fallback through a source resolving Query.node itself.
func (p *planning) planNodeField(sel *operation.Selection) (*QueryNode, error) {
	path := operation.Root.AppendField(sel.ResponseName())

	n := p.newNode(NodeFieldNode, common.InternalServiceName, path)
	n.ResponseName = sel.ResponseName()
	n.IDValue = sel.Arguments().ForName(common.IDFieldName).Value
	n.Conditions = p.conditionsOf([]*operation.Selection{sel})
	n.Branches = make(map[string]*QueryNode)
	p.nodeFields[sel] = n

	for _, pt := range p.op.PossibleTypes(sel) {
		child, err := p.op.GetSelectionSet(sel, pt.Name)
		if err != nil {
			return nil, err
		}
		branch, err := p.planNodeBranch(n, pt, child)
		if err != nil {
			return nil, err
		}
		if branch != nil {
			n.Branches[pt.Name] = branch
		}
	}

	source, err := p.db.GetSourceForFields([]metadata.FieldRef{{TypeName: common.QueryObjectName, FieldName: common.NodeFieldName}})
	if err == nil {
		fallback := p.newNode(OperationNode, source, operation.Root)
		s := newScope(nil, fallback, source, operation.Root, p.op.RootType())
		set, err := p.buildScope(s, []*operation.Selection{sel})
		if err != nil {
			return nil, err
		}
		fallback.Document = document(p.op, ast.Query, set, nil)
		n.Fallback = fallback
	}

	return n, nil
}

func (p *planning) planNodeBranch(n *QueryNode, typ *ast.Definition, child *operation.SelectionSet) (*QueryNode, error) {
	refs := lo.Map(child.Selections(), func(sel *operation.Selection, _ int) metadata.FieldRef {
		return metadata.FieldRef{TypeName: typ.Name, FieldName: sel.FieldName()}
	})

	candidates := p.db.RankSources(refs)
	if best, err := p.db.GetSourceForFields(refs); err == nil {
		candidates = lo.Uniq(append([]string{best}, candidates...))
	}

	for _, source := range candidates {
		fetcher, err := p.db.GetObjectFetcher(source, typ.Name, nil)
		if err != nil {
			continue
		}
		byID := lo.EveryBy(fetcher.Arguments, func(b metadata.ArgumentBinding) bool {
			return b.TypeName == typ.Name && b.FieldName == common.IDFieldName
		})
		if !byID {
			continue
		}

		branch := p.newNode(OperationNode, source, n.Path)
		branch.TypeName = typ.Name
		branch.Fetcher = fetcher
		branch.ResponseName = n.ResponseName
		for _, b := range fetcher.Arguments {
			branch.addRequirement(Requirement{Variable: b.VariableName(), Path: n.Path, FromNodeID: true})
		}

		s := newScope(nil, branch, source, n.Path, typ)
		set, err := p.buildScope(s, child.Selections())
		if err != nil {
			return nil, err
		}
		branch.Document = document(p.op, ast.Query, ast.SelectionSet{fetcherField(p.schema, fetcher, set)}, exportVariables(fetcher))
		return branch, nil
	}

	return nil, nil
}

// conditionsOf returns the conditions under which any of the selections is
// included. Only selections sharing one include mask produce conditions.
func (p *planning) conditionsOf(selections []*operation.Selection) []Condition {
	if len(selections) == 0 || len(selections[0].IncludeMasks()) != 1 {
		return nil
	}
	mask := selections[0].IncludeMasks()[0]
	for _, sel := range selections[1:] {
		if masks := sel.IncludeMasks(); len(masks) != 1 || masks[0] != mask {
			return nil
		}
	}

	var res []Condition
	conditions := p.op.IncludeConditions()
	for i := 0; i < conditions.Len(); i++ {
		if mask&(1<<uint(i)) == 0 {
			continue
		}
		c := conditions.At(i)
		if c.Skip != "" {
			res = append(res, Condition{Variable: c.Skip, PassingValue: false})
		}
		if c.Include != "" {
			res = append(res, Condition{Variable: c.Include, PassingValue: true})
		}
	}
	return lo.Uniq(res)
}

// nameDocuments names the documents in traversal order and prints them.
func (p *planning) nameDocuments(root *QueryNode) {
	prefix := p.op.Name()
	if prefix == "" {
		prefix = "Operation_" + hex.EncodeToString([]byte(p.op.ID()))
	}

	i := 0
	var visit func(n *QueryNode)
	visit = func(n *QueryNode) {
		if n == nil {
			return
		}
		if n.Document != nil {
			i++
			n.Document.Name = fmt.Sprintf("%s_%d", prefix, i)
			n.Query = format.CompactOperation(n.Document)
		}
		for _, c := range n.Children {
			visit(c)
		}
		for _, t := range n.BranchTypes() {
			visit(n.Branches[t])
		}
		visit(n.Fallback)
	}
	visit(root)
}
