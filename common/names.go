package common

import "strings"

const (
	TypenameFieldName  = "__typename"
	IDFieldName        = "id"
	NodeFieldName      = "node"
	NodeInterfaceName  = "Node"
	SchemaFieldName    = "__schema"
	TypeFieldName      = "__type"
	QueryObjectName    = "Query"
	MutationObjectName = "Mutation"
	// InternalServiceName marks work answered by the gateway itself.
	InternalServiceName = "__fusion"
	// RequirementDirectiveName marks selections injected for planning only.
	RequirementDirectiveName = "fusion__requirement"
	ExportPrefix             = "_export_"
)

// IsBuiltinName reports whether the name is reserved for introspection.
func IsBuiltinName(name string) bool {
	return strings.HasPrefix(name, "__")
}

// IsIntrospectionFieldName reports whether the root field is answered from the local schema.
func IsIntrospectionFieldName(name string) bool {
	return name == SchemaFieldName || name == TypeFieldName
}

// ExportName returns the alias and variable name used to pass typeName.fieldName between sources.
func ExportName(typeName, fieldName string) string {
	return ExportPrefix + typeName + "_" + fieldName
}

// IsExportName reports whether the response key was minted by the planner.
func IsExportName(name string) bool {
	return strings.HasPrefix(name, ExportPrefix)
}
