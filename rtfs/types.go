package rtfs

import "strings"

// TypeKind enumerates the plan language's type system, the target of the
// JSON-Schema conversion API introspection performs.
type TypeKind string

const (
	TypeString TypeKind = "String"
	TypeInt    TypeKind = "Int"
	TypeFloat  TypeKind = "Float"
	TypeBool   TypeKind = "Bool"
	TypeVector TypeKind = "Vector"
	TypeMap    TypeKind = "Map"
	TypeAny    TypeKind = "Any"
)

// Field is one named, possibly-optional entry of a Map type.
type Field struct {
	Name     string
	Type     TypeExpr
	Optional bool
}

// TypeExpr is a node in the plan language's type expression tree.
type TypeExpr struct {
	Kind   TypeKind
	Elem   *TypeExpr // populated iff Kind == TypeVector
	Fields []Field   // populated iff Kind == TypeMap
}

// FromJSONSchemaType maps a bare JSON-Schema "type" keyword to a plan TypeExpr
// leaf, per §4.6's conversion table. Compound object/array schemas are built
// up by the caller (introspect) using Fields/Elem; this only covers scalars
// and the Any fallback.
func FromJSONSchemaType(jsonType string) TypeExpr {
	switch jsonType {
	case "string":
		return TypeExpr{Kind: TypeString}
	case "integer":
		return TypeExpr{Kind: TypeInt}
	case "number":
		return TypeExpr{Kind: TypeFloat}
	case "boolean":
		return TypeExpr{Kind: TypeBool}
	default:
		return TypeExpr{Kind: TypeAny}
	}
}

// RenderType renders t as an Rtfs20 type expression, e.g.
// "{:id String :tags (Vector String) :meta {:name String}}".
func RenderType(t TypeExpr) string {
	switch t.Kind {
	case TypeVector:
		elem := TypeExpr{Kind: TypeAny}
		if t.Elem != nil {
			elem = *t.Elem
		}
		return "(Vector " + RenderType(elem) + ")"
	case TypeMap:
		var b strings.Builder
		b.WriteString("{")
		for i, f := range t.Fields {
			if i > 0 {
				b.WriteString(" ")
			}
			b.WriteString(Keyword(f.Name))
			if f.Optional {
				b.WriteString("?")
			}
			b.WriteString(" ")
			b.WriteString(RenderType(f.Type))
		}
		b.WriteString("}")
		return b.String()
	default:
		return string(t.Kind)
	}
}
