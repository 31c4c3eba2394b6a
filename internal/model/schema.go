package model

// SchemaState is the approval axis of the schema lifecycle.
// Transitions: Available -> Approved -> Blocked. Loading is a separate axis:
// a schema may be unloaded (absent from the in-memory active set) without
// losing its on-disk definition or approval state.
type SchemaState string

const (
	SchemaStateAvailable SchemaState = "available"
	SchemaStateApproved  SchemaState = "approved"
	SchemaStateBlocked   SchemaState = "blocked"
)

// PermissionPolicy is the opaque policy document handed to the external
// permission evaluator. Only its call contract is used here.
type PermissionPolicy struct {
	ReadPolicy  string `json:"read_policy,omitempty"  yaml:"read_policy,omitempty"`
	WritePolicy string `json:"write_policy,omitempty" yaml:"write_policy,omitempty"`

	// ExplicitTrustDistance caps how remote a caller may be; zero means
	// the policy side decides.
	ExplicitTrustDistance int `json:"explicit_trust_distance,omitempty" yaml:"explicit_trust_distance,omitempty"`
}

// PaymentConfig is carried opaquely; fee calculation is external.
type PaymentConfig struct {
	BaseMultiplier float64 `json:"base_multiplier,omitempty" yaml:"base_multiplier,omitempty"`
	MinPayment     int64   `json:"min_payment,omitempty"     yaml:"min_payment,omitempty"`
}

// FieldMapper aliases a field to another schema's field of the same shape,
// letting the target field share the source field's ref.
type FieldMapper struct {
	SourceSchema string `json:"source_schema" yaml:"source_schema"`
	SourceField  string `json:"source_field"  yaml:"source_field"`
}

// TransformSpec is a transform embedded in a field definition. The full
// Transform (with parsed AST) is built at registration time.
type TransformSpec struct {
	Logic  string   `json:"logic"            yaml:"logic"`
	Inputs []string `json:"inputs,omitempty" yaml:"inputs,omitempty"`
}

// Field describes one schema field.
type Field struct {
	PermissionPolicy PermissionPolicy `json:"permission_policy" yaml:"permission_policy"`
	PaymentConfig    PaymentConfig    `json:"payment_config"    yaml:"payment_config"`
	FieldType        RefKind          `json:"field_type"        yaml:"field_type"`

	// RefAtomUUID binds the field to its AtomRef. Assigned automatically
	// at schema-store time for Single and Range fields that lack one.
	RefAtomUUID string `json:"ref_atom_uuid,omitempty" yaml:"ref_atom_uuid,omitempty"`

	// RangeKey names the content attribute whose VALUE partitions a Range
	// field. Required for Range fields.
	RangeKey string `json:"range_key,omitempty" yaml:"range_key,omitempty"`

	FieldMappers []FieldMapper  `json:"field_mappers,omitempty" yaml:"field_mappers,omitempty"`
	Transform    *TransformSpec `json:"transform,omitempty"     yaml:"transform,omitempty"`
}

// Schema is immutable once stored: re-storing an existing name fails.
type Schema struct {
	Name          string           `json:"name"           yaml:"name"`
	Fields        map[string]Field `json:"fields"         yaml:"fields"`
	PaymentConfig PaymentConfig    `json:"payment_config" yaml:"payment_config"`
}

// FieldKey is the canonical "schema.field" key used by the transform
// registry and the dependency maps.
func FieldKey(schemaName, fieldName string) string {
	return schemaName + "." + fieldName
}
