package eval

import (
	"strings"

	"github.com/fhirpath-engine/fhirpath/pkg/fhirpath/meta"
	"github.com/fhirpath-engine/fhirpath/pkg/fhirpath/types"
)

// Navigator resolves member-access steps (Patient.name, obj.value, ...)
// against wrapped collections, propagating path/type metadata and handling
// FHIR's value[x] polymorphic pattern. Ported from the teacher's
// navigateMember/resolvePolymorphicField, extended to also stamp the
// resolved FHIR type onto each child via the (optional) model.Provider when
// one is configured on the Context.
type Navigator struct {
	ctx *Context
}

// NewNavigator builds a Navigator bound to ctx.
func NewNavigator(ctx *Context) *Navigator {
	return &Navigator{ctx: ctx}
}

// NavigateIdentifier resolves a bare ast.Identifier step. Per §4.5, an
// identifier starting with an uppercase letter is a resource-type filter
// rather than a property name; a lowercase one navigates as an ordinary
// property (see Navigate).
func (n *Navigator) NavigateIdentifier(input meta.Collection, name string) (meta.Collection, error) {
	if name != "" && isUpperASCII(name[0]) {
		return n.filterResourceType(input, name)
	}
	return n.Navigate(input, name)
}

func isUpperASCII(b byte) bool {
	return b >= 'A' && b <= 'Z'
}

// filterResourceType implements the resource-type-filter half of §4.5: it
// keeps items whose resource type equals name. A name the model provider
// doesn't recognize is UnknownResourceType; a singleton start context whose
// actual type differs from name is ResourceTypeMismatch (a mixed multi-item
// collection is simply filtered, since that is the ordinary
// Bundle.entry.resource-style usage). With no model provider configured,
// filtering is still applied but UnknownResourceType can never be raised,
// since there is nothing to check the name against.
func (n *Navigator) filterResourceType(input meta.Collection, name string) (meta.Collection, error) {
	if n.ctx != nil && n.ctx.ModelProvider() != nil && !n.ctx.ModelProvider().ResourceTypeExists(name) {
		return nil, UnknownResourceTypeError(name)
	}

	var result meta.Collection
	mismatchType := ""
	for _, item := range input {
		actual := item.Metadata.FHIRType
		if actual == "" {
			if obj, ok := item.Value.(*types.ObjectValue); ok {
				actual = obj.Type()
			}
		}
		if IsSubtypeOf(actual, name) {
			result = append(result, item)
			continue
		}
		mismatchType = actual
	}

	if len(result) == 0 && len(input) == 1 && mismatchType != "" {
		return nil, ResourceTypeMismatchError(name, mismatchType)
	}
	if result == nil {
		return meta.Collection{}, nil
	}
	return result, nil
}

// Navigate resolves name against every item in input, producing a new
// wrapped collection with derived path/type metadata. Follows §4.3's
// resolver split: a property the model provider can neither find data for
// nor declare on the nominal type is InvalidPropertyAccess; declared but
// absent in the instance is silently empty. With no model provider
// configured there is nothing to distinguish the two, so navigation stays
// permissive (matching the engine's behavior without a provider wired in).
func (n *Navigator) Navigate(input meta.Collection, name string) (meta.Collection, error) {
	var result meta.Collection

	for _, item := range input {
		obj, ok := item.Value.(*types.ObjectValue)
		if !ok {
			if err := n.checkDeclaredOnPrimitive(item, name); err != nil {
				return nil, err
			}
			continue
		}

		if IsSubtypeOf(obj.Type(), name) {
			result = append(result, meta.Wrapped{Value: obj, Metadata: item.Metadata})
			continue
		}

		if children := obj.GetCollection(name); len(children) > 0 {
			result = append(result, n.wrapChildren(item, name, children)...)
			continue
		}

		if poly := n.resolvePolymorphicField(item, name); len(poly) > 0 {
			result = append(result, poly...)
			continue
		}

		if err := n.checkDeclaredOnObject(item, name); err != nil {
			return nil, err
		}
	}

	if result == nil {
		return meta.Collection{}, nil
	}
	return result, nil
}

// checkDeclaredOnPrimitive implements §4.6's primitive-navigation rule: a
// property declared by the model on the primitive's nominal type is
// non-navigable-but-valid (empty); one the model doesn't know is
// InvalidPropertyAccess. With no model provider, a primitive simply has no
// further properties and navigation stays silent.
func (n *Navigator) checkDeclaredOnPrimitive(item meta.Wrapped, name string) error {
	if n.ctx == nil || n.ctx.ModelProvider() == nil {
		return nil
	}
	typeName := item.Metadata.FHIRType
	if typeName == "" {
		typeName = item.Value.Type()
	}
	if _, declared := n.ctx.ModelProvider().ResolvePropertyType(typeName, name); !declared {
		return InvalidPropertyAccessError(typeName, name)
	}
	return nil
}

// checkDeclaredOnObject implements §4.3's resolver split for a property that
// produced no data on an object instance: declared-but-missing (one of
// resolve_property_type/navigate_typed_path succeeds) is empty; undeclared
// (both fail) is InvalidPropertyAccess.
func (n *Navigator) checkDeclaredOnObject(item meta.Wrapped, name string) error {
	if n.ctx == nil || n.ctx.ModelProvider() == nil {
		return nil
	}
	provider := n.ctx.ModelProvider()
	typeName := item.Metadata.FHIRType
	if typeName == "" {
		if obj, ok := item.Value.(*types.ObjectValue); ok {
			typeName = obj.Type()
		}
	}
	_, resolvedOK := provider.ResolvePropertyType(typeName, name)
	_, navigatedOK := provider.NavigateTypedPath(typeName, name)
	if !resolvedOK && !navigatedOK {
		return InvalidPropertyAccessError(typeName, name)
	}
	return nil
}

func (n *Navigator) wrapChildren(parent meta.Wrapped, property string, children types.Collection) meta.Collection {
	childType := ""
	if n.ctx != nil && n.ctx.ModelProvider() != nil {
		if et, ok := n.ctx.ModelProvider().NavigateTypedPath(parent.Metadata.FHIRType, property); ok {
			childType = et.Name
		}
	}
	base := parent.Metadata.Child(property, childType)
	return meta.Wrap(children, base)
}

// polymorphicTypeSuffixes enumerates the FHIR type suffixes used to resolve
// "value[x]"-style elements (e.g. "value" -> "valueQuantity").
var polymorphicTypeSuffixes = []string{
	"Boolean", "Integer", "Integer64", "Decimal", "String", "Code", "Id", "Uri", "Url", "Canonical",
	"Base64Binary", "Instant", "Date", "DateTime", "Time", "Oid", "Uuid", "Markdown", "PositiveInt", "UnsignedInt",
	"Quantity", "CodeableConcept", "Coding", "Range", "Period", "Ratio", "RatioRange",
	"Identifier", "Reference", "Attachment", "HumanName", "Address", "ContactPoint",
	"Timing", "Signature", "Annotation", "SampledData", "Age", "Distance", "Duration",
	"Count", "Money", "MoneyQuantity", "SimpleQuantity",
	"Meta", "Dosage", "ContactDetail", "Contributor", "DataRequirement", "Expression",
	"ParameterDefinition", "RelatedArtifact", "TriggerDefinition", "UsageContext",
}

func (n *Navigator) resolvePolymorphicField(parent meta.Wrapped, name string) meta.Collection {
	obj, ok := parent.Value.(*types.ObjectValue)
	if !ok {
		return nil
	}
	for _, suffix := range polymorphicTypeSuffixes {
		fieldName := name + suffix
		if children := obj.GetCollection(fieldName); len(children) > 0 {
			base := parent.Metadata.Child(fieldName, suffix)
			return meta.Wrap(children, base)
		}
	}
	return nil
}

// nonDomainResources lists resources that inherit directly from Resource
// rather than from DomainResource.
var nonDomainResources = map[string]bool{
	"Bundle":     true,
	"Binary":     true,
	"Parameters": true,
}

// IsDomainResource reports whether resourceType inherits from DomainResource.
func IsDomainResource(resourceType string) bool {
	return !nonDomainResources[resourceType]
}

// IsSubtypeOf reports whether actualType is actualType==baseType or a known
// FHIR subtype of it (Resource/DomainResource base-type matching).
func IsSubtypeOf(actualType, baseType string) bool {
	if actualType == baseType || strings.EqualFold(actualType, baseType) {
		return true
	}
	if strings.EqualFold(baseType, "Resource") {
		return isPossibleResourceType(actualType)
	}
	if strings.EqualFold(baseType, "DomainResource") {
		return isPossibleResourceType(actualType) && IsDomainResource(actualType)
	}
	return false
}

func isPossibleResourceType(typeName string) bool {
	if typeName == "" {
		return false
	}
	primitiveTypes := map[string]bool{
		"Boolean": true, "String": true, "Integer": true, "Decimal": true,
		"Date": true, "DateTime": true, "Time": true, "Quantity": true,
		"Object": true,
	}
	if primitiveTypes[typeName] {
		return false
	}
	return typeName[0] >= 'A' && typeName[0] <= 'Z'
}

// fhirToFHIRPath maps lowercase FHIR primitive type names onto their
// FHIRPath System type.
var fhirToFHIRPath = map[string]string{
	"boolean": "Boolean", "string": "String", "integer": "Integer", "decimal": "Decimal",
	"date": "Date", "datetime": "DateTime", "time": "Time", "instant": "DateTime",
	"uri": "String", "url": "String", "canonical": "String", "base64binary": "String",
	"code": "String", "id": "String", "markdown": "String", "oid": "String", "uuid": "String",
	"positiveint": "Integer", "unsignedint": "Integer", "integer64": "Integer",
	"quantity": "Quantity", "simplequantity": "Quantity", "age": "Quantity", "count": "Quantity",
	"distance": "Quantity", "duration": "Quantity", "money": "Quantity",
}

// TypeMatches reports whether actualType satisfies a requested typeName,
// handling case-insensitivity, FHIR base-type inheritance, primitive-type
// aliasing, and the System./FHIR. namespace prefixes.
func TypeMatches(actualType, typeName string) bool {
	if actualType == typeName {
		return true
	}
	actualLower := strings.ToLower(actualType)
	typeNameLower := strings.ToLower(typeName)
	if actualLower == typeNameLower {
		return true
	}
	if IsSubtypeOf(actualType, typeName) {
		return true
	}
	if fhirPathType, ok := fhirToFHIRPath[typeNameLower]; ok && actualType == fhirPathType {
		return true
	}
	if fhirPathType, ok := fhirToFHIRPath[actualLower]; ok && strings.EqualFold(fhirPathType, typeName) {
		return true
	}
	if strings.HasPrefix(typeNameLower, "system.") {
		if strings.EqualFold(actualType, typeName[len("System."):]) {
			return true
		}
	}
	if strings.HasPrefix(typeNameLower, "fhir.") {
		if strings.EqualFold(actualType, typeName[len("FHIR."):]) {
			return true
		}
	}
	return false
}
