package convert

import (
	"reflect"

	"github.com/zoobzio/shapepack/shape"
)

// customConverterFactory builds a Converter for a shape given the name
// recorded on its Attributes.CustomConverter (set either on the member's
// tag or at the type level via Provider.RegisterConverter). Registered
// through Cache.RegisterConverterFactory; the table is keyed by name
// rather than type, since one named converter may be reused across many
// member declarations.
type customConverterFactory func(s *shape.Shape) (Converter, error)

// Visitor builds one Converter for one Shape, recursing into child
// shapes through cache.GetOrBuild so cycles resolve through the shared
// delayedConverter instead of the builder recursing directly. A Visitor is scratch state for exactly one top-level
// build call; it holds no state of its own beyond the cache/policy it
// was handed.
//
// Mirrors a one-handler-per-kind dispatch style, generalized from
// "apply a transform per tagged field" to "resolve a converter per
// shape kind".
type Visitor struct {
	cache  *Cache
	policy *Policy
}

// build implements the resolution order: custom converter, then
// primitive table, then surrogate routing, then shape-kind dispatch,
// then union/reference-preservation wrapping.
func (v *Visitor) build(s *shape.Shape) (Converter, error) {
	if s.Attributes.CustomConverter != "" {
		if factory, ok := v.cache.converterFactories[s.Attributes.CustomConverter]; ok {
			conv, err := factory(s)
			if err != nil {
				return nil, err
			}
			return v.wrapReferences(s, conv), nil
		}
		return nil, newBuildError(s.Type.String(), "custom converter \""+s.Attributes.CustomConverter+"\" is not registered")
	}

	if conv, ok := v.cache.primitives[s.Type]; ok {
		return conv, nil
	}

	switch s.Kind {
	case shape.KindPrimitive:
		return nil, newBuildError(s.Type.String(), "primitive shape has no entry in the converter table")

	case shape.KindSurrogate:
		return v.buildSurrogate(s)

	case shape.KindObject:
		conv, err := v.buildObject(s)
		if err != nil {
			return nil, err
		}
		return v.wrapReferences(s, conv), nil

	case shape.KindUnion:
		conv, err := v.buildUnion(s)
		if err != nil {
			return nil, err
		}
		return v.wrapReferences(s, conv), nil

	case shape.KindEnum:
		return v.buildEnum(s)

	case shape.KindOptional:
		return v.buildOptional(s)

	case shape.KindDictionary:
		conv, err := v.buildDictionary(s)
		if err != nil {
			return nil, err
		}
		return v.wrapReferences(s, conv), nil

	case shape.KindEnumerable:
		conv, err := v.buildEnumerable(s)
		if err != nil {
			return nil, err
		}
		return v.wrapReferences(s, conv), nil

	case shape.KindFunction:
		return nil, newBuildError(s.Type.String(), "function-shaped types cannot be serialized")

	default:
		return nil, newBuildError(s.Type.String(), "unrecognized shape kind")
	}
}

// resolveProperty resolves one object member's Converter, honoring a
// converter:name tag on the member itself ahead of the member's own type
// shape. A member-level custom converter is looked up by name only: it
// overrides whatever the field's type would otherwise resolve to, so two
// fields of the same type can still wire through different converters.
func (v *Visitor) resolveProperty(s *shape.Shape, p shape.Property) (Converter, error) {
	if p.Attributes.CustomConverter != "" {
		factory, ok := v.cache.converterFactories[p.Attributes.CustomConverter]
		if !ok {
			return nil, newBuildError(s.Type.String(), "custom converter \""+p.Attributes.CustomConverter+"\" is not registered")
		}
		childShape, err := s.Provider.For(p.Type)
		if err != nil {
			return nil, err
		}
		return factory(childShape)
	}
	return v.resolveChild(s, p.Type)
}

// resolveChild resolves t's Shape through s's Provider and builds (or
// fetches) its Converter through the shared Cache, the one path every
// composite converter uses to reach a child type so recursive/cyclic
// graphs stay cycle-safe.
func (v *Visitor) resolveChild(s *shape.Shape, t reflect.Type) (Converter, error) {
	childShape, err := s.Provider.For(t)
	if err != nil {
		return nil, err
	}
	return v.cache.GetOrBuild(childShape)
}

// wrapReferences installs the reference-preservation wrapper around a
// composite converter when the policy calls for it. Primitives,
// enums, and optionals are never wrapped: only heap-identified composite
// values (objects, unions, collections) participate in the reference
// graph.
func (v *Visitor) wrapReferences(s *shape.Shape, inner Converter) Converter {
	if v.policy.PreserveReferences == ReferenceOff {
		return inner
	}
	return &referenceConverter{inner: inner, kind: s.Type.Kind()}
}
