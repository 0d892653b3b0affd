// Package directives produces the compiler directive set used to build the
// native extension. The set is a fixed policy, not a configuration surface.
package directives

import (
	"slices"
	"strconv"
	"strings"
)

// Directive names. The set always contains exactly these four keys.
const (
	KeyBinding                = "binding"
	KeyLanguageLevel          = "language_level"
	KeyLegacyImplicitNoexcept = "legacy_implicit_noexcept"
	KeyWarningErrors          = "warning_errors"
)

var keys = []string{KeyBinding, KeyLanguageLevel, KeyLegacyImplicitNoexcept, KeyWarningErrors}

// Keys returns the directive names in rendering order.
func Keys() []string { return slices.Clone(keys) }

// EnvVar carries the rendered set into the binary build step.
const EnvVar = "EXTPIPE_COMPILER_DIRECTIVES"

// Set is an immutable compiler directive set.
type Set struct {
	binding                bool
	languageLevel          int
	legacyImplicitNoexcept bool
}

// Default returns the directive policy for the extension build.
//
// binding and language_level=2 are source-compatibility requirements of the
// compiled module. legacy_implicit_noexcept keeps the pre-3.0 exception
// signature convention. warning_errors is always false: warnings must never
// fail the build, in CI or elsewhere.
func Default() Set {
	return Set{
		binding:                true,
		languageLevel:          2,
		legacyImplicitNoexcept: true,
	}
}

// Binding reports the binding directive.
func (s Set) Binding() bool { return s.binding }

// LanguageLevel reports the language_level directive.
func (s Set) LanguageLevel() int { return s.languageLevel }

// LegacyImplicitNoexcept reports the legacy_implicit_noexcept directive.
func (s Set) LegacyImplicitNoexcept() bool { return s.legacyImplicitNoexcept }

// WarningErrors is always false.
func (s Set) WarningErrors() bool { return false }

// Map returns a fresh map of the four directives, values rendered the way
// the compiler expects them.
func (s Set) Map() map[string]string {
	return map[string]string{
		KeyBinding:                pyBool(s.binding),
		KeyLanguageLevel:          strconv.Itoa(s.languageLevel),
		KeyLegacyImplicitNoexcept: pyBool(s.legacyImplicitNoexcept),
		KeyWarningErrors:          pyBool(s.WarningErrors()),
	}
}

// String renders the set as comma-separated key=value pairs in Keys order,
// the form the {directives} command placeholder expands to,
// e.g. "binding=True,language_level=2,legacy_implicit_noexcept=True,warning_errors=False".
func (s Set) String() string {
	m := s.Map()
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+m[k])
	}
	return strings.Join(parts, ",")
}

// Env returns the environment entry that passes the set to the build.
func (s Set) Env() string {
	return EnvVar + "=" + s.String()
}

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
