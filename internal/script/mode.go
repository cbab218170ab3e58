package script

import "fmt"

// Mode is the kind of value a script binds.
type Mode int

const (
	// ModeShape binds a single shape to __shape__.
	ModeShape Mode = iota
	// ModeShapes binds a list of shapes to __shapes__.
	ModeShapes
	// ModeAssembly binds a single assembly to __assembly__.
	ModeAssembly
	// ModeAssemblies binds a list of assemblies to __assemblies__.
	ModeAssemblies
)

// Modes lists the modes from the lowest to the highest precedence.
var Modes = []Mode{ModeShape, ModeShapes, ModeAssembly, ModeAssemblies}

// String implements fmt.Stringer. It is the kind reported by the plugin runner.
func (m Mode) String() string {
	switch m {
	case ModeShape:
		return "shape"
	case ModeShapes:
		return "shapes"
	case ModeAssembly:
		return "assembly"
	case ModeAssemblies:
		return "assemblies"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Binding returns the name of the script global holding the value.
func (m Mode) Binding() string {
	return "__" + m.String() + "__"
}

// Remote reports whether the script must be loaded from a fetched project.
func (m Mode) Remote() bool {
	return m == ModeAssembly || m == ModeAssemblies
}
