//go:build !(darwin && arm64)

package engine

// Open reports that no hardware virtualization engine is available here.
// The rest of the package compiles everywhere so the layers above can be
// tested against in-process fakes on any platform.
func Open() (Engine, error) {
	return nil, ErrUnsupported
}
