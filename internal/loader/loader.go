// Package loader defines the contract for bringing a task's initial
// image into memory. ELF parsing and the embedded-application blob format
// are out of scope; this package only models the handoff: given an image
// identifier, produce an entry point and initial stack contents.
package loader

import "fmt"

// Image is the minimal description of a loaded task image the scheduler
// needs to construct an initial TaskContext: an entry point and the
// initial size of its user stack region.
type Image struct {
	Name       string
	EntryPoint uint64
	StackTop   uint64
}

// Loader resolves a named application image into an Image. Real
// implementations would parse ELF or an embedded blob table; this
// package only implements the contract.
type Loader interface {
	Load(name string) (Image, error)
}

// StaticLoader resolves images from an in-memory table, standing in for
// the embedded-application-blob mechanism the spec keeps out of scope.
type StaticLoader struct {
	images map[string]Image
}

// NewStaticLoader builds a loader over a fixed table of images.
func NewStaticLoader(images map[string]Image) *StaticLoader {
	return &StaticLoader{images: images}
}

func (l *StaticLoader) Load(name string) (Image, error) {
	img, ok := l.images[name]
	if !ok {
		return Image{}, fmt.Errorf("loader: unknown image %q", name)
	}
	return img, nil
}
