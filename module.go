package etch

import (
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Resolver resolves `import module` and `import ffi lib { ... }`
// declarations, loading and merging exported items and FFI symbol tables
// before the analyzer runs over a module's body.
type Resolver struct {
	baseDir string
	log     logrus.FieldLogger
	loaded  map[string]*Module
	loading map[string]bool
}

func NewResolver(baseDir string, log logrus.FieldLogger) *Resolver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Resolver{baseDir: baseDir, log: log, loaded: map[string]*Module{}, loading: map[string]bool{}}
}

// ResolveFile parses a module and recursively resolves its module imports,
// detecting circular imports.
func (r *Resolver) ResolveFile(path string) (*Module, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, newCompileError(ErrModuleNotFound, Position{File: path}, "cannot read module: %s", err)
	}
	return r.resolveSource(path, src)
}

func (r *Resolver) resolveSource(path string, src []byte) (*Module, error) {
	if m, ok := r.loaded[path]; ok {
		return m, nil
	}
	if r.loading[path] {
		return nil, newCompileError(ErrCircularImport, Position{File: path}, "circular import detected at %s", path)
	}
	r.loading[path] = true
	defer delete(r.loading, path)

	mod, err := ParseModule(path, src)
	if err != nil {
		return nil, err
	}
	r.log.WithField("file", path).Debug("parsed module")

	for _, d := range mod.Decls {
		imp, ok := d.(*ImportDecl)
		if !ok || imp.Kind != ImportModule {
			continue
		}
		depPath := filepath.Join(filepath.Dir(path), imp.Path+".etch")
		dep, err := r.ResolveFile(depPath)
		if err != nil {
			return nil, err
		}
		mod.Decls = mergeExported(mod.Decls, dep.Decls)
	}

	r.loaded[path] = mod
	return mod, nil
}

// mergeExported appends the exported top-level declarations of a dependency
// module into the importer's declaration list.
func mergeExported(into []Decl, from []Decl) []Decl {
	for _, d := range from {
		switch n := d.(type) {
		case *FnDecl:
			if n.Exported {
				into = append(into, n)
			}
		case *GlobalVarDecl:
			if n.Exported {
				into = append(into, n)
			}
		case *TypeDecl:
			if n.Exported {
				into = append(into, n)
			}
		}
	}
	return into
}

// ResolveFFI loads the dynamic libraries named by `import ffi` declarations
// and binds each declared function's symbol, both through the FFIBridge
// (ffi.go performs the actual dlopen/dlsym).
func (r *Resolver) ResolveFFI(mod *Module, bridge *FFIBridge) error {
	for _, d := range mod.Decls {
		imp, ok := d.(*ImportDecl)
		if !ok || imp.Kind != ImportFFI {
			continue
		}
		if err := bridge.LoadLibrary(imp.Path); err != nil {
			return newCompileError(ErrModuleNotFound, imp.Span().Start, "%s", err)
		}
		for _, fn := range imp.FFIFns {
			if err := bridge.BindSymbol(imp.Path, fn); err != nil {
				return newCompileError(ErrMissingFFISymbol, imp.Span().Start, "%s", err)
			}
		}
	}
	return nil
}
