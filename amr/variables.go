package amr

import (
	"fmt"
	"sync"
)

type Variable struct {
	ID        int
	Name      string
	Centering Centering
	Depth     int
	Ghost     int
	IsInt     bool
}

func (v *Variable) GhostVector(dim int) IntVector { return Uniform(dim, v.Ghost) }

// VariableDatabase hands out variable ids. Registration is idempotent by
// name, so every rank may register the same variables and get the same ids.
type VariableDatabase struct {
	mu     sync.Mutex
	vars   []*Variable
	byName map[string]*Variable
}

func NewVariableDatabase() *VariableDatabase {
	return &VariableDatabase{byName: make(map[string]*Variable)}
}

func (vdb *VariableDatabase) Register(name string, centering Centering, depth, ghost int, isInt bool) *Variable {
	vdb.mu.Lock()
	defer vdb.mu.Unlock()
	if v, ok := vdb.byName[name]; ok {
		if v.Centering != centering || v.Depth != depth || v.Ghost != ghost || v.IsInt != isInt {
			panic(fmt.Sprintf("variable %q re-registered with different attributes", name))
		}
		return v
	}
	v := &Variable{
		ID:        len(vdb.vars),
		Name:      name,
		Centering: centering,
		Depth:     depth,
		Ghost:     ghost,
		IsInt:     isInt,
	}
	vdb.vars = append(vdb.vars, v)
	vdb.byName[name] = v
	return v
}

func (vdb *VariableDatabase) Get(id int) *Variable {
	vdb.mu.Lock()
	defer vdb.mu.Unlock()
	if id < 0 || id >= len(vdb.vars) {
		panic(fmt.Sprintf("unknown variable id %d", id))
	}
	return vdb.vars[id]
}

func (vdb *VariableDatabase) Lookup(name string) (v *Variable, ok bool) {
	vdb.mu.Lock()
	defer vdb.mu.Unlock()
	v, ok = vdb.byName[name]
	return
}
