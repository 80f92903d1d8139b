package env

import (
	"os"
	"strings"
)

type Var map[string]string

// Env assembles the environment handed to managed services.
// Layers, later wins: optional OS base, then global variables, then the
// per-service pairs given to Merge.
type Env struct {
	Var  Var // global variables (K->V)
	base Var // OS environment, captured only when UseOS was called
}

func New() *Env {
	return &Env{
		Var: make(Var),
	}
}

// UseOS captures the current process environment as the base layer.
func (e *Env) UseOS() {
	base := make(Var)
	for _, kv := range os.Environ() {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			k := kv[:i]
			v := kv[i+1:]
			if k == "" {
				continue
			}
			base[k] = v
		}
	}
	e.base = base
}

// Set sets a global variable K=V.
func (e *Env) Set(k, v string) {
	if e.Var == nil {
		e.Var = make(Var)
	}
	e.Var[k] = v
}

// Unset removes a global variable.
func (e *Env) Unset(k string) {
	if e.Var != nil {
		delete(e.Var, k)
	}
}

// SetPairs applies "K=V" entries to the global layer in order.
// Malformed entries without '=' or with an empty key are skipped.
func (e *Env) SetPairs(pairs []string) {
	for _, kv := range pairs {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			k := kv[:i]
			if k == "" {
				continue
			}
			e.Set(k, kv[i+1:])
		}
	}
}

// Merge composes the final environment list:
// base = OS env when UseOS was called, empty otherwise
// then global e.Var overrides
// then perService ("K=V") overrides
// Returns the list in "K=V" form with ${VAR} expansion performed against
// the composed map (simple expansion, no recursion).
func (e *Env) Merge(perService []string) []string {
	m := make(Var)
	for k, v := range e.base {
		m[k] = v
	}
	for k, v := range e.Var {
		if k == "" {
			continue
		}
		m[k] = v
	}
	for _, kv := range perService {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			k := kv[:i]
			if k == "" {
				continue
			}
			m[k] = kv[i+1:]
		}
	}
	expanded := make(Var, len(m))
	for k, v := range m {
		expanded[k] = expand(v, m)
	}
	out := make([]string, 0, len(expanded))
	for k, v := range expanded {
		if k == "" {
			continue
		}
		out = append(out, k+"="+v)
	}
	return out
}

func expand(s string, m Var) string {
	res := s
	for k, v := range m {
		res = strings.ReplaceAll(res, "${"+k+"}", v)
	}
	return res
}
