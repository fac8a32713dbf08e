package bootstrap

import (
	"fmt"
	"strings"
)

// ResolveDependencies orders initializers so that every initializer runs
// after its dependencies. Independent initializers keep their registration
// order. Duplicate names, unknown dependencies and cycles are errors.
func ResolveDependencies(initializers []Initializer) ([]Initializer, error) {
	if len(initializers) == 0 {
		return nil, nil
	}

	byName := make(map[string]Initializer, len(initializers))
	for _, init := range initializers {
		if _, exists := byName[init.Name()]; exists {
			return nil, fmt.Errorf("duplicate initializer name: %s", init.Name())
		}
		byName[init.Name()] = init
	}
	for _, init := range initializers {
		for _, dep := range init.Dependencies() {
			if _, exists := byName[dep]; !exists {
				return nil, fmt.Errorf("initializer %q depends on %q which is not registered", init.Name(), dep)
			}
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(initializers))
	ordered := make([]Initializer, 0, len(initializers))
	var stack []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("circular dependency detected: %s", cyclePath(stack, name))
		}
		state[name] = visiting
		stack = append(stack, name)
		for _, dep := range byName[name].Dependencies() {
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = done
		ordered = append(ordered, byName[name])
		return nil
	}

	for _, init := range initializers {
		if err := visit(init.Name()); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}

// cyclePath renders the part of stack that closes the cycle at name.
func cyclePath(stack []string, name string) string {
	for i, n := range stack {
		if n == name {
			return strings.Join(append(append([]string{}, stack[i:]...), name), " -> ")
		}
	}
	return name
}
