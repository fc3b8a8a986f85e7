package access

import (
	"context"
	"errors"
	"fmt"
)

// Relation is a named check definition with static dependencies. Depends
// lists the relations that must pass before this one; Requirements produces
// the alternative requirement sets evaluated under ListCheck's OR-of-ANDs
// semantics for the given caller.
type Relation interface {
	Name() string
	Depends() []Relation
	Requirements(ctx context.Context, userID string) ([][]Requirement, error)
}

// CheckRelation evaluates a registered relation for userID: dependencies
// first, pre-order, then the relation itself. A dependency deny propagates
// with the dependency's own reason so the caller sees exactly which
// prerequisite failed.
func (e *Engine) CheckRelation(ctx context.Context, userID string, scopes []string, name string) error {
	rel, ok := e.relations[name]
	if !ok {
		return fmt.Errorf("relation %q: %w", name, ErrNotFound)
	}
	return e.checkRelation(ctx, userID, scopes, rel, 0)
}

func (e *Engine) checkRelation(ctx context.Context, userID string, scopes []string, rel Relation, depth int) error {
	if depth > e.config.MaxDependDepth {
		return fmt.Errorf("relation %q at depth %d: %w", rel.Name(), depth, ErrDependDepth)
	}
	for _, dep := range rel.Depends() {
		if err := e.checkRelation(ctx, userID, scopes, dep, depth+1); err != nil {
			return err
		}
	}

	alts, err := rel.Requirements(ctx, userID)
	if err != nil {
		return fmt.Errorf("relation %q requirements: %w", rel.Name(), err)
	}
	if len(alts) == 0 {
		return nil
	}
	if err := e.ListCheck(ctx, userID, scopes, alts); err != nil {
		var deny *DenyError
		if errors.As(err, &deny) {
			deny.Relation = rel.Name()
		}
		return err
	}
	return nil
}

// validateRelations walks every registered relation's dependency graph and
// fails when a declaration cycle exists. Runs once at engine construction;
// declarations are static, so a clean pass holds for the engine's lifetime.
func validateRelations(relations map[string]Relation) error {
	const (
		visiting = 1
		done     = 2
	)
	state := make(map[string]int, len(relations))

	var walk func(rel Relation, trail []string) error
	walk = func(rel Relation, trail []string) error {
		name := rel.Name()
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("relation %q depends on itself via %v: %w", name, trail, ErrRelationCycle)
		}
		state[name] = visiting
		for _, dep := range rel.Depends() {
			if err := walk(dep, append(trail, name)); err != nil {
				return err
			}
		}
		state[name] = done
		return nil
	}

	for _, rel := range relations {
		if err := walk(rel, nil); err != nil {
			return err
		}
	}
	return nil
}
