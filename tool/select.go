package tool

// SelectionRequest carries the caller-provided hints used to narrow a
// registry down to the tool subset relevant for one turn. It never mutates
// the registry: discovery is a pure function of (request, registry, scene).
type SelectionRequest struct {
	// Names, when non-empty, restricts the subset to exactly these tools
	// (intersected with scene/tag filters below).
	Names []Ident
	// Tags restricts the subset to tools whose Spec carries at least one
	// of these tags. Empty means no tag filtering.
	Tags []string
}

// Taggable is implemented by tools that want to participate in tag-based
// filtering. When SelectionRequest.Tags is non-empty, tools that do not
// implement it are excluded; scene narrowing does not use tags.
type Taggable interface {
	Tags() []string
}

// SelectSubset computes the tool subset visible for one turn without
// mutating registry. scene names a caller-defined grouping (e.g. "coding",
// "research"); the empty scene means no scene-based narrowing. This mirrors
// the source's dynamic, request-time tool-list construction translated into
// a pure function per the design note on dynamic tool discovery.
func SelectSubset(req SelectionRequest, registry *Registry, scene string) []Spec {
	wantNames := toSet(req.Names)
	wantTags := toSet(asIdents(req.Tags))

	var out []Spec
	for _, spec := range registry.Specs() {
		if len(wantNames) > 0 {
			if _, ok := wantNames[spec.Name]; !ok {
				continue
			}
		}
		if len(wantTags) > 0 {
			t, ok := registry.tools[spec.Name].(Taggable)
			if !ok || !anyTagMatches(t.Tags(), wantTags) {
				continue
			}
		}
		if scene != "" && !matchesScene(spec, scene) {
			continue
		}
		out = append(out, spec)
	}
	return out
}

// matchesScene narrows by a "scene.toolname" naming convention: a tool named
// "coding.run_tests" is only eligible for scene "coding". Unprefixed tool
// names are scene-agnostic and remain eligible under any scene.
func matchesScene(spec Spec, scene string) bool {
	prefix := scene + "."
	name := string(spec.Name)
	if !hasDot(name) {
		return true
	}
	return len(name) >= len(prefix) && name[:len(prefix)] == prefix
}

func hasDot(s string) bool {
	for _, r := range s {
		if r == '.' {
			return true
		}
	}
	return false
}

func toSet(idents []Ident) map[Ident]struct{} {
	if len(idents) == 0 {
		return nil
	}
	s := make(map[Ident]struct{}, len(idents))
	for _, id := range idents {
		s[id] = struct{}{}
	}
	return s
}

func asIdents(ss []string) []Ident {
	out := make([]Ident, len(ss))
	for i, s := range ss {
		out[i] = Ident(s)
	}
	return out
}

func anyTagMatches(tags []string, want map[Ident]struct{}) bool {
	for _, t := range tags {
		if _, ok := want[Ident(t)]; ok {
			return true
		}
	}
	return false
}
