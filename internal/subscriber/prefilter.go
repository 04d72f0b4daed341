package subscriber

// MatchPolicy controls whether a clause must all match (include_all) or
// any one of them is sufficient (include_any).
type MatchPolicy string

const (
	MatchIncludeAny MatchPolicy = "include_any"
	MatchIncludeAll MatchPolicy = "include_all"
)

// ClauseField names the annotation field a clause constrains.
type ClauseField string

const (
	FieldGroup ClauseField = "/group"
	FieldUser  ClauseField = "/user"
	FieldURI   ClauseField = "/uri"
	FieldTags  ClauseField = "/tags"
)

// Clause constrains one field to a set of acceptable values. URI clauses
// are exact-match only; there is no prefix or normalization applied
// server-side, which callers must account for.
type Clause struct {
	Field         ClauseField `json:"field"`
	Operator      string      `json:"operator"`
	CaseSensitive bool        `json:"case_sensitive"`
	Value         []string    `json:"value"`
}

// Actions selects which event kinds the subscription streams.
type Actions struct {
	Create bool `json:"create"`
	Update bool `json:"update"`
	Delete bool `json:"delete"`
}

// Filter is the server-side filter document installed right after the
// client-id handshake.
type Filter struct {
	MatchPolicy MatchPolicy `json:"match_policy"`
	Actions     Actions     `json:"actions"`
	Clauses     []Clause    `json:"clauses"`
}

// PrefilterBuilder accumulates clauses and actions for one Filter.
type PrefilterBuilder struct {
	policy  MatchPolicy
	actions Actions
	groups  []string
	users   []string
	uris    []string
	tags    []string
}

// NewPrefilterBuilder starts a builder with the given match policy.
func NewPrefilterBuilder(policy MatchPolicy) *PrefilterBuilder {
	return &PrefilterBuilder{policy: policy}
}

func (b *PrefilterBuilder) WithActions(create, update, del bool) *PrefilterBuilder {
	b.actions = Actions{Create: create, Update: update, Delete: del}
	return b
}

func (b *PrefilterBuilder) WithGroups(groups ...string) *PrefilterBuilder {
	b.groups = append(b.groups, groups...)
	return b
}

func (b *PrefilterBuilder) WithUsers(users ...string) *PrefilterBuilder {
	b.users = append(b.users, users...)
	return b
}

func (b *PrefilterBuilder) WithURIs(uris ...string) *PrefilterBuilder {
	b.uris = append(b.uris, uris...)
	return b
}

func (b *PrefilterBuilder) WithTags(tags ...string) *PrefilterBuilder {
	b.tags = append(b.tags, tags...)
	return b
}

// Build assembles the Filter from the non-empty subset of configured
// clause types, in groups/users/uris/tags order.
func (b *PrefilterBuilder) Build() Filter {
	f := Filter{MatchPolicy: b.policy, Actions: b.actions}

	add := func(field ClauseField, values []string) {
		if len(values) == 0 {
			return
		}
		f.Clauses = append(f.Clauses, Clause{
			Field:         field,
			Operator:      "one_of",
			CaseSensitive: true,
			Value:         values,
		})
	}
	add(FieldGroup, b.groups)
	add(FieldUser, b.users)
	add(FieldURI, b.uris)
	add(FieldTags, b.tags)

	return f
}
