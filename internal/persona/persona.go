// Package persona resolves the effective role for a conversation.
package persona

const seedPrefix = "Role: "

// Overrides holds the cascade inputs, most specific first. Empty means absent.
type Overrides struct {
	Active       string
	Primary      string
	GroupPrimary string
	Default      string
}

// Resolve returns the first non-empty value of Active, Primary, GroupPrimary, Default.
func Resolve(o Overrides) string {
	for _, r := range [...]string{o.Active, o.Primary, o.GroupPrimary} {
		if r != "" {
			return r
		}
	}
	return o.Default
}

// Seed is the history line that marks which role a transcript belongs to.
func Seed(role string) string {
	return seedPrefix + role
}
