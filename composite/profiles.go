package composite

import (
	"fmt"

	"pricefuse/models"
)

// Two quorum profiles are supported. The permissive profile keeps a price
// flowing for observability even from one surviving venue; the strict
// profile is for runs where the composite drives a downstream model and a
// single venue is not trustworthy enough to publish.
var (
	PermissiveProfile = models.QuorumPolicy{MinQuorum: 1, PreferredQuorum: 2, AllowSingleSource: true}
	StrictProfile     = models.QuorumPolicy{MinQuorum: 2, PreferredQuorum: 3, AllowSingleSource: false}
)

// ProfileByName resolves a configured profile name to its policy.
func ProfileByName(name string) (models.QuorumPolicy, error) {
	switch name {
	case "permissive":
		return PermissiveProfile, nil
	case "strict":
		return StrictProfile, nil
	default:
		return models.QuorumPolicy{}, fmt.Errorf("unknown quorum profile: %s", name)
	}
}
