// Package gitops implements the host-side git operations the harness needs
// outside the git proxy's request path (spec.md §6): creating the fork
// branch before the task container starts, and squash-merging it back onto
// the task's real base branch once the agent reports success.
package gitops

import (
	"github.com/go-git/go-git/v5/plumbing"
)

// GitOps is the host-side git surface a task needs beyond the smart-HTTP
// proxy (internal/gitproxy), which only forwards already-established
// traffic and never initiates operations of its own.
type GitOps interface {
	// CurrentBranch returns the checked-out branch name of the repository
	// at path.
	CurrentBranch(path string) (string, error)

	// CreateBranch creates name at the repository's current HEAD and
	// leaves the working tree on that branch.
	CreateBranch(path, name string) error

	// SquashMerge applies fork's changes onto base as a single new commit
	// on base, without fast-forwarding or preserving fork's commit
	// history.
	SquashMerge(path, base, fork string) error
}

func branchRef(name string) plumbing.ReferenceName {
	return plumbing.NewBranchReferenceName(name)
}
